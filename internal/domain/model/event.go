// Package model contains domain models passed between layers.
package model

import "time"

// CounterChanged is emitted by the client session whenever the local count
// changes. The pipeline saves it locally and then syncs it to the server.
type CounterChanged struct {
	Seq      uint64    // per-session sequence number, strictly increasing
	UserID   string    // identity the count belongs to
	UserName string    // display name pushed alongside the count
	Count    int       // new count value
	At       time.Time // when the mutation happened
}
