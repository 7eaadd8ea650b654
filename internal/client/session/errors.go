package session

import "errors"

// Sentinel kinds for session errors.
var (
	ErrNotStarted = errors.New("session not started")
	ErrStopped    = errors.New("session stopped")
	ErrNoIdentity = errors.New("no identity; join first")
	ErrNotReady   = errors.New("local count not loaded yet")
)
