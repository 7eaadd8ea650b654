// Package types contains common types used across the application
package types

import (
	"errors"
	"strings"
	"time"
)

// Validation errors for records.
var (
	ErrMissingID     = errors.New("missing id")
	ErrNegativeCount = errors.New("count must not be negative")
)

// UserRecord is one row of the shared aggregate store.
type UserRecord struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Count       int       `json:"count"`
	LastUpdated time.Time `json:"lastUpdated"`
}

// Validate reports whether the record can be stored.
func (r UserRecord) Validate() error {
	if strings.TrimSpace(r.ID) == "" {
		return ErrMissingID
	}
	if r.Count < 0 {
		return ErrNegativeCount
	}
	return nil
}

// LocalCounterRecord mirrors a device's last known count for one identity.
type LocalCounterRecord struct {
	ID    string `json:"id"`
	Count int    `json:"count"`
}

// Identity is the device-local user reference.
type Identity struct {
	UserID   string `json:"userId" yaml:"userId"`
	UserName string `json:"userName" yaml:"userName"`
}

// Complete reports whether both halves of the identity are present.
func (i Identity) Complete() bool {
	return strings.TrimSpace(i.UserID) != "" && strings.TrimSpace(i.UserName) != ""
}

// CloneRecords returns a copy of records that never aliases the input.
// A nil input yields an empty, non-nil slice so it encodes as [].
func CloneRecords(records []UserRecord) []UserRecord {
	out := make([]UserRecord, len(records))
	copy(out, records)
	return out
}
