package identity

import "errors"

// Sentinel kinds for identity errors.
var (
	ErrEmptyName = errors.New("user name must not be empty")
	ErrPersist   = errors.New("persist identity failed")
)
