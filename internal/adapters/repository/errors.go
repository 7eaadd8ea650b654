package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrInvalidRecord = errors.New("invalid record")
	ErrPersist       = errors.New("persist records failed")
)
