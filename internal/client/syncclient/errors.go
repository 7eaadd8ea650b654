package syncclient

import "errors"

// Sentinel kinds for sync client errors.
var (
	ErrInvalidBaseURL = errors.New("invalid server URL")
	ErrUnexpectedType = errors.New("unexpected response content type")
	ErrStatus         = errors.New("unexpected response status")
)
