package service

import "errors"

// ErrNotStarted is returned by operations that need a started service.
var ErrNotStarted = errors.New("service not started")
