package counter

import "errors"

// Sentinel kinds for counter cache errors.
var (
	ErrSchemaTooNew = errors.New("counter database schema is newer than supported")
	ErrStorage      = errors.New("counter storage unavailable")
)
