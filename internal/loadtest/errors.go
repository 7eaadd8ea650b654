package loadtest

import "errors"

var (
	// ErrInvalidConfig is returned when a run is configured with nothing to do.
	ErrInvalidConfig = errors.New("invalid load test config")
	// ErrUnhealthy is returned when the server's health endpoint is not OK.
	ErrUnhealthy = errors.New("server is not healthy")
	// ErrRankingUnavailable is returned when the final ranking cannot be pulled.
	ErrRankingUnavailable = errors.New("ranking unavailable")
	// ErrLostUpdates is returned in strict mode when the ranking disagrees with the plan.
	ErrLostUpdates = errors.New("ranking disagrees with pushed counts")
	// ErrUnsorted is returned when the served ranking is not ordered by count.
	ErrUnsorted = errors.New("ranking is not sorted by count")
)
