package session

import (
	"time"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// Option applies a configuration option to the Session.
type Option func(*Session)

// WithMaxCount sets the increment cap. Increments are ignored once the count
// is above max; 0 disables the cap.
func WithMaxCount(max int) Option {
	return func(s *Session) {
		if max >= 0 {
			s.maxCount = max
		}
	}
}

// WithPollInterval sets how often the ranking is refreshed in the
// background; 0 disables polling.
func WithPollInterval(d time.Duration) Option {
	return func(s *Session) {
		if d >= 0 {
			s.pollInterval = d
		}
	}
}

// WithQueueCapacity bounds the number of counter changes waiting to sync.
func WithQueueCapacity(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.queueCapacity = n
		}
	}
}

// WithPushOnLoad controls whether the loaded count is pushed once after an
// identity is loaded, so the server learns the current name.
func WithPushOnLoad(enabled bool) Option {
	return func(s *Session) {
		s.pushOnLoad = enabled
	}
}

// WithOnRanking registers a callback invoked after every background poll.
func WithOnRanking(fn func([]types.UserRecord)) Option {
	return func(s *Session) {
		s.onRanking = fn
	}
}

// WithLogger sets a custom logger for the session.
func WithLogger(l logger.Logger) Option {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}
