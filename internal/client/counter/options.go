package counter

import (
	"time"

	"github.com/okian/snackboard/pkg/logger"
)

// Option applies a configuration option to the Cache.
type Option func(*Cache)

// WithClock sets the time source used for updated_at.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) {
		if now != nil {
			c.now = now
		}
	}
}

// WithLogger sets a custom logger for the cache.
func WithLogger(l logger.Logger) Option {
	return func(c *Cache) {
		if l != nil {
			c.logger = l
		}
	}
}
