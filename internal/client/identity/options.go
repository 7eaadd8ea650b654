package identity

import "github.com/okian/snackboard/pkg/logger"

// Option applies a configuration option to the Store.
type Option func(*Store)

// WithIDGenerator replaces the random UUID source.
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}
