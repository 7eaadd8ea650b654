package repository

import (
	"io/fs"
	"time"

	"github.com/okian/snackboard/pkg/logger"
)

// Option applies a configuration option to the FileStore.
type Option func(*FileStore)

// WithClock sets the time source used to stamp LastUpdated.
func WithClock(now func() time.Time) Option {
	return func(s *FileStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithFileMode sets the permission bits of the backing document.
func WithFileMode(mode fs.FileMode) Option {
	return func(s *FileStore) {
		if mode != 0 {
			s.mode = mode
		}
	}
}

// WithSerializedWrites makes Upsert hold a process-local lock across its
// read-modify-write cycle. Without it, concurrent upserts for different ids
// race at whole-file granularity and one of the additions can be lost.
func WithSerializedWrites(enabled bool) Option {
	return func(s *FileStore) {
		s.serialize = enabled
	}
}

// WithLogger sets a custom logger for the store.
func WithLogger(l logger.Logger) Option {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}
