// Package service provides the core business service that implements
// the dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/snackboard/internal/adapters/repository"
	"github.com/okian/snackboard/internal/domain/ranking"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
	"github.com/okian/snackboard/pkg/metrics"
)

// Default service configuration constants.
const (
	defaultDataFile = "data/snacks.json"
)

// Service implements the API dependencies for the snack leaderboard.
type Service struct {
	mu sync.RWMutex

	// Core components
	store  repository.Store
	ranker *ranking.Ranker

	// Configuration
	dataFile        string
	serializeWrites bool

	// State
	started   bool
	startedAt time.Time

	// Logging
	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithDataFile sets the location of the aggregate JSON document.
func WithDataFile(path string) Option {
	return func(s *Service) {
		if path != "" {
			s.dataFile = path
		}
	}
}

// WithSerializedWrites serializes upserts within this process.
func WithSerializedWrites(enabled bool) Option {
	return func(s *Service) {
		s.serializeWrites = enabled
	}
}

// WithStore replaces the default file store.
func WithStore(store repository.Store) Option {
	return func(s *Service) {
		if store != nil {
			s.store = store
		}
	}
}

// WithRanker sets the ranker used to order records.
func WithRanker(r *ranking.Ranker) Option {
	return func(s *Service) {
		if r != nil {
			s.ranker = r
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(logger logger.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		dataFile: defaultDataFile,
		logger:   nil, // Will be replaced when service starts
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Start initializes the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	if s.logger == nil {
		s.logger = logger.Get()
	}

	s.logger.Info(ctx, "starting snackboard service...")

	if s.store == nil {
		s.store = repository.NewFileStore(s.dataFile,
			repository.WithSerializedWrites(s.serializeWrites),
			repository.WithLogger(s.logger.Named("repository")),
		)
		s.logger.Info(ctx, "using file store",
			logger.String("data_file", s.dataFile),
			logger.Bool("serialize_writes", s.serializeWrites),
		)
	}
	if s.ranker == nil {
		s.ranker = ranking.New()
	}

	s.started = true
	s.startedAt = time.Now()
	s.logger.Info(ctx, "snackboard service started",
		logger.String("ranking_locale", s.ranker.Locale().String()),
	)

	return nil
}

// Stop shuts down the service.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	if closer, ok := s.store.(interface{ Close() error }); ok {
		_ = closer.Close()
	}

	s.started = false
	s.logger.Info(context.Background(), "snackboard service stopped")
}

// components returns the store and ranker of a started service.
func (s *Service) components() (repository.Store, *ranking.Ranker, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, nil, ErrNotStarted
	}
	return s.store, s.ranker, nil
}

// Records returns the raw collection in storage order.
func (s *Service) Records(ctx context.Context) ([]types.UserRecord, error) {
	store, _, err := s.components()
	if err != nil {
		return nil, fmt.Errorf("records: %w", err)
	}
	return store.ReadAll(ctx), nil
}

// Ranking returns the collection ordered by count, truncated to limit when limit > 0.
func (s *Service) Ranking(ctx context.Context, limit int) ([]types.UserRecord, error) {
	store, ranker, err := s.components()
	if err != nil {
		return nil, fmt.Errorf("ranking: %w", err)
	}

	ranked := ranker.Rank(store.ReadAll(ctx), limit)
	metrics.RecordRanking(len(ranked))
	return ranked, nil
}

// Upsert stores the latest count reported for a user.
func (s *Service) Upsert(ctx context.Context, id, name string, count int) (types.UserRecord, error) {
	store, _, err := s.components()
	if err != nil {
		return types.UserRecord{}, fmt.Errorf("upsert: %w", err)
	}

	rec, err := store.Upsert(ctx, id, name, count)
	if err != nil {
		return types.UserRecord{}, err
	}

	s.logger.Info(ctx, "count updated",
		logger.String("user_id", rec.ID),
		logger.String("user_name", rec.Name),
		logger.Int("count", rec.Count),
	)
	return rec, nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]interface{}{
		"started":         s.started,
		"dataFile":        s.dataFile,
		"serializeWrites": s.serializeWrites,
	}

	if s.started {
		totalRecords := s.store.Count(context.Background())
		stats["totalRecords"] = totalRecords
		stats["rankingLocale"] = s.ranker.Locale().String()
		stats["uptimeSeconds"] = int64(time.Since(s.startedAt).Seconds())

		metrics.UpdateRecordsTotal(totalRecords)
	}

	return stats
}
