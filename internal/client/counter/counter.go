// Package counter is the device-local counter cache: one non-negative count
// per identity, kept in a SQLite database in the client state directory.
package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// FileName is the database file inside the state directory.
const FileName = "counter.db"

// Cache owns a single lazily opened connection to the counter database.
// Before every use the connection's schema version is checked; a mismatch
// (another process migrated or rolled the file) closes and reopens it.
type Cache struct {
	path string
	now  func() time.Time

	mu sync.Mutex
	db *sql.DB

	logger logger.Logger
}

// New creates a cache for the database in dir without opening it.
func New(dir string, opts ...Option) *Cache {
	c := &Cache{
		path: filepath.Join(dir, FileName),
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Named("counter")
	}
	return c
}

// Path returns the database file location.
func (c *Cache) Path() string {
	return c.path
}

// ReadCount returns the stored count for id. It never fails: an empty id,
// a missing row or unavailable storage all read as 0.
func (c *Cache) ReadCount(ctx context.Context, id string) int {
	if strings.TrimSpace(id) == "" {
		return 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.handle(ctx)
	if err != nil {
		c.logger.Warn(ctx, "counter storage unavailable; reading 0",
			logger.String("user_id", id), logger.Error(err))
		return 0
	}

	var count int
	err = db.QueryRowContext(ctx, `SELECT count FROM counters WHERE id = ?`, id).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return 0
	case err != nil:
		c.logger.Warn(ctx, "counter read failed; reading 0",
			logger.String("user_id", id), logger.Error(err))
		return 0
	}
	return count
}

// WriteCount stores count for id, replacing any previous value.
func (c *Cache) WriteCount(ctx context.Context, id string, count int) error {
	if strings.TrimSpace(id) == "" {
		return types.ErrMissingID
	}
	if count < 0 {
		return types.ErrNegativeCount
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.handle(ctx)
	if err != nil {
		return err
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO counters (id, count, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET count = excluded.count, updated_at = excluded.updated_at
	`, id, count, c.now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("%w: write count: %w", ErrStorage, err)
	}
	return nil
}

// Version reports the schema version of the open database, opening it if needed.
func (c *Cache) Version(ctx context.Context) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	db, err := c.handle(ctx)
	if err != nil {
		return 0, err
	}
	return userVersion(ctx, db)
}

// Close releases the connection. The cache reopens it on next use.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

// handle returns a connection at the current schema version. Callers hold c.mu.
func (c *Cache) handle(ctx context.Context) (*sql.DB, error) {
	if c.db != nil {
		version, err := userVersion(ctx, c.db)
		if err == nil && version == schemaVersion {
			return c.db, nil
		}
		c.logger.Info(ctx, "counter database changed underneath; reopening",
			logger.Int("version", version), logger.Error(err))
		_ = c.db.Close()
		c.db = nil
	}

	db, err := c.open(ctx)
	if err != nil {
		return nil, err
	}
	c.db = db
	return db, nil
}

func (c *Cache) open(ctx context.Context) (*sql.DB, error) {
	if err := os.MkdirAll(filepath.Dir(c.path), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create state directory: %w", ErrStorage, err)
	}

	db, err := sql.Open("sqlite3", c.path)
	if err != nil {
		return nil, fmt.Errorf("%w: open database: %w", ErrStorage, err)
	}

	// One connection: SQLite has a single writer and the version check
	// must observe the same connection the queries use.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: connect: %w", ErrStorage, err)
	}
	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	if err := migrate(ctx, db); err != nil {
		_ = db.Close()
		if errors.Is(err, ErrSchemaTooNew) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return db, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}
