package counter

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

func init() {
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestCache(t *testing.T, opts ...Option) *Cache {
	t.Helper()
	c := New(filepath.Join(t.TempDir(), "state"), opts...)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// rawDB opens a second, independent connection to the cache file.
func rawDB(t *testing.T, path string) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		t.Fatalf("open raw db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCache_ReadNeverWritten(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if got := c.ReadCount(ctx, "never-written"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if got := c.ReadCount(ctx, ""); got != 0 {
		t.Errorf("expected 0 for empty id, got %d", got)
	}
}

func TestCache_LazyOpen(t *testing.T) {
	c := New(filepath.Join(t.TempDir(), "state"))

	if _, err := os.Stat(c.Path()); !os.IsNotExist(err) {
		t.Fatalf("database must not exist before first use, stat err = %v", err)
	}

	c.ReadCount(context.Background(), "u1")
	defer c.Close()

	if _, err := os.Stat(c.Path()); err != nil {
		t.Errorf("database was not created on first use: %v", err)
	}
}

func TestCache_WriteThenRead(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if err := c.WriteCount(ctx, "u1", 3); err != nil {
		t.Fatalf("WriteCount() failed: %v", err)
	}
	if err := c.WriteCount(ctx, "u1", 5); err != nil {
		t.Fatalf("WriteCount() failed: %v", err)
	}
	if err := c.WriteCount(ctx, "u2", 0); err != nil {
		t.Fatalf("WriteCount() failed: %v", err)
	}

	if got := c.ReadCount(ctx, "u1"); got != 5 {
		t.Errorf("u1: expected 5, got %d", got)
	}
	if got := c.ReadCount(ctx, "u2"); got != 0 {
		t.Errorf("u2: expected 0, got %d", got)
	}
}

func TestCache_SurvivesReopen(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")

	c1 := New(dir)
	if err := c1.WriteCount(ctx, "u1", 42); err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatal(err)
	}
	if err := c1.Close(); err != nil {
		t.Fatalf("second Close() failed: %v", err)
	}

	c2 := New(dir)
	defer c2.Close()
	if got := c2.ReadCount(ctx, "u1"); got != 42 {
		t.Errorf("expected 42 after reopen, got %d", got)
	}
}

func TestCache_RejectsInvalidWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if err := c.WriteCount(ctx, "", 1); !errors.Is(err, types.ErrMissingID) {
		t.Errorf("expected ErrMissingID, got %v", err)
	}
	if err := c.WriteCount(ctx, "u1", -1); !errors.Is(err, types.ErrNegativeCount) {
		t.Errorf("expected ErrNegativeCount, got %v", err)
	}
}

func TestCache_SchemaVersion(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	v, err := c.Version(ctx)
	if err != nil {
		t.Fatalf("Version() failed: %v", err)
	}
	if v != schemaVersion {
		t.Errorf("expected version %d, got %d", schemaVersion, v)
	}

	db := rawDB(t, c.Path())
	var name string
	err = db.QueryRow(`SELECT name FROM pragma_table_info('counters') WHERE name = 'updated_at'`).Scan(&name)
	if err != nil {
		t.Errorf("updated_at column missing: %v", err)
	}
}

func TestCache_UpdatedAtStamped(t *testing.T) {
	ctx := context.Background()
	stamp := time.Date(2025, 4, 5, 6, 7, 8, 0, time.UTC)
	c := newTestCache(t, WithClock(func() time.Time { return stamp }))

	if err := c.WriteCount(ctx, "u1", 1); err != nil {
		t.Fatal(err)
	}

	var updated string
	if err := rawDB(t, c.Path()).QueryRow(`SELECT updated_at FROM counters WHERE id = 'u1'`).Scan(&updated); err != nil {
		t.Fatal(err)
	}
	if updated != "2025-04-05T06:07:08Z" {
		t.Errorf("unexpected updated_at %q", updated)
	}
}

func TestCache_MigratesV1Database(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "state")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, FileName)

	// Build a database as the first schema version left it.
	db := rawDB(t, path)
	for _, stmt := range []string{
		`CREATE TABLE counters (id TEXT PRIMARY KEY, count INTEGER NOT NULL CHECK (count >= 0))`,
		`INSERT INTO counters (id, count) VALUES ('old', 7)`,
		`PRAGMA user_version = 1`,
	} {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("%s: %v", stmt, err)
		}
	}
	_ = db.Close()

	c := New(dir)
	defer c.Close()

	if got := c.ReadCount(ctx, "old"); got != 7 {
		t.Errorf("expected migrated row to keep count 7, got %d", got)
	}
	if err := c.WriteCount(ctx, "old", 8); err != nil {
		t.Fatalf("write after migration failed: %v", err)
	}
	if v, _ := c.Version(ctx); v != schemaVersion {
		t.Errorf("expected version %d after migration, got %d", schemaVersion, v)
	}
}

func TestCache_ReopensOnVersionChange(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if err := c.WriteCount(ctx, "u1", 2); err != nil {
		t.Fatal(err)
	}

	// Another process rolls the version marker back underneath us.
	if _, err := rawDB(t, c.Path()).Exec(`PRAGMA user_version = 1`); err != nil {
		t.Fatal(err)
	}

	if got := c.ReadCount(ctx, "u1"); got != 2 {
		t.Errorf("expected 2 after reopen, got %d", got)
	}
	if v, _ := c.Version(ctx); v != schemaVersion {
		t.Errorf("expected version restored to %d, got %d", schemaVersion, v)
	}
}

func TestCache_SchemaTooNew(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	if err := c.WriteCount(ctx, "u1", 2); err != nil {
		t.Fatal(err)
	}
	if _, err := rawDB(t, c.Path()).Exec(fmt.Sprintf(`PRAGMA user_version = %d`, schemaVersion+5)); err != nil {
		t.Fatal(err)
	}

	if err := c.WriteCount(ctx, "u1", 3); !errors.Is(err, ErrSchemaTooNew) {
		t.Errorf("expected ErrSchemaTooNew, got %v", err)
	}
	if got := c.ReadCount(ctx, "u1"); got != 0 {
		t.Errorf("expected degraded read of 0, got %d", got)
	}
}

func TestCache_StorageUnavailable(t *testing.T) {
	ctx := context.Background()
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	c := New(filepath.Join(blocker, "state"))
	defer c.Close()

	if got := c.ReadCount(ctx, "u1"); got != 0 {
		t.Errorf("expected 0, got %d", got)
	}
	if err := c.WriteCount(ctx, "u1", 1); !errors.Is(err, ErrStorage) {
		t.Errorf("expected ErrStorage, got %v", err)
	}
}

func TestCache_ConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(t)

	const writers = 16
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if err := c.WriteCount(ctx, fmt.Sprintf("u%d", i), i); err != nil {
				t.Errorf("write %d: %v", i, err)
			}
			if err := c.WriteCount(ctx, "shared", i); err != nil {
				t.Errorf("shared write %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	for i := 0; i < writers; i++ {
		if got := c.ReadCount(ctx, fmt.Sprintf("u%d", i)); got != i {
			t.Errorf("u%d: expected %d, got %d", i, i, got)
		}
	}
	if got := c.ReadCount(ctx, "shared"); got < 0 || got >= writers {
		t.Errorf("shared: expected one of the written values, got %d", got)
	}
}
