package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
	"github.com/okian/snackboard/pkg/metrics"
)

// Default file store configuration constants.
const (
	defaultFileMode fs.FileMode = 0o644
	dirMode         fs.FileMode = 0o755
	jsonIndent                  = "  "
)

// Read fallback reasons reported to metrics.
const (
	fallbackMissing     = "missing"
	fallbackCorrupt     = "corrupt"
	fallbackReadError   = "read_error"
	fallbackUnavailable = "dir_unavailable"
)

// FileStore keeps the whole collection in one pretty-printed JSON array.
//
// Every Upsert is a read-modify-write of the entire document followed by an
// atomic replace (temp file + rename). There is no per-record primitive: two
// concurrent upserts for different ids can race and the later rename wins
// with a snapshot that lacks the other's change. WithSerializedWrites closes
// that gap within one process only.
type FileStore struct {
	path      string
	mode      fs.FileMode
	now       func() time.Time
	serialize bool

	writeMu  sync.Mutex
	dirReady atomic.Bool

	logger logger.Logger
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates a store backed by the JSON document at path. Nothing
// touches the filesystem until the first read or write.
func NewFileStore(path string, opts ...Option) *FileStore {
	s := &FileStore{
		path: path,
		mode: defaultFileMode,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = logger.Named("repository")
	}
	return s
}

// Path returns the backing document location.
func (s *FileStore) Path() string {
	return s.path
}

// ReadAll loads the full collection. Absence of the document is the normal
// first-run state; corrupt or unreadable documents are logged and read as empty.
func (s *FileStore) ReadAll(ctx context.Context) []types.UserRecord {
	start := time.Now()
	defer func() {
		metrics.RecordStoreReadLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := s.ensureDir(); err != nil {
		s.logger.Warn(ctx, "data directory unavailable; reading as empty",
			logger.String("path", s.path), logger.Error(err))
		metrics.RecordStoreReadFallback(fallbackUnavailable)
		return []types.UserRecord{}
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug(ctx, "data file not found; starting empty", logger.String("path", s.path))
			metrics.RecordStoreReadFallback(fallbackMissing)
		} else {
			s.logger.Warn(ctx, "data file unreadable; reading as empty",
				logger.String("path", s.path), logger.Error(err))
			metrics.RecordStoreReadFallback(fallbackReadError)
		}
		metrics.UpdateRecordsTotal(0)
		return []types.UserRecord{}
	}

	var records []types.UserRecord
	if err := json.Unmarshal(data, &records); err != nil {
		s.logger.Warn(ctx, "data file is not a JSON record array; reading as empty",
			logger.String("path", s.path), logger.Error(err))
		metrics.RecordStoreReadFallback(fallbackCorrupt)
		metrics.UpdateRecordsTotal(0)
		return []types.UserRecord{}
	}
	if records == nil {
		records = []types.UserRecord{}
	}

	metrics.UpdateRecordsTotal(len(records))
	return records
}

// Upsert applies one write to the collection and replaces the document.
func (s *FileStore) Upsert(ctx context.Context, id, name string, count int) (types.UserRecord, error) {
	const op = "repository.upsert"

	rec := types.UserRecord{ID: id, Name: name, Count: count}
	if err := rec.Validate(); err != nil {
		return types.UserRecord{}, fmt.Errorf("%s: %w: %w", op, ErrInvalidRecord, err)
	}
	if err := ctx.Err(); err != nil {
		return types.UserRecord{}, fmt.Errorf("%s: %w", op, err)
	}

	if s.serialize {
		s.writeMu.Lock()
		defer s.writeMu.Unlock()
	}

	start := time.Now()
	defer func() {
		metrics.RecordStoreWriteLatency(float64(time.Since(start).Milliseconds()))
	}()

	records := s.ReadAll(ctx)
	rec.LastUpdated = s.now().UTC()

	inserted := true
	for i := range records {
		if records[i].ID == id {
			records[i].Name = rec.Name
			records[i].Count = rec.Count
			records[i].LastUpdated = rec.LastUpdated
			inserted = false
			break
		}
	}
	if inserted {
		records = append(records, rec)
	}

	if err := s.write(records); err != nil {
		metrics.RecordStoreWriteError()
		metrics.RecordErrorByComponent("repository", "write_failed")
		s.logger.Error(ctx, "failed to persist records",
			logger.String("path", s.path),
			logger.String("user_id", id),
			logger.Error(err),
		)
		return types.UserRecord{}, fmt.Errorf("%s: %w: %w", op, ErrPersist, err)
	}

	metrics.RecordUpsert(inserted)
	metrics.UpdateRecordsTotal(len(records))
	s.logger.Debug(ctx, "record upserted",
		logger.String("user_id", id),
		logger.String("user_name", name),
		logger.Int("count", count),
		logger.Bool("inserted", inserted),
	)
	return rec, nil
}

// Count returns the number of records currently stored.
func (s *FileStore) Count(ctx context.Context) int {
	return len(s.ReadAll(ctx))
}

// write serializes records and atomically replaces the backing document.
func (s *FileStore) write(records []types.UserRecord) error {
	data, err := json.MarshalIndent(records, "", jsonIndent)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	data = append(data, '\n')

	if err := s.ensureDir(); err != nil {
		return err
	}

	dir, base := filepath.Split(s.path)
	if dir == "" {
		dir = "."
	}
	tmp, err := os.CreateTemp(dir, base+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, s.mode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace data file: %w", err)
	}
	committed = true
	return nil
}

// ensureDir creates the parent directory once; failures are retried on the next call.
func (s *FileStore) ensureDir() error {
	if s.dirReady.Load() {
		return nil
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create data directory %s: %w", dir, err)
	}
	s.dirReady.Store(true)
	return nil
}
