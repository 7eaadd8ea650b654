// Package identity keeps the device-local user identity in a small YAML file.
package identity

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

// FileName is the identity file inside the state directory.
const FileName = "identity.yaml"

const (
	fileMode fs.FileMode = 0o600
	dirMode  fs.FileMode = 0o700
)

// Store reads and writes the identity file.
type Store struct {
	path   string
	newID  func() string
	logger logger.Logger
}

// New creates a store for the identity file in dir. Nothing is touched on disk yet.
func New(dir string, opts ...Option) *Store {
	s := &Store{
		path:  filepath.Join(dir, FileName),
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Named("identity")
	}
	return s
}

// Path returns the identity file location.
func (s *Store) Path() string {
	return s.path
}

// Lookup returns the stored identity. A missing, unreadable or incomplete
// file reads as no identity.
func (s *Store) Lookup(ctx context.Context) (types.Identity, bool) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			s.logger.Warn(ctx, "identity file unreadable", logger.String("path", s.path), logger.Error(err))
		}
		return types.Identity{}, false
	}

	var id types.Identity
	if err := yaml.Unmarshal(data, &id); err != nil {
		s.logger.Warn(ctx, "identity file is not valid YAML", logger.String("path", s.path), logger.Error(err))
		return types.Identity{}, false
	}
	if !id.Complete() {
		s.logger.Debug(ctx, "identity file incomplete", logger.String("path", s.path))
		return types.Identity{}, false
	}
	return id, true
}

// Establish creates a fresh identity for name and persists it, replacing any
// previous one.
func (s *Store) Establish(ctx context.Context, name string) (types.Identity, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Identity{}, ErrEmptyName
	}

	id := types.Identity{UserID: s.newID(), UserName: name}
	data, err := yaml.Marshal(id)
	if err != nil {
		return types.Identity{}, fmt.Errorf("%w: encode: %w", ErrPersist, err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		s.logger.Error(ctx, "failed to persist identity", logger.String("path", s.path), logger.Error(err))
		return types.Identity{}, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	s.logger.Info(ctx, "identity established",
		logger.String("user_id", id.UserID),
		logger.String("user_name", id.UserName),
	)
	return id, nil
}

// Clear removes the stored identity. The server keeps the old record.
func (s *Store) Clear(ctx context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("clear identity: %w", err)
	}
	s.logger.Info(ctx, "identity cleared")
	return nil
}

// writeFileAtomic replaces path with data via a temp file in the same directory.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirMode); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

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
	if err := os.Chmod(tmpName, fileMode); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	return os.Rename(tmpName, path)
}
