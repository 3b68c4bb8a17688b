// Package storage persists small JSON documents under well-known keys.
// It stands in for the browser's durable local storage: documents are read
// once at startup and rewritten after every mutation. Write failures are
// silent by contract: callers keep their in-memory state.
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"strings"

	"github.com/spf13/afero"
)

// Well-known document keys.
const (
	KeyGuestCart      = "guest_cart"
	KeyRecentlyViewed = "recently_viewed"
)

// Store reads and writes JSON documents in one directory of an afero.Fs.
type Store struct {
	fs     afero.Fs
	dir    string
	logger *slog.Logger
}

// New creates a store rooted at dir. The directory is created lazily on the
// first write.
func New(fsys afero.Fs, dir string, logger *slog.Logger) *Store {
	return &Store{fs: fsys, dir: dir, logger: logger}
}

// Sub returns a store for a child directory, used to give each shopper
// session its own namespace.
func (s *Store) Sub(name string) *Store {
	return &Store{fs: s.fs, dir: path.Join(s.dir, sanitize(name)), logger: s.logger}
}

// Exists reports whether anything was ever written under this store's
// directory.
func (s *Store) Exists() bool {
	ok, err := afero.DirExists(s.fs, s.dir)
	return err == nil && ok
}

// Load decodes the document at key into v.
// Returns false with a nil error when the document does not exist.
func (s *Store) Load(key string, v any) (bool, error) {
	data, err := afero.ReadFile(s.fs, s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("reading %s: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return true, nil
}

// Save encodes v and replaces the document at key.
// The write goes to a temp file first so a failed write never leaves a
// truncated document behind.
func (s *Store) Save(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", s.dir, err)
	}

	tmp := s.path(key) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := s.fs.Rename(tmp, s.path(key)); err != nil {
		_ = s.fs.Remove(tmp)
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

// Persist is Save with failures logged and swallowed.
func (s *Store) Persist(key string, v any) {
	if err := s.Save(key, v); err != nil {
		s.logger.Warn("local storage write failed",
			slog.String("key", key),
			slog.String("dir", s.dir),
			slog.String("error", err.Error()),
		)
	}
}

// Delete removes the document at key. Missing documents are not an error;
// other failures are logged and swallowed like Persist.
func (s *Store) Delete(key string) {
	err := s.fs.Remove(s.path(key))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Warn("local storage delete failed",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) path(key string) string {
	return path.Join(s.dir, sanitize(key)+".json")
}

// sanitize keeps keys and session names from escaping the store directory.
func sanitize(name string) string {
	r := strings.NewReplacer("/", "_", "\\", "_", "..", "_")
	return r.Replace(name)
}
