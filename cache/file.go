// Package cache stores the last photo URL known to carry the canonical chat
// image, plus the scratch blob a downloaded photo is hashed from.
package cache

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/onnwee/chat-guard/guard"
)

// Default file names inside the cache directory.
const (
	URLFileName  = "cache-url"
	TempFileName = "cache-temp"

	dirPerm  = 0o755
	filePerm = 0o644
)

var _ guard.CacheStore = (*FileStore)(nil)

// FileStore keeps the cached URL and the temp blob as plain files.
type FileStore struct {
	URLPath  string
	TempPath string
}

// NewFileStore returns a store using the default file names under dir.
func NewFileStore(dir string) *FileStore {
	return &FileStore{
		URLPath:  filepath.Join(dir, URLFileName),
		TempPath: filepath.Join(dir, TempFileName),
	}
}

// GetCachedURL reads the first line of the URL file.
func (s *FileStore) GetCachedURL() (string, error) {
	data, err := os.ReadFile(s.URLPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", guard.ErrCacheMiss
		}
		return "", fmt.Errorf("%w: read %s: %w", guard.ErrIO, s.URLPath, err)
	}
	line, _, _ := strings.Cut(string(data), "\n")
	line = strings.TrimSpace(line)
	if line == "" {
		return "", guard.ErrCacheMiss
	}
	return line, nil
}

// SetCachedURL replaces the URL file through a temp file and rename, so a
// reader sees either the old URL or the new one.
func (s *FileStore) SetCachedURL(url string) error {
	if err := writeFileAtomic(s.URLPath, []byte(url)); err != nil {
		return fmt.Errorf("%w: %w", guard.ErrIO, err)
	}
	return nil
}

// SaveTemp writes the scratch blob. A partially written blob is removed.
func (s *FileStore) SaveTemp(data []byte) error {
	if err := os.MkdirAll(filepath.Dir(s.TempPath), dirPerm); err != nil {
		return fmt.Errorf("%w: create cache dir: %w", guard.ErrIO, err)
	}
	if err := os.WriteFile(s.TempPath, data, filePerm); err != nil {
		if rmErr := os.Remove(s.TempPath); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
			slog.Warn("failed to remove partial temp blob", slog.String("path", s.TempPath), slog.Any("err", rmErr))
		}
		return fmt.Errorf("%w: write %s: %w", guard.ErrIO, s.TempPath, err)
	}
	return nil
}

// OpenTemp opens the scratch blob for reading.
func (s *FileStore) OpenTemp() (io.ReadCloser, error) {
	f, err := os.Open(s.TempPath)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %w", guard.ErrIO, s.TempPath, err)
	}
	return f, nil
}

// RemoveTemp deletes the scratch blob; a missing blob is fine.
func (s *FileStore) RemoveTemp() error {
	if err := os.Remove(s.TempPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: remove %s: %w", guard.ErrIO, s.TempPath, err)
	}
	return nil
}

// SweepStale removes leftovers of an interrupted run: the temp blob and any
// orphaned atomic-write temp files next to the URL file.
func (s *FileStore) SweepStale() int {
	removed := 0
	if err := os.Remove(s.TempPath); err == nil {
		removed++
	}
	matches, _ := filepath.Glob(s.URLPath + ".tmp.*")
	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			removed++
		} else {
			slog.Warn("failed to remove stale cache file", slog.String("path", m), slog.Any("err", err))
		}
	}
	if removed > 0 {
		slog.Info("stale cache files removed", slog.Int("removed", removed))
	}
	return removed
}

func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", path, err)
	}
	tmpPath := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp for %s: %w", path, err)
	}
	if err := tmp.Chmod(filePerm); err != nil {
		return fmt.Errorf("chmod temp for %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp for %s: %w", path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("rename temp for %s: %w", path, err)
	}
	return nil
}
