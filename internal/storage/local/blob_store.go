// Package local implements a local filesystem blob store.
package local

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrExists is returned when upsert is false and the file is already present.
var ErrExists = errors.New("object already exists")

// Config captures the parameters for the local filesystem blob store.
type Config struct {
	// BaseDir is the root directory where blobs will be stored.
	BaseDir string `mapstructure:"base_dir" yaml:"base_dir"`
}

// BlobStore writes artifacts to the local filesystem.
type BlobStore struct {
	baseDir string
}

// New creates a BlobStore rooted at cfg.BaseDir, creating the directory if needed.
func New(cfg Config) (*BlobStore, error) {
	dir := strings.TrimSpace(cfg.BaseDir)
	if dir == "" {
		return nil, errors.New("local store: base directory is required")
	}
	if err := ensureWritableDir(dir); err != nil {
		return nil, fmt.Errorf("local store %s: %w", dir, err)
	}
	return &BlobStore{baseDir: dir}, nil
}

func ensureWritableDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	case err != nil:
		return fmt.Errorf("stat: %w", err)
	case !info.IsDir():
		return errors.New("not a directory")
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	name := probe.Name()
	_ = probe.Close()
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("remove probe: %w", err)
	}
	return nil
}

// Upload writes data to a file under the base directory.
func (s *BlobStore) Upload(_ context.Context, path string, data []byte, _ string, upsert bool) error {
	fullPath, err := s.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o750); err != nil {
		return fmt.Errorf("create parent of %s: %w", path, err)
	}

	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if !upsert {
		flags = os.O_WRONLY | os.O_CREATE | os.O_EXCL
	}
	// #nosec G304 -- fullPath is confined to baseDir by resolve.
	f, err := os.OpenFile(fullPath, flags, 0o600)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%s: %w", path, ErrExists)
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

// URI returns the file:// location of path.
func (s *BlobStore) URI(path string) string {
	return fmt.Sprintf("file://%s", filepath.Join(s.baseDir, path))
}

func (s *BlobStore) resolve(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", errors.New("path is required")
	}
	root := filepath.Clean(s.baseDir)
	full := filepath.Join(root, path)
	if rel, err := filepath.Rel(root, full); err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s: path traversal detected", path)
	}
	return full, nil
}
