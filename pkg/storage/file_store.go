package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"
)

// FileStore keeps objects on local disk for development. PresignGet returns a
// plain URL under publicBase; the web service serves those paths itself.
type FileStore struct {
	basePath   string
	publicBase string
}

// NewFileStore creates the base directory if missing.
func NewFileStore(basePath, publicBase string) (*FileStore, error) {
	if strings.TrimSpace(basePath) == "" {
		return nil, fmt.Errorf("storage base path is required")
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{basePath: basePath, publicBase: strings.TrimRight(publicBase, "/")}, nil
}

// Root returns the directory objects are written under.
func (f *FileStore) Root() string {
	return f.basePath
}

// Put writes the object atomically through a temp file.
func (f *FileStore) Put(_ context.Context, key string, r io.Reader, _ int64, _ string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(target), ".upload-*")
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return fmt.Errorf("write file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}
	if err := os.Rename(tmp.Name(), target); err != nil {
		return fmt.Errorf("move file: %w", err)
	}
	return nil
}

// Get opens a stored object.
func (f *FileStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	target, err := f.resolve(key)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(target)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	return file, nil
}

// PresignGet returns the public URL of the object; expiry is not enforced.
func (f *FileStore) PresignGet(_ context.Context, key string, _ time.Duration) (string, error) {
	if _, err := f.resolve(key); err != nil {
		return "", err
	}
	u := f.publicBase + "/media/" + (&url.URL{Path: key}).EscapedPath()
	return u, nil
}

// Delete removes an object. Missing objects are not an error.
func (f *FileStore) Delete(_ context.Context, key string) error {
	target, err := f.resolve(key)
	if err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete file: %w", err)
	}
	return nil
}

// resolve maps a key to a path that cannot escape basePath.
func (f *FileStore) resolve(key string) (string, error) {
	key = strings.TrimSpace(key)
	clean := path.Clean("/" + key)
	if key == "" || clean == "/" || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid object key %q", key)
	}
	return filepath.Join(f.basePath, filepath.FromSlash(strings.TrimPrefix(clean, "/"))), nil
}
