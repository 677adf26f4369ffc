package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// LocalStorage keeps uploads in a directory on disk.
type LocalStorage struct {
	dir string
}

var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates dir if needed.
func NewLocalStorage(dir string) (*LocalStorage, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("NewLocalStorage: %w", err)
	}
	return &LocalStorage{dir: dir}, nil
}

// Put writes r to dir/<uuid>-name and returns the file path.
func (s *LocalStorage) Put(_ context.Context, name string, r io.Reader) (string, error) {
	dst := filepath.Join(s.dir, objectKey("", name))

	f, err := os.Create(dst)
	if err != nil {
		return "", fmt.Errorf("LocalStorage.Put: create %s: %w", dst, err)
	}
	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return "", fmt.Errorf("LocalStorage.Put: write %s: %w", dst, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("LocalStorage.Put: close %s: %w", dst, err)
	}
	return dst, nil
}

// Fetch reads a local file.
func (s *LocalStorage) Fetch(_ context.Context, location string) ([]byte, error) {
	if IsGCSURI(location) {
		return nil, fmt.Errorf("LocalStorage.Fetch %s: %w", location, ErrNoBucket)
	}
	data, err := os.ReadFile(location)
	if err != nil {
		return nil, fmt.Errorf("LocalStorage.Fetch: %w", err)
	}
	return data, nil
}

// Fetcher reads gs:// URIs through GCS when configured and everything
// else from the local filesystem.
type Fetcher struct {
	GCS *GCSStorage
}

// Fetch implements the ingestion source lookup.
func (f Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if !IsGCSURI(location) {
		data, err := os.ReadFile(location)
		if err != nil {
			return nil, fmt.Errorf("Fetcher.Fetch: %w", err)
		}
		return data, nil
	}
	if f.GCS == nil {
		return nil, fmt.Errorf("Fetcher.Fetch %s: %w", location, ErrNoBucket)
	}
	return f.GCS.Fetch(ctx, location)
}
