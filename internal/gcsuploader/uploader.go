package gcsuploader

import (
	"context"
	"fmt"
	"io"
	"time"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
)

const uploadTimeout = 2 * time.Minute

// GCSStorage stores documents in a single bucket. It assumes Application
// Default Credentials are configured.
type GCSStorage struct {
	client *storage.Client
	bucket string
	prefix string
}

var _ Storage = (*GCSStorage)(nil)

// NewGCSStorage creates a storage client for bucket. Objects are written
// under prefix.
func NewGCSStorage(ctx context.Context, bucket, prefix string) (*GCSStorage, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("NewGCSStorage: create storage client: %w", err)
	}
	return &GCSStorage{client: client, bucket: bucket, prefix: prefix}, nil
}

// Close releases the storage client.
func (s *GCSStorage) Close() error {
	return s.client.Close()
}

// Put uploads r as prefix/<uuid>-name and returns its gs:// URI.
func (s *GCSStorage) Put(ctx context.Context, name string, r io.Reader) (string, error) {
	objectName := objectKey(s.prefix, name)

	ctx, cancel := context.WithTimeout(ctx, uploadTimeout)
	defer cancel()

	w := s.client.Bucket(s.bucket).Object(objectName).NewWriter(ctx)
	if _, err := io.Copy(w, r); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("GCSStorage.Put: copy to writer: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("GCSStorage.Put: finalize upload: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", s.bucket, objectName), nil
}

// Fetch downloads the object named by a gs:// URI. The URI may point at
// any bucket the credentials can read.
func (s *GCSStorage) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseGCSURI(uri)
	if err != nil {
		return nil, err
	}

	rc, err := s.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("GCSStorage.Fetch: reading object %s/%s: %w", bucket, object, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("GCSStorage.Fetch: reading bytes: %w", err)
	}
	return data, nil
}

func objectKey(prefix, name string) string {
	key := uuid.NewString() + "-" + ExtractFilename(name)
	if prefix == "" {
		return key
	}
	return prefix + "/" + key
}
