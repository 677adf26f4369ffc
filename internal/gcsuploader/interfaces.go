// Package gcsuploader stores uploaded documents and fetches documents for
// ingestion, from Google Cloud Storage or a local directory.
package gcsuploader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
)

// ErrNoBucket is returned when a gs:// URI is fetched without a bucket client.
var ErrNoBucket = errors.New("cloud storage is not configured")

// Storage keeps uploaded documents and returns a location that Fetch
// understands: a gs:// URI or a local path.
type Storage interface {
	Put(ctx context.Context, name string, r io.Reader) (string, error)
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// IsGCSURI reports whether location names a Cloud Storage object.
func IsGCSURI(location string) bool {
	return strings.HasPrefix(location, "gs://")
}

// ParseGCSURI splits gs://bucket/path/to/object into bucket and object.
func ParseGCSURI(uri string) (bucket, object string, err error) {
	if !IsGCSURI(uri) {
		return "", "", fmt.Errorf("invalid GCS URI: %s", uri)
	}

	parts := strings.SplitN(strings.TrimPrefix(uri, "gs://"), "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid GCS URI (no object path): %s", uri)
	}
	return parts[0], parts[1], nil
}

// ExtractFilename returns the base name of a gs:// URI or local path.
// e.g., "gs://bucket/folder/file.pdf" → "file.pdf"
func ExtractFilename(location string) string {
	if !IsGCSURI(location) {
		return path.Base(strings.ReplaceAll(location, "\\", "/"))
	}

	trimmed := strings.TrimPrefix(location, "gs://")
	parts := strings.SplitN(trimmed, "/", 2)
	if len(parts) < 2 {
		return trimmed
	}
	return path.Base(parts[1])
}
