package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrUnsupportedFileType matches UnsupportedFileTypeError with errors.Is.
var ErrUnsupportedFileType = errors.New("unsupported file type")

// UnsupportedFileTypeError names the rejected extension.
type UnsupportedFileTypeError struct {
	Ext string
}

func (e *UnsupportedFileTypeError) Error() string {
	return fmt.Sprintf("unsupported file type %q", e.Ext)
}

func (e *UnsupportedFileTypeError) Is(target error) bool {
	return target == ErrUnsupportedFileType
}

// Supported document extensions.
const (
	ExtText = ".txt"
	ExtPDF  = ".pdf"
)

// Fetcher reads the bytes of a document from a local path or gs:// URI.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// Extension returns the lower-cased extension of location.
func Extension(location string) string {
	return strings.ToLower(filepath.Ext(location))
}

// CheckExtension returns an UnsupportedFileTypeError unless location is a
// text or PDF document.
func CheckExtension(location string) error {
	switch ext := Extension(location); ext {
	case ExtText, ExtPDF:
		return nil
	default:
		return &UnsupportedFileTypeError{Ext: ext}
	}
}
