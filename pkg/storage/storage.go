// Package storage keeps uploaded documents on disk, addressed by a relative path.
package storage

import (
	"context"
	"errors"
	"io"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a stored path does not exist.
var ErrNotFound = errors.New("stored file not found")

// ErrInvalidPath is returned for paths that escape the storage root.
var ErrInvalidPath = errors.New("invalid storage path")

// FileInfo describes a stored upload.
type FileInfo struct {
	Path string // relative to the storage root: <owner>/<id8>_<name>
	Name string
	Size int64
}

// Storage saves and reads uploaded documents.
type Storage interface {
	Save(ctx context.Context, ownerID uuid.UUID, filename string, r io.Reader) (*FileInfo, error)
	Open(ctx context.Context, path string) (io.ReadCloser, error)
	ReadAll(ctx context.Context, path string) ([]byte, error)
	Delete(ctx context.Context, path string) error
}

// Config holds storage configuration.
type Config struct {
	LocalPath string
}

// New returns the storage backend for cfg.
func New(cfg Config) (Storage, error) {
	return NewLocalStorage(cfg.LocalPath)
}
