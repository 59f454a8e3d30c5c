// Package storage keeps whole JSON documents in a key/value backend: the
// local filesystem or an S3 bucket.
package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	apperrors "github.com/wfunc/emojirades/internal/errors"
)

// Backend reads and writes whole objects by key. Keys use forward slashes.
type Backend interface {
	// Read returns an ErrNotFound AppError when key does not exist.
	Read(ctx context.Context, key string) ([]byte, error)
	// Write replaces key. The object is durable when it returns nil.
	Write(ctx context.Context, key string, data []byte) error
}

// IsNotFound reports a missing key.
func IsNotFound(err error) bool {
	return apperrors.Is(err, apperrors.ErrNotFound)
}

// FileBackend stores objects as files under Root.
type FileBackend struct {
	Root string
}

// NewFileBackend creates a backend rooted at dir.
func NewFileBackend(dir string) *FileBackend {
	return &FileBackend{Root: dir}
}

func (b *FileBackend) path(key string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(key))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", apperrors.Newf(apperrors.ErrInvalidParam, "key %q escapes the storage root", key)
	}
	return filepath.Join(b.Root, clean), nil
}

// Read implements Backend.
func (b *FileBackend) Read(ctx context.Context, key string) ([]byte, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p)
	if os.IsNotExist(err) {
		return nil, apperrors.Newf(apperrors.ErrNotFound, "%s", key)
	}
	return data, err
}

// Write implements Backend. The file is written to a temporary sibling,
// synced and renamed over the target.
func (b *FileBackend) Write(ctx context.Context, key string, data []byte) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(p)+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, p)
}
