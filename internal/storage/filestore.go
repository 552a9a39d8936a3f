// Package storage abstracts the opaque blob store backing attachments.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// FileStore stores attachment blobs under opaque locators. The size
// returned by Save is authoritative: attachment rows derive their size
// from it, never from client input.
type FileStore interface {
	Save(ctx context.Context, name string, r io.Reader) (locator string, size int64, err error)
	Open(ctx context.Context, locator string) (io.ReadCloser, error)
	Remove(ctx context.Context, locator string) error
}

// DiskStore keeps blobs in a flat directory, keyed by a uuid locator
// that preserves the original extension.
type DiskStore struct {
	dir string
}

func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create attachment dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) Save(_ context.Context, name string, r io.Reader) (string, int64, error) {
	locator := uuid.NewString() + filepath.Ext(name)
	f, err := os.Create(filepath.Join(s.dir, locator))
	if err != nil {
		return "", 0, err
	}
	size, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(s.dir, locator))
		return "", 0, err
	}
	return locator, size, nil
}

func (s *DiskStore) Open(_ context.Context, locator string) (io.ReadCloser, error) {
	// Locators are generated server-side, but keep path traversal out anyway.
	return os.Open(filepath.Join(s.dir, filepath.Base(locator)))
}

func (s *DiskStore) Remove(_ context.Context, locator string) error {
	return os.Remove(filepath.Join(s.dir, filepath.Base(locator)))
}
