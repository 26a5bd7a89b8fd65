package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("blob not found")

// BlobFile is an opened payload. Callers must Close it.
type BlobFile struct {
	rc   io.ReadCloser
	size int64
}

func NewBlobFile(rc io.ReadCloser, size int64) *BlobFile {
	return &BlobFile{rc: rc, size: size}
}

func (b *BlobFile) Read(p []byte) (int, error) { return b.rc.Read(p) }
func (b *BlobFile) Close() error               { return b.rc.Close() }
func (b *BlobFile) Size() int64                { return b.size }

// BlobStorage keeps upload payloads outside the database. Keys are minted by
// NewKey and never reused, so Put never overwrites a live payload.
type BlobStorage interface {
	// Put stores exactly size bytes read from r under key.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error

	// Open returns ErrNotFound for an unknown key.
	Open(ctx context.Context, key string) (*BlobFile, error)

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// List calls fn once per stored payload, in no particular order. A non-nil
	// error from fn stops the walk and is returned.
	List(ctx context.Context, fn func(BlobInfo) error) error

	Close() error
}

// BlobInfo describes a stored payload. ModTime is when it was written; the zero
// time means the backend does not know.
type BlobInfo struct {
	Key     string
	ModTime time.Time
}

// NewKey returns a fresh storage key of the form "files/ab/<uuid>".
func NewKey() string {
	id := uuid.New().String()
	return path.Join("files", id[:2], id)
}

func validateKey(key string) error {
	clean := path.Clean(key)
	if key == "" || clean != key || strings.HasPrefix(clean, "/") || strings.HasPrefix(clean, "..") {
		return fmt.Errorf("invalid blob key %q", key)
	}
	return nil
}
