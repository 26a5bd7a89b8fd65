package storage

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"go.etcd.io/bbolt"
)

var (
	bucketBlobs = []byte("blobs")
	// bucketWritten maps a key to its write time in unix nanoseconds.
	bucketWritten = []byte("written")
)

// BoltBlobStore keeps payloads in a single bbolt file. Values are held in
// memory while being written and read, so it suits small deployments.
type BoltBlobStore struct {
	db *bbolt.DB
}

var _ BlobStorage = (*BoltBlobStore)(nil)

func OpenBoltBlobStore(dbPath string) (*BoltBlobStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o700); err != nil {
		return nil, fmt.Errorf("create bolt directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0o600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range [][]byte{bucketBlobs, bucketWritten} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}
	return &BoltBlobStore{db: db}, nil
}

func (b *BoltBlobStore) Put(_ context.Context, key string, r io.Reader, size int64, _ string) error {
	if err := validateKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read blob: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("read blob: got %d bytes, want %d", len(data), size)
	}
	written := binary.BigEndian.AppendUint64(nil, uint64(time.Now().UnixNano()))
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Put([]byte(key), data); err != nil {
			return err
		}
		return tx.Bucket(bucketWritten).Put([]byte(key), written)
	})
}

func (b *BoltBlobStore) Open(_ context.Context, key string) (*BlobFile, error) {
	var data []byte
	err := b.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketBlobs).Get([]byte(key))
		if v == nil {
			return ErrNotFound
		}
		// v is only valid inside the transaction.
		data = bytes.Clone(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return NewBlobFile(io.NopCloser(bytes.NewReader(data)), int64(len(data))), nil
}

func (b *BoltBlobStore) Delete(_ context.Context, key string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.Bucket(bucketBlobs).Delete([]byte(key)); err != nil {
			return err
		}
		return tx.Bucket(bucketWritten).Delete([]byte(key))
	})
}

// List collects keys in one read transaction and calls fn after it ends, so fn
// may Delete.
func (b *BoltBlobStore) List(ctx context.Context, fn func(BlobInfo) error) error {
	var infos []BlobInfo
	err := b.db.View(func(tx *bbolt.Tx) error {
		written := tx.Bucket(bucketWritten)
		return tx.Bucket(bucketBlobs).ForEach(func(k, _ []byte) error {
			info := BlobInfo{Key: string(k)}
			if v := written.Get(k); len(v) == 8 {
				info.ModTime = time.Unix(0, int64(binary.BigEndian.Uint64(v)))
			}
			infos = append(infos, info)
			return nil
		})
	})
	if err != nil {
		return err
	}
	for _, info := range infos {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(info); err != nil {
			return err
		}
	}
	return nil
}

func (b *BoltBlobStore) Close() error { return b.db.Close() }
