package storage

import (
	"context"
	"fmt"

	"filedrop/internal/config"
)

// FromConfig builds the payload backend selected by cfg.Backend. The database
// backend has no out-of-band storage and yields a nil BlobStorage.
func FromConfig(ctx context.Context, cfg config.StorageConfig) (BlobStorage, error) {
	switch cfg.Backend {
	case config.BackendDatabase, "":
		return nil, nil
	case config.BackendLocal:
		return NewLocalBlobStore(cfg.Root)
	case config.BackendBolt:
		return OpenBoltBlobStore(cfg.BoltPath)
	case config.BackendS3:
		client, err := NewS3Client(ctx, S3ClientOptions{
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			UsePathStyle:    cfg.S3UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		return NewS3BlobStore(S3Options{Client: client, Bucket: cfg.S3Bucket, Prefix: cfg.S3Prefix}), nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
