// Package sweep removes external payloads that no file record references.
//
// Uploads write the payload before inserting the record, and delete it again
// if the insert fails. A crash between those steps leaves an orphan behind;
// the sweeper collects them.
package sweep

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"filedrop/internal/storage"
)

// DefaultGrace is how old a payload must be before it can be swept. An upload
// inserts its record right after writing the payload, well within this window.
const DefaultGrace = time.Hour

// KeyLister reports the storage keys that records still reference.
type KeyLister interface {
	ListStorageKeys(ctx context.Context) (map[string]struct{}, error)
}

type Summary struct {
	Scanned int
	Young   int
	Deleted int
	Failed  int
}

type Sweeper struct {
	keys   KeyLister
	blobs  storage.BlobStorage
	grace  time.Duration
	now    func() time.Time
	logger *slog.Logger
}

func New(keys KeyLister, blobs storage.BlobStorage, grace time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if grace <= 0 {
		grace = DefaultGrace
	}
	return &Sweeper{
		keys:   keys,
		blobs:  blobs,
		grace:  grace,
		now:    time.Now,
		logger: logger,
	}
}

// Sweep walks the payloads first and only then loads the referenced keys, so a
// payload whose record was committed during the walk is never deleted.
func (s *Sweeper) Sweep(ctx context.Context) (Summary, error) {
	var sum Summary
	cutoff := s.now().Add(-s.grace)

	var candidates []string
	err := s.blobs.List(ctx, func(info storage.BlobInfo) error {
		sum.Scanned++
		if info.ModTime.After(cutoff) {
			sum.Young++
			return nil
		}
		candidates = append(candidates, info.Key)
		return nil
	})
	if err != nil {
		return sum, fmt.Errorf("list payloads: %w", err)
	}
	if len(candidates) == 0 {
		return sum, nil
	}

	referenced, err := s.keys.ListStorageKeys(ctx)
	if err != nil {
		return sum, fmt.Errorf("list referenced keys: %w", err)
	}
	for _, key := range candidates {
		if _, ok := referenced[key]; ok {
			continue
		}
		if err := s.blobs.Delete(ctx, key); err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			s.logger.Warn("delete orphaned payload", "storage_key", key, "error", err)
			sum.Failed++
			continue
		}
		s.logger.Debug("deleted orphaned payload", "storage_key", key)
		sum.Deleted++
	}
	return sum, nil
}
