package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// FileRecord is one stored upload. Records are write-once: there is no update
// path. Exactly one of Data and StorageKey carries the payload.
type FileRecord struct {
	Identifier  string
	Filename    string
	ContentType string
	Data        []byte
	Uploader    *string
	SizeBytes   int64
	StorageKey  *string
	CreatedAt   time.Time
}

// InsertFile commits rec. The identifier is the only unique column of files,
// so a lost allocation race surfaces as ErrDuplicateIdentifier.
func (s *Store) InsertFile(ctx context.Context, rec FileRecord) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO files (file_id, filename, data, content_type, uploader, size_bytes, storage_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, rec.Identifier, rec.Filename, rec.Data, rec.ContentType, rec.Uploader, rec.SizeBytes, rec.StorageKey)
	if err != nil {
		if isUniqueViolation(err, "files") {
			return ErrDuplicateIdentifier
		}
		return fmt.Errorf("insert file: %w", err)
	}
	return nil
}

// GetFile looks a record up by exact identifier.
func (s *Store) GetFile(ctx context.Context, identifier string) (FileRecord, error) {
	var rec FileRecord
	err := s.db.QueryRow(ctx, `
		SELECT file_id, filename, data, content_type, uploader, size_bytes, storage_key, created_at
		FROM files
		WHERE file_id = $1
	`, identifier).Scan(
		&rec.Identifier, &rec.Filename, &rec.Data, &rec.ContentType,
		&rec.Uploader, &rec.SizeBytes, &rec.StorageKey, &rec.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return FileRecord{}, ErrNotFound
		}
		return FileRecord{}, fmt.Errorf("get file: %w", err)
	}
	if rec.SizeBytes == 0 && rec.Data != nil {
		rec.SizeBytes = int64(len(rec.Data))
	}
	return rec, nil
}

// ListIdentifiers returns the set of identifiers currently stored. The query is
// answered from the primary key index.
func (s *Store) ListIdentifiers(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT file_id FROM files`)
	if err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	defer rows.Close()

	ids := make(map[string]struct{})
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("list identifiers: %w", err)
		}
		ids[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list identifiers: %w", err)
	}
	return ids, nil
}

// ListStorageKeys returns every storage key referenced by a record, i.e. the
// set of external payloads that must be kept.
func (s *Store) ListStorageKeys(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.Query(ctx, `SELECT storage_key FROM files WHERE storage_key IS NOT NULL`)
	if err != nil {
		return nil, fmt.Errorf("list storage keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list storage keys: %w", err)
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}
