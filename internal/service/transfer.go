package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"filedrop/internal/ident"
	"filedrop/internal/storage"
	"filedrop/internal/store"
)

type Disposition string

const (
	DispositionInline     Disposition = "inline"
	DispositionAttachment Disposition = "attachment"
)

// Transfer is an opened stored file ready to be streamed. Callers must Close it.
type Transfer struct {
	Identifier  string
	Filename    string
	ContentType string
	Size        int64
	Disposition Disposition
	Body        io.ReadCloser
}

func (t *Transfer) Close() error {
	return t.Body.Close()
}

// ContentDisposition renders the header value, e.g. `inline; filename="cat.png"`.
// Names that cannot sit in a quoted string are also sent as RFC 5987 filename*.
func (t *Transfer) ContentDisposition() string {
	if isPlainFilename(t.Filename) {
		return fmt.Sprintf(`%s; filename="%s"`, t.Disposition, t.Filename)
	}
	fallback := strings.Map(func(r rune) rune {
		if r < 0x20 || r > 0x7e || r == '"' || r == '\\' {
			return '_'
		}
		return r
	}, t.Filename)
	return fmt.Sprintf(`%s; filename="%s"; filename*=UTF-8''%s`, t.Disposition, fallback, url.PathEscape(t.Filename))
}

func isPlainFilename(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c < 0x20 || c > 0x7e || c == '"' || c == '\\' {
			return false
		}
	}
	return true
}

// StripExtension drops everything from the first '.', so "abc.png" and "abc"
// name the same record.
func StripExtension(raw string) string {
	if i := strings.IndexByte(raw, '.'); i >= 0 {
		return raw[:i]
	}
	return raw
}

func (s *Service) View(ctx context.Context, rawID string) (*Transfer, error) {
	return s.open(ctx, rawID, DispositionInline)
}

func (s *Service) Download(ctx context.Context, rawID string) (*Transfer, error) {
	return s.open(ctx, rawID, DispositionAttachment)
}

func (s *Service) open(ctx context.Context, rawID string, disposition Disposition) (*Transfer, error) {
	id := StripExtension(rawID)
	if !ident.Valid(id) {
		return nil, fileNotFound(id)
	}
	rec, err := s.files.GetFile(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fileNotFound(id)
		}
		return nil, fmt.Errorf("get file %s: %w", id, err)
	}

	t := &Transfer{
		Identifier:  rec.Identifier,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		Size:        rec.SizeBytes,
		Disposition: disposition,
	}
	if rec.StorageKey == nil {
		t.Body = io.NopCloser(bytes.NewReader(rec.Data))
		t.Size = int64(len(rec.Data))
		return t, nil
	}

	if s.blobs == nil {
		return nil, fmt.Errorf("file %s is stored externally but no storage backend is configured", id)
	}
	blob, err := s.blobs.Open(ctx, *rec.StorageKey)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			s.logger.ErrorContext(ctx, "payload missing for stored file", "file_id", id, "storage_key", *rec.StorageKey)
		}
		return nil, fmt.Errorf("open payload of %s: %w", id, err)
	}
	t.Body = blob
	t.Size = blob.Size()
	return t, nil
}

func fileNotFound(id string) error {
	return newPublicError(ErrNotFound, fmt.Sprintf("There is no file with the entry %q.", id))
}
