package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"filedrop/internal/storage"
	"filedrop/internal/store"

	"github.com/dustin/go-humanize"
)

type Payload struct {
	Filename    string
	ContentType string
	// Size is the declared payload length, or -1 when unknown. The body is
	// still bounded by the upload ceiling while it is read.
	Size int64
	Body io.Reader
}

// PayloadSource yields the uploaded file. It may return an error wrapping
// ErrPayloadTooLarge when the transport already saw too many bytes.
type PayloadSource func() (Payload, error)

// Upload stores a new file and returns its identifier. open is only called
// once the credential is accepted, so unauthorized bodies are never read.
// Nothing is written until the credential, the size and (when attributing)
// the uploader have all been checked; the row insert is the single commit point.
func (s *Service) Upload(ctx context.Context, credential string, open PayloadSource) (string, error) {
	ok, err := s.verifier.Authorize(ctx, credential)
	if err != nil {
		return "", fmt.Errorf("authorize upload: %w", err)
	}
	if !ok {
		return "", newPublicError(ErrUnauthorized, "Forbidden")
	}

	in, err := open()
	if err != nil {
		if errors.Is(err, ErrPayloadTooLarge) {
			return "", s.tooLarge()
		}
		return "", err
	}
	if in.Size > s.opts.MaxUploadBytes {
		return "", s.tooLarge()
	}

	var uploader *string
	if s.opts.AttributeUploads {
		username, found, err := s.verifier.Verify(ctx, credential)
		if err != nil {
			return "", fmt.Errorf("resolve uploader: %w", err)
		}
		if !found {
			return "", newPublicError(ErrIdentityResolution,
				"Could not resolve the uploader for this API key, please report this or try again.")
		}
		uploader = &username
	}

	contentType := in.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	rec := store.FileRecord{
		Filename:    in.Filename,
		ContentType: contentType,
		Uploader:    uploader,
	}

	var cleanup func()
	if s.blobs == nil {
		data, err := io.ReadAll(io.LimitReader(in.Body, s.opts.MaxUploadBytes+1))
		if err != nil {
			return "", fmt.Errorf("read upload: %w", err)
		}
		if int64(len(data)) > s.opts.MaxUploadBytes {
			return "", s.tooLarge()
		}
		rec.Data = data
		rec.SizeBytes = int64(len(data))
	} else {
		if in.Size < 0 {
			return "", newPublicError(ErrInvalidInput, "Upload size is unknown.")
		}
		key := storage.NewKey()
		if err := s.blobs.Put(ctx, key, in.Body, in.Size, contentType); err != nil {
			return "", fmt.Errorf("store payload: %w", err)
		}
		rec.StorageKey = &key
		rec.SizeBytes = in.Size
		cleanup = func() {
			delCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
			defer cancel()
			if err := s.blobs.Delete(delCtx, key); err != nil {
				s.logger.ErrorContext(ctx, "orphaned payload after failed upload", "storage_key", key, "error", err)
			}
		}
	}

	id, err := s.alloc.Claim(ctx, func(ctx context.Context, id string) error {
		rec.Identifier = id
		return s.files.InsertFile(ctx, rec)
	})
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return "", fmt.Errorf("persist upload: %w", err)
	}

	s.logger.InfoContext(ctx, "file uploaded",
		"file_id", id,
		"size", rec.SizeBytes,
		"content_type", contentType,
		"attributed", uploader != nil,
	)
	return id, nil
}

func (s *Service) tooLarge() error {
	limit := naturalSize(s.opts.MaxUploadBytes)
	return newPublicError(ErrPayloadTooLarge, fmt.Sprintf("Filesize can't be over %s.", limit))
}

// naturalSize renders n in decimal units with one fractional digit, e.g.
// "500.0 MB", and whole bytes below a kilobyte.
func naturalSize(n int64) string {
	switch {
	case n == 1:
		return "1 Byte"
	case n < 1000:
		return fmt.Sprintf("%d Bytes", n)
	}
	v, prefix := humanize.ComputeSI(float64(n))
	return fmt.Sprintf("%.1f %sB", v, prefix)
}
