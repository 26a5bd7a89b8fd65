package service

import (
	"context"
	"errors"
	"log/slog"

	"filedrop/internal/auth"
	"filedrop/internal/config"
	"filedrop/internal/ident"
	"filedrop/internal/storage"
	"filedrop/internal/store"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrPayloadTooLarge    = errors.New("payload too large")
	ErrIdentityResolution = errors.New("identity resolution failed")
	ErrConflict           = errors.New("conflict")
	ErrInvalidInput       = errors.New("invalid input")
)

// publicError carries a message that is safe to show to the client while
// still matching its sentinel with errors.Is.
type publicError struct {
	kind error
	msg  string
}

func (e *publicError) Error() string { return e.msg }
func (e *publicError) Unwrap() error { return e.kind }

func newPublicError(kind error, msg string) error {
	return &publicError{kind: kind, msg: msg}
}

// FileStore is the record side of the store.
type FileStore interface {
	ident.IdentifierLister
	InsertFile(ctx context.Context, rec store.FileRecord) error
	GetFile(ctx context.Context, identifier string) (store.FileRecord, error)
	Ping(ctx context.Context) error
}

// UserStore is the credential side of the store.
type UserStore interface {
	auth.CredentialSource
	GetUser(ctx context.Context, username string) (store.User, error)
	ListUsernames(ctx context.Context) ([]string, error)
	CreateUser(ctx context.Context, username, keyHash string) error
	UpdateUserKey(ctx context.Context, username, keyHash string) error
	DeleteUser(ctx context.Context, username string) error
}

type Options struct {
	MaxUploadBytes int64
	// AttributeUploads records the uploading user on each file and rejects the
	// upload when the key cannot be mapped back to a user.
	AttributeUploads bool
	KeyHashScheme    string
}

func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		MaxUploadBytes:   cfg.MaxUploadBytes,
		AttributeUploads: cfg.AttributeUploads,
		KeyHashScheme:    cfg.KeyHashScheme,
	}
}

type Service struct {
	files    FileStore
	users    UserStore
	blobs    storage.BlobStorage
	verifier *auth.Verifier
	alloc    *ident.Allocator
	opts     Options
	logger   *slog.Logger
}

// New wires the service. blobs may be nil, in which case payloads are kept
// inline in the files table.
func New(files FileStore, users UserStore, blobs storage.BlobStorage, opts Options, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = config.DefaultMaxUploadBytes
	}
	if opts.KeyHashScheme == "" {
		opts.KeyHashScheme = auth.SchemePBKDF2SHA256
	}
	return &Service{
		files:    files,
		users:    users,
		blobs:    blobs,
		verifier: auth.NewVerifier(users, logger),
		alloc:    ident.NewAllocator(files),
		opts:     opts,
		logger:   logger,
	}
}

func (s *Service) MaxUploadBytes() int64 {
	return s.opts.MaxUploadBytes
}

// Healthy reports whether the record store answers.
func (s *Service) Healthy(ctx context.Context) error {
	return s.files.Ping(ctx)
}
