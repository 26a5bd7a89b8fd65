package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"filedrop/internal/auth"
	"filedrop/internal/ident"
	"filedrop/internal/store"
)

// The operations below back the filedropctl admin CLI. Each returned secret
// is shown once; only its hash is stored.

func (s *Service) CreateUser(ctx context.Context, username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", fmt.Errorf("%w: username is required", ErrInvalidInput)
	}
	secret, keyHash, err := s.newSecret()
	if err != nil {
		return "", err
	}
	if err := s.users.CreateUser(ctx, username, keyHash); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return "", fmt.Errorf("%w: user %q already exists", ErrConflict, username)
		}
		return "", err
	}
	return secret, nil
}

func (s *Service) RemoveUser(ctx context.Context, username string) error {
	if err := s.users.DeleteUser(ctx, username); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: user %q", ErrNotFound, username)
		}
		return err
	}
	return nil
}

// RotateKey replaces the user's key. The old key stops working immediately.
func (s *Service) RotateKey(ctx context.Context, username string) (string, error) {
	secret, keyHash, err := s.newSecret()
	if err != nil {
		return "", err
	}
	if err := s.users.UpdateUserKey(ctx, username, keyHash); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", fmt.Errorf("%w: user %q", ErrNotFound, username)
		}
		return "", err
	}
	return secret, nil
}

func (s *Service) ListUsers(ctx context.Context) ([]string, error) {
	return s.users.ListUsernames(ctx)
}

// CheckKey reports whether key belongs to username.
func (s *Service) CheckKey(ctx context.Context, username, key string) (bool, error) {
	u, err := s.users.GetUser(ctx, username)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return false, fmt.Errorf("%w: user %q", ErrNotFound, username)
		}
		return false, err
	}
	return auth.Check(key, u.KeyHash)
}

func (s *Service) newSecret() (string, string, error) {
	secret, err := ident.GenerateSecret()
	if err != nil {
		return "", "", err
	}
	keyHash, err := auth.Hash(s.opts.KeyHashScheme, secret)
	if err != nil {
		return "", "", err
	}
	return secret, keyHash, nil
}
