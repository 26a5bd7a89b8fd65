package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// User is an upload principal. KeyHash is the encoded salted hash of the
// user's API key; the key itself is never stored.
type User struct {
	Username string
	KeyHash  string
}

// ListCredentials returns every user with its key hash. The verifier calls
// this on each request so that revocations apply immediately.
func (s *Store) ListCredentials(ctx context.Context) ([]User, error) {
	rows, err := s.db.Query(ctx, `SELECT username, api_key FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	users, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (User, error) {
		var u User
		err := row.Scan(&u.Username, &u.KeyHash)
		return u, err
	})
	if err != nil {
		return nil, fmt.Errorf("list credentials: %w", err)
	}
	return users, nil
}

func (s *Store) GetUser(ctx context.Context, username string) (User, error) {
	var u User
	err := s.db.QueryRow(ctx, `
		SELECT username, api_key
		FROM users
		WHERE username = $1
	`, username).Scan(&u.Username, &u.KeyHash)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, fmt.Errorf("get user: %w", err)
	}
	return u, nil
}

func (s *Store) ListUsernames(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT username FROM users ORDER BY username`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	return names, nil
}

// CreateUser returns ErrConflict when the username is taken.
func (s *Store) CreateUser(ctx context.Context, username, keyHash string) error {
	_, err := s.db.Exec(ctx, `
		INSERT INTO users (username, api_key)
		VALUES ($1, $2)
	`, username, keyHash)
	if err != nil {
		if isUniqueViolation(err, "users") {
			return ErrConflict
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UpdateUserKey replaces the stored key hash, returning ErrNotFound for an
// unknown username.
func (s *Store) UpdateUserKey(ctx context.Context, username, keyHash string) error {
	ct, err := s.db.Exec(ctx, `UPDATE users SET api_key = $2 WHERE username = $1`, username, keyHash)
	if err != nil {
		return fmt.Errorf("update user key: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteUser removes the user. Files keep their bytes; their uploader
// reference is cleared by the foreign key.
func (s *Store) DeleteUser(ctx context.Context, username string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM users WHERE username = $1`, username)
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
