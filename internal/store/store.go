package store

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("conflict")

	// ErrDuplicateIdentifier is returned by InsertFile when the identifier is
	// already taken. Callers that minted the identifier should mint a new one.
	ErrDuplicateIdentifier = errors.New("duplicate file identifier")
)

const pgUniqueViolation = "23505"

// Store is the Postgres-backed record store. It is safe for concurrent use;
// every call borrows a connection from the pool for its own duration.
type Store struct {
	db *pgxpool.Pool
}

func New(db *pgxpool.Pool) *Store {
	return &Store{db: db}
}

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// isUniqueViolation reports a 23505 error, optionally restricted to table.
func isUniqueViolation(err error, table string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgUniqueViolation {
		return false
	}
	return table == "" || pgErr.TableName == table
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, pgx.ErrNoRows)
}
