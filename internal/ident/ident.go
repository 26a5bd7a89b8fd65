// Package ident mints the public identifiers of stored files and the
// plaintext secrets handed to new users.
package ident

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"

	"filedrop/internal/store"
)

const (
	Length       = 24
	SecretLength = 64

	alphanumeric = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	letters      = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

	// DefaultMaxAttempts bounds Claim. Each attempt fails with probability
	// roughly n/62^24, so hitting the bound means the store is misbehaving.
	DefaultMaxAttempts = 8
)

var ErrExhausted = errors.New("identifier allocation exhausted")

// Generate returns a uniformly random identifier over [A-Za-z0-9].
func Generate() (string, error) {
	return randomString(alphanumeric, Length)
}

// GenerateSecret returns a 64-letter API key.
func GenerateSecret() (string, error) {
	return randomString(letters, SecretLength)
}

// Valid reports whether s has the shape of an identifier.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !(c >= 'A' && c <= 'Z' || c >= 'a' && c <= 'z' || c >= '0' && c <= '9') {
			return false
		}
	}
	return true
}

// randomString draws n characters from alphabet using rejection sampling so
// every character is equally likely.
func randomString(alphabet string, n int) (string, error) {
	size := len(alphabet)
	limit := 256 - 256%size
	out := make([]byte, 0, n)
	buf := make([]byte, n+n/2)
	for len(out) < n {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		for _, b := range buf {
			if int(b) >= limit {
				continue
			}
			out = append(out, alphabet[int(b)%size])
			if len(out) == n {
				break
			}
		}
	}
	return string(out), nil
}

// IdentifierLister is the read side the allocator checks candidates against.
type IdentifierLister interface {
	ListIdentifiers(ctx context.Context) (map[string]struct{}, error)
}

type Allocator struct {
	ids         IdentifierLister
	maxAttempts int
	generate    func() (string, error)
}

func NewAllocator(ids IdentifierLister) *Allocator {
	return &Allocator{ids: ids, maxAttempts: DefaultMaxAttempts, generate: Generate}
}

// Allocate returns an identifier absent from the store at the time of the
// check. The answer is advisory: a concurrent insert can still take it, which
// is why callers that persist should go through Claim.
func (a *Allocator) Allocate(ctx context.Context) (string, error) {
	existing, err := a.ids.ListIdentifiers(ctx)
	if err != nil {
		return "", fmt.Errorf("list identifiers: %w", err)
	}
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		candidate, err := a.generate()
		if err != nil {
			return "", err
		}
		if _, taken := existing[candidate]; !taken {
			return candidate, nil
		}
	}
}

// Claim allocates an identifier and hands it to insert. When insert reports
// store.ErrDuplicateIdentifier the identifier is discarded and a fresh one is
// tried. Any other error is returned unchanged.
func (a *Allocator) Claim(ctx context.Context, insert func(ctx context.Context, id string) error) (string, error) {
	for attempt := 0; attempt < a.maxAttempts; attempt++ {
		id, err := a.Allocate(ctx)
		if err != nil {
			return "", err
		}
		err = insert(ctx, id)
		if err == nil {
			return id, nil
		}
		if !errors.Is(err, store.ErrDuplicateIdentifier) {
			return "", err
		}
	}
	return "", ErrExhausted
}
