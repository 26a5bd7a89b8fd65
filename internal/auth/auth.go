package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"filedrop/internal/store"
)

// CredentialSource yields every stored user with its credential hash.
type CredentialSource interface {
	ListCredentials(ctx context.Context) ([]store.User, error)
}

// Verifier matches presented API keys against the stored credential hashes.
// Each call reads the current credential set and runs its own scan, so
// removing or rotating a key takes effect on the next request.
type Verifier struct {
	creds  CredentialSource
	logger *slog.Logger
}

func NewVerifier(creds CredentialSource, logger *slog.Logger) *Verifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Verifier{creds: creds, logger: logger}
}

// Verify returns the username owning presented. Every stored hash is tried in
// turn until one matches, so cost grows with the number of users.
func (v *Verifier) Verify(ctx context.Context, presented string) (string, bool, error) {
	if presented == "" {
		return "", false, nil
	}
	username, err := v.scan(ctx, presented)
	if err != nil {
		return "", false, err
	}
	return username, username != "", nil
}

// Authorize reports whether presented matches any stored hash.
func (v *Verifier) Authorize(ctx context.Context, presented string) (bool, error) {
	_, ok, err := v.Verify(ctx, presented)
	return ok, err
}

func (v *Verifier) scan(ctx context.Context, presented string) (string, error) {
	users, err := v.creds.ListCredentials(ctx)
	if err != nil {
		return "", err
	}
	for _, u := range users {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		ok, err := Check(presented, u.KeyHash)
		if err != nil {
			v.logger.Warn("skipping unreadable credential hash", "username", u.Username, "error", err)
			continue
		}
		if ok {
			return u.Username, nil
		}
	}
	return "", nil
}

// ExtractToken reads the API key from "Authorization: Bearer <key>" or, failing
// that, from X-API-Token.
func ExtractToken(r *http.Request) string {
	authz := strings.TrimSpace(r.Header.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
		return strings.TrimSpace(authz[7:])
	}
	return strings.TrimSpace(r.Header.Get("X-API-Token"))
}
