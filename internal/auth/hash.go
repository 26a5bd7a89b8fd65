package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

const (
	SchemePBKDF2SHA256 = "pbkdf2-sha256"
	SchemeArgon2ID     = "argon2id"

	pbkdf2Rounds   = 29000
	pbkdf2SaltSize = 16
	pbkdf2KeySize  = 32

	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeySize = 32
	argonSalt    = 16
)

var ErrMalformedHash = errors.New("malformed credential hash")

// ab64 is passlib's "adapted base64": standard alphabet with '.' for '+', no padding.
var ab64 = base64.NewEncoding("ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789./").WithPadding(base64.NoPadding)

// Hash derives a storable hash of secret with a fresh random salt.
//
// pbkdf2-sha256 output is "$pbkdf2-sha256$<rounds>$<salt>$<checksum>", the
// format passlib writes, so rows created by other tooling verify unchanged.
// argon2id output is the PHC string "$argon2id$v=19$m=..,t=..,p=..$<salt>$<key>".
func Hash(scheme, secret string) (string, error) {
	switch scheme {
	case SchemePBKDF2SHA256, "":
		salt, err := randomSalt(pbkdf2SaltSize)
		if err != nil {
			return "", err
		}
		sum := pbkdf2.Key([]byte(secret), salt, pbkdf2Rounds, pbkdf2KeySize, sha256.New)
		return fmt.Sprintf("$%s$%d$%s$%s", SchemePBKDF2SHA256, pbkdf2Rounds, ab64.EncodeToString(salt), ab64.EncodeToString(sum)), nil
	case SchemeArgon2ID:
		salt, err := randomSalt(argonSalt)
		if err != nil {
			return "", err
		}
		key := argon2.IDKey([]byte(secret), salt, argonTime, argonMemory, argonThreads, argonKeySize)
		return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
			argon2.Version, argonMemory, argonTime, argonThreads,
			base64.RawStdEncoding.EncodeToString(salt), base64.RawStdEncoding.EncodeToString(key)), nil
	default:
		return "", fmt.Errorf("unknown hash scheme %q", scheme)
	}
}

// Check reports whether secret matches encoded. The derived key is compared
// with subtle.ConstantTimeCompare.
func Check(secret, encoded string) (bool, error) {
	parts := strings.Split(encoded, "$")
	if len(parts) < 2 || parts[0] != "" {
		return false, ErrMalformedHash
	}
	switch parts[1] {
	case SchemePBKDF2SHA256:
		return checkPBKDF2(secret, parts)
	case SchemeArgon2ID:
		return checkArgon2(secret, parts)
	default:
		return false, fmt.Errorf("%w: unknown scheme %q", ErrMalformedHash, parts[1])
	}
}

func checkPBKDF2(secret string, parts []string) (bool, error) {
	if len(parts) != 5 {
		return false, ErrMalformedHash
	}
	rounds, err := strconv.Atoi(parts[2])
	if err != nil || rounds <= 0 {
		return false, fmt.Errorf("%w: rounds %q", ErrMalformedHash, parts[2])
	}
	salt, err := ab64.DecodeString(parts[3])
	if err != nil {
		return false, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	want, err := ab64.DecodeString(parts[4])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("%w: checksum", ErrMalformedHash)
	}
	got := pbkdf2.Key([]byte(secret), salt, rounds, len(want), sha256.New)
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func checkArgon2(secret string, parts []string) (bool, error) {
	if len(parts) != 6 {
		return false, ErrMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return false, fmt.Errorf("%w: version %q", ErrMalformedHash, parts[2])
	}
	var memory, time uint32
	var threads uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &memory, &time, &threads); err != nil {
		return false, fmt.Errorf("%w: params %q", ErrMalformedHash, parts[3])
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return false, fmt.Errorf("%w: salt: %v", ErrMalformedHash, err)
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil || len(want) == 0 {
		return false, fmt.Errorf("%w: key", ErrMalformedHash)
	}
	got := argon2.IDKey([]byte(secret), salt, time, memory, threads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1, nil
}

func randomSalt(n int) ([]byte, error) {
	salt := make([]byte, n)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("read salt: %w", err)
	}
	return salt, nil
}
