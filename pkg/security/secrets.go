// Package security holds the cryptographic primitives shared by the
// orchestrator and worker roles that don't belong to a single package:
// random secret-key generation and password hashing for the first-party
// user account.
package security

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

const secretKeyAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// GenerateSecretKey returns a random alphanumeric string of length bytes,
// used for a server's HMAC secret_key (64 chars per spec) and any other
// caller needing printable random material of a fixed size.
func GenerateSecretKey(length int) (string, error) {
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read random bytes: %w", err)
	}
	out := make([]byte, length)
	for i, b := range buf {
		out[i] = secretKeyAlphabet[int(b)%len(secretKeyAlphabet)]
	}
	return string(out), nil
}

const (
	argon2Time    = 1
	argon2Memory  = 64 * 1024
	argon2Threads = 4
	argon2KeyLen  = 32
	saltLen       = 16
)

// HashPassword derives an argon2id hash of password using a fresh random
// salt, encoded as salt and hash hex-joined so VerifyPassword can recover
// both from the single stored string.
func HashPassword(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("read salt: %w", err)
	}

	hash := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return fmt.Sprintf("%x$%x", salt, hash), nil
}

// VerifyPassword reports whether password matches a hash produced by
// HashPassword.
func VerifyPassword(password, encoded string) bool {
	salt, hash, ok := splitEncoded(encoded)
	if !ok {
		return false
	}

	candidate := argon2.IDKey([]byte(password), salt, argon2Time, argon2Memory, argon2Threads, argon2KeyLen)
	return subtle.ConstantTimeCompare(candidate, hash) == 1
}

func splitEncoded(encoded string) (salt, hash []byte, ok bool) {
	saltHex, hashHex, found := strings.Cut(encoded, "$")
	if !found {
		return nil, nil, false
	}

	salt, err := hex.DecodeString(saltHex)
	if err != nil {
		return nil, nil, false
	}
	hash, err = hex.DecodeString(hashHex)
	if err != nil {
		return nil, nil, false
	}
	return salt, hash, true
}
