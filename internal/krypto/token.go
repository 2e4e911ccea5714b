package krypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
)

const (
	// DefaultEntropyBits is the entropy of generated tokens when none is configured.
	// 512 bits encode to 86 characters.
	DefaultEntropyBits = 512

	minEntropyBits = 128
	maxEntropyBits = 4096
)

var ErrInvalidEntropy = errors.New("invalid token entropy")

// EntropySourceError indicates the random source could not provide bytes.
// There is no fallback to a weaker source.
type EntropySourceError struct {
	Err error
}

func (e *EntropySourceError) Error() string {
	return fmt.Sprintf("entropy source unavailable: %v", e.Err)
}

func (e *EntropySourceError) Unwrap() error {
	return e.Err
}

// TokenGenerator generates opaque URL-safe tokens.
//
// The zero value is ready to use and reads DefaultEntropyBits from crypto/rand.
type TokenGenerator struct {
	// Rand is the source of random bytes, crypto/rand.Reader if nil.
	Rand io.Reader
	// EntropyBits must be a multiple of 8 in [128, 4096], DefaultEntropyBits if 0.
	EntropyBits int
}

// ValidateEntropy reports whether bits can be used as token entropy.
func ValidateEntropy(bits int) error {
	if bits%8 != 0 || bits < minEntropyBits || bits > maxEntropyBits {
		return fmt.Errorf("%w: %d bits, want a multiple of 8 in [%d, %d]", ErrInvalidEntropy, bits, minEntropyBits, maxEntropyBits)
	}
	return nil
}

// Generate returns a new token as unpadded base64url. The token can appear unescaped
// in a query string or path segment.
func (g TokenGenerator) Generate() (string, error) {
	bits := g.EntropyBits
	if bits == 0 {
		bits = DefaultEntropyBits
	}

	if err := ValidateEntropy(bits); err != nil {
		return "", err
	}

	r := g.Rand
	if r == nil {
		r = rand.Reader
	}

	b := make([]byte, bits/8)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", &EntropySourceError{Err: err}
	}

	return base64.RawURLEncoding.EncodeToString(b), nil
}

// TokenLen returns the length of tokens generated with the given entropy.
func TokenLen(bits int) int {
	return base64.RawURLEncoding.EncodedLen(bits / 8)
}

// DigestToken returns the hex encoded SHA-256 digest of a token.
//
// Only digests are persisted, someone with read access to the database can't
// use them to confirm a request. Tokens have enough entropy that a fast hash is fine.
func DigestToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}
