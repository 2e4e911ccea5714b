package krypto

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordBytes = 8
	// Passphrases are fine, megabytes of data are not.
	maxPasswordBytes = 512
)

var (
	ErrInvalidPassword = errors.New("invalid password")
	ErrUnknownHash     = errors.New("unknown password hash format")
)

// Password is a plaintext password.
//
// It should never be persisted, logged or exposed in any other way. The type
// implements the common formatting interfaces to redact itself.
type Password struct {
	plain []byte
}

// ParsePassword creates a new Password from a plaintext string.
// It errors if the password is too short or too long.
func ParsePassword(pwd string) (Password, error) {
	if len(pwd) < minPasswordBytes || len(pwd) > maxPasswordBytes {
		return Password{}, ErrInvalidPassword
	}

	return Password{
		plain: []byte(pwd),
	}, nil
}

// Hash hashes the password with argon2id and returns the encoded hash.
func (p Password) Hash() (string, error) {
	h, err := HashArgon2(p.plain)
	if err != nil {
		return "", err
	}
	return h.String(), nil
}

// Verify compares the password with an encoded hash. Both argon2id hashes and
// legacy bcrypt hashes are accepted. needsRehash is true when the password matched
// but the hash should be replaced by one made with Hash.
func (p Password) Verify(encoded string) (match, needsRehash bool, err error) {
	if strings.HasPrefix(encoded, "$2") {
		err := bcrypt.CompareHashAndPassword([]byte(encoded), p.plain)
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, false, nil
		}
		if err != nil {
			return false, false, fmt.Errorf("%w: %w", ErrUnknownHash, err)
		}
		return true, true, nil
	}

	h, err := ParseArgon2Hash(encoded)
	if err != nil {
		return false, false, fmt.Errorf("%w: %w", ErrUnknownHash, err)
	}

	if !h.MatchBytes(p.plain) {
		return false, false, nil
	}

	return true, h.Outdated(), nil
}

func (p Password) Format(f fmt.State, verb rune) {
	f.Write([]byte(SecretMarker))
}

func (p Password) MarshalText() ([]byte, error) {
	return []byte(SecretMarker), nil
}
