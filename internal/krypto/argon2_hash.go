package krypto

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"golang.org/x/crypto/argon2"
)

const (
	argon2Variant     = "argon2id"
	argon2MemoryKiB   = 47104
	argon2Iterations  = 1
	argon2Parallelism = 1
	argon2SaltLen     = 16
	argon2KeyLen      = 32
)

var ErrInvalidInput = errors.New("invalid input")

// Argon2Hash is an argon2id hash in the PHC string format:
// $argon2id$v=19$m=47104,t=1,p=1$<salt>$<hash>
type Argon2Hash struct {
	Variant     string
	Version     int
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
	Hash        []byte
}

// HashArgon2 hashes data with a random salt and the current parameters.
func HashArgon2(data []byte) (Argon2Hash, error) {
	if len(data) == 0 {
		return Argon2Hash{}, ErrInvalidInput
	}

	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return Argon2Hash{}, &EntropySourceError{Err: err}
	}

	return Argon2Hash{
		Variant:     argon2Variant,
		Version:     argon2.Version,
		MemoryKiB:   argon2MemoryKiB,
		Iterations:  argon2Iterations,
		Parallelism: argon2Parallelism,
		Salt:        salt,
		Hash:        argon2.IDKey(data, salt, argon2Iterations, argon2MemoryKiB, argon2Parallelism, argon2KeyLen),
	}, nil
}

// ParseArgon2Hash parses a hash in the PHC string format.
func ParseArgon2Hash(s string) (Argon2Hash, error) {
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[0] != "" {
		return Argon2Hash{}, fmt.Errorf("%w: unexpected format", ErrInvalidInput)
	}

	h := Argon2Hash{Variant: parts[1]}
	if h.Variant != argon2Variant {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported variant %q", ErrInvalidInput, h.Variant)
	}

	version, err := strconv.Atoi(strings.TrimPrefix(parts[2], "v="))
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: version: %w", ErrInvalidInput, err)
	}
	if version != argon2.Version {
		return Argon2Hash{}, fmt.Errorf("%w: unsupported version %d", ErrInvalidInput, version)
	}
	h.Version = version

	var m, t, p uint64
	for _, param := range strings.Split(parts[3], ",") {
		key, val, ok := strings.Cut(param, "=")
		if !ok {
			return Argon2Hash{}, fmt.Errorf("%w: parameter %q", ErrInvalidInput, param)
		}

		switch key {
		case "m":
			m, err = strconv.ParseUint(val, 10, 32)
		case "t":
			t, err = strconv.ParseUint(val, 10, 32)
		case "p":
			p, err = strconv.ParseUint(val, 10, 8)
		default:
			err = fmt.Errorf("unknown parameter %q", key)
		}

		if err != nil {
			return Argon2Hash{}, fmt.Errorf("%w: %w", ErrInvalidInput, err)
		}
	}
	h.MemoryKiB = uint32(m)
	h.Iterations = uint32(t)
	h.Parallelism = uint8(p)

	h.Salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: salt: %w", ErrInvalidInput, err)
	}

	h.Hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return Argon2Hash{}, fmt.Errorf("%w: hash: %w", ErrInvalidInput, err)
	}

	return h, nil
}

// MatchBytes reports whether data hashes to h, in constant time.
func (h Argon2Hash) MatchBytes(data []byte) bool {
	other := argon2.IDKey(data, h.Salt, h.Iterations, h.MemoryKiB, h.Parallelism, uint32(len(h.Hash)))
	return subtle.ConstantTimeCompare(h.Hash, other) == 1
}

// Outdated reports whether h was created with other parameters than HashArgon2 uses now.
func (h Argon2Hash) Outdated() bool {
	return h.MemoryKiB != argon2MemoryKiB ||
		h.Iterations != argon2Iterations ||
		h.Parallelism != argon2Parallelism ||
		len(h.Hash) != argon2KeyLen
}

func (h Argon2Hash) String() string {
	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		h.Variant, h.Version, h.MemoryKiB, h.Iterations, h.Parallelism,
		base64.RawStdEncoding.EncodeToString(h.Salt),
		base64.RawStdEncoding.EncodeToString(h.Hash),
	)
}

func (h Argon2Hash) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Argon2Hash) UnmarshalText(text []byte) error {
	parsed, err := ParseArgon2Hash(string(text))
	if err != nil {
		return err
	}

	*h = parsed
	return nil
}

// Scan implements sql.Scanner.
func (h *Argon2Hash) Scan(src any) error {
	switch v := src.(type) {
	case string:
		return h.UnmarshalText([]byte(v))
	case []byte:
		return h.UnmarshalText(v)
	default:
		return fmt.Errorf("cannot scan %T into argon2 hash", src)
	}
}
