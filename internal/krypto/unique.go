package krypto

import (
	"errors"
	"fmt"
)

// DefaultMaxAttempts is used by EnsureUnique when no positive bound is given.
const DefaultMaxAttempts = 10

var ErrTokenSpaceExhausted = errors.New("token space exhausted")

// EnsureUnique calls generate until exists reports a candidate as unused.
// It gives up with ErrTokenSpaceExhausted after maxAttempts collisions.
func EnsureUnique(generate func() (string, error), exists func(string) (bool, error), maxAttempts int) (string, error) {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}

	for i := 0; i < maxAttempts; i++ {
		candidate, err := generate()
		if err != nil {
			return "", err
		}

		taken, err := exists(candidate)
		if err != nil {
			return "", err
		}

		if !taken {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("%d attempts collided: %w", maxAttempts, ErrTokenSpaceExhausted)
}
