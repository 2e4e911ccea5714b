package krypto

import (
	"fmt"
	"log/slog"
)

// SecretMarker is a string we can look for in logs to see if the app
// is accidentally exposing secrets.
const SecretMarker = "<!SECRET_REDACTED!>"

// Secret is arbitrary sensitive data that needs to be passed around
// but not exposed. API keys, SMTP passwords and the like.
type Secret struct {
	value []byte
}

// NewSecret creates a new secret.
func NewSecret(raw string) Secret {
	return Secret{
		value: []byte(raw),
	}
}

// IsZero reports whether the secret is empty.
func (s Secret) IsZero() bool {
	return len(s.value) == 0
}

func (s Secret) Format(f fmt.State, verb rune) {
	f.Write([]byte(SecretMarker))
}

func (s Secret) MarshalText() ([]byte, error) {
	return []byte(SecretMarker), nil
}

// LogValue implements the slog.LogValuer interface.
func (s Secret) LogValue() slog.Value {
	return slog.StringValue(SecretMarker)
}

// SecretValue returns the secret as a string. This is an escape hatch
// for handing credentials to third party packages.
func (s Secret) SecretValue() string {
	return string(s.value)
}
