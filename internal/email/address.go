package email

import (
	"errors"
	"net/mail"
	"strings"
)

// ErrInvalidEmail indicates an email address is not valid.
var ErrInvalidEmail = errors.New("invalid email address")

// Address is a bare email address, the form accounts store and look up.
// Addresses are compared byte for byte, no case folding is done.
type Address string

// ParseAddress trims raw and accepts it only when it is an address without a
// display name or comment. Accounts are found by the parsed form, so a login
// typed with surrounding whitespace finds the same account.
//
// Only the format is checked. Whether the mailbox exists is proven by the
// confirmation links sent to it.
func ParseAddress(raw string) (Address, error) {
	trimmed := strings.TrimSpace(raw)

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}

	// net/mail also accepts "Alice <alice@example.com>(comment)".
	if addr.Address != trimmed {
		return "", ErrInvalidEmail
	}

	return Address(addr.Address), nil
}
