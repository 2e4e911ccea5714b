package account

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/email"
)

// FlowKind identifies a family of request/confirm token operations.
type FlowKind string

const (
	FlowActivation      FlowKind = "activation"
	FlowPasswordReset   FlowKind = "password_reset"
	FlowEmailChange     FlowKind = "email_change"
	FlowAccountDeletion FlowKind = "account_deletion"
)

// FlowKinds lists all flow kinds.
var FlowKinds = []FlowKind{FlowActivation, FlowPasswordReset, FlowEmailChange, FlowAccountDeletion}

// Valid reports whether k is a known flow kind.
func (k FlowKind) Valid() bool {
	switch k {
	case FlowActivation, FlowPasswordReset, FlowEmailChange, FlowAccountDeletion:
		return true
	}
	return false
}

// TokenState is the pending request of one flow kind.
// The zero value means no request is pending.
type TokenState struct {
	// Digest is the digest of the token that was sent out, see krypto.DigestToken.
	Digest      string
	RequestedAt time.Time
}

// Pending reports whether a token was issued and not yet consumed or cleared.
// A pending token may be expired.
func (s TokenState) Pending() bool {
	return s.Digest != ""
}

// Account contains the data of a user account.
type Account struct {
	ID       uuid.UUID
	Username string
	Email    email.Address
	// PasswordHash is an encoded argon2id or legacy bcrypt hash.
	PasswordHash string
	Activated    bool

	Activation      TokenState
	PasswordReset   TokenState
	EmailChange     TokenState
	AccountDeletion TokenState
	// EmailChangePending is the address that replaces Email once the
	// email change is confirmed. Empty when no change is pending.
	EmailChangePending email.Address

	RegisteredAt time.Time
	UpdatedAt    time.Time
}

// Token returns the token state of kind k. It panics on unknown kinds.
func (a *Account) Token(k FlowKind) *TokenState {
	switch k {
	case FlowActivation:
		return &a.Activation
	case FlowPasswordReset:
		return &a.PasswordReset
	case FlowEmailChange:
		return &a.EmailChange
	case FlowAccountDeletion:
		return &a.AccountDeletion
	default:
		panic(fmt.Sprintf("unknown flow kind %q", k))
	}
}

// ClearToken resets the token state of kind k, along with the
// data staged for it.
func (a *Account) ClearToken(k FlowKind) {
	*a.Token(k) = TokenState{}
	if k == FlowEmailChange {
		a.EmailChangePending = ""
	}
}
