package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/email"
)

// Filter is used to filter accounts.
// Returned accounts must match all the provided fields.
// If a field is empty or nil, it's ignored.
type Filter struct {
	IDs              []uuid.UUID
	Usernames        []string
	Emails           []email.Address
	Activated        *bool
	RegisteredBefore *time.Time
	Token            *TokenFilter
	// ForUpdate locks the matching accounts until the transaction ends.
	ForUpdate bool
	// Limit caps the number of results, 0 means no limit.
	Limit int
}

// TokenFilter matches accounts with a pending token of Kind with the given digest.
type TokenFilter struct {
	Kind   FlowKind
	Digest string
}

// Store provides access to the account store.
type Store interface {
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx is a transaction. If an error occurs on any of the Create/Update/Delete/Find methods,
// the transaction is considered to have failed and should be rolled back.
// Tx is not safe for concurrent use.
type Tx interface {
	Commit() error
	Rollback() error

	CreateAccount(a *Account) error
	UpdateAccount(a *Account) error
	DeleteAccount(id uuid.UUID) error
	FindAccounts(filter *Filter) ([]Account, error)
}
