// Package db stores accounts in SQLite or Postgres.
package db

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/db"
	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/errorz"
)

// tokenColumns maps flow kinds to their token and requested at columns.
var tokenColumns = map[account.FlowKind][2]string{
	account.FlowActivation:      {"activation_token", "activation_requested_at"},
	account.FlowPasswordReset:   {"password_reset_token", "password_reset_requested_at"},
	account.FlowEmailChange:     {"email_change_token", "email_change_requested_at"},
	account.FlowAccountDeletion: {"account_deletion_token", "account_deletion_requested_at"},
}

const accountColumns = `id, username, email, password_hash, activated, ` +
	`activation_token, activation_requested_at, ` +
	`password_reset_token, password_reset_requested_at, ` +
	`email_change_pending, email_change_token, email_change_requested_at, ` +
	`account_deletion_token, account_deletion_requested_at, ` +
	`registered_at, updated_at`

func insertAccount(q db.Query, a *account.Account) (string, []any, error) {
	if a.ID == uuid.Nil {
		return "", nil, fmt.Errorf("zero uuid provided: %w", errorz.ErrConstraintViolated)
	}

	q.Unsafe(`INSERT INTO accounts (` + accountColumns + `) VALUES (`)
	q.Params(accountValues(a)...)
	q.Unsafe(`)`)

	return q.Get()
}

func updateAccount(q db.Query, a *account.Account) (string, []any, error) {
	q.Unsafe(`UPDATE accounts SET username = `)
	q.Param(a.Username)

	q.Unsafe(`, email = `)
	q.Param(string(a.Email))

	q.Unsafe(`, password_hash = `)
	q.Param(a.PasswordHash)

	q.Unsafe(`, activated = `)
	q.Param(a.Activated)

	for _, k := range account.FlowKinds {
		cols := tokenColumns[k]
		digest, requestedAt := tokenValues(*a.Token(k))

		q.Unsafe(`, ` + cols[0] + ` = `)
		q.Param(digest)
		q.Unsafe(`, ` + cols[1] + ` = `)
		q.Param(requestedAt)
	}

	q.Unsafe(`, email_change_pending = `)
	q.Param(nullString(string(a.EmailChangePending)))

	q.Unsafe(`, updated_at = `)
	q.Param(a.UpdatedAt.UTC())

	q.Unsafe(` WHERE id = `)
	q.Param(a.ID.String())

	return q.Get()
}

func deleteAccount(q db.Query, id uuid.UUID) (string, []any, error) {
	q.Unsafe(`DELETE FROM accounts WHERE id = `)
	q.Param(id.String())

	return q.Get()
}

func selectAccounts(q db.Query, f *account.Filter) (string, []any, error) {
	q.Unsafe(`SELECT ` + accountColumns + ` FROM accounts WHERE 1=1 `)

	if len(f.IDs) > 0 {
		q.Unsafe(`AND id IN (`)
		ids := make([]any, 0, len(f.IDs))
		for _, id := range f.IDs {
			ids = append(ids, id.String())
		}
		q.Params(ids...)
		q.Unsafe(`) `)
	}

	if len(f.Usernames) > 0 {
		q.Unsafe(`AND username IN (`)
		q.Params(anySlice(f.Usernames)...)
		q.Unsafe(`) `)
	}

	if len(f.Emails) > 0 {
		q.Unsafe(`AND email IN (`)
		emails := make([]any, 0, len(f.Emails))
		for _, e := range f.Emails {
			emails = append(emails, string(e))
		}
		q.Params(emails...)
		q.Unsafe(`) `)
	}

	if f.Activated != nil {
		q.Unsafe(`AND activated = `)
		q.Param(*f.Activated)
		q.Unsafe(` `)
	}

	if f.RegisteredBefore != nil {
		q.Unsafe(`AND registered_at < `)
		q.Param(f.RegisteredBefore.UTC())
		q.Unsafe(` `)
	}

	if f.Token != nil {
		cols, ok := tokenColumns[f.Token.Kind]
		if !ok {
			return "", nil, fmt.Errorf("unknown flow kind %q", f.Token.Kind)
		}

		q.Unsafe(`AND ` + cols[0] + ` = `)
		q.Param(f.Token.Digest)
		q.Unsafe(` `)
	}

	q.Unsafe(`ORDER BY registered_at ASC, id ASC`)

	if f.Limit > 0 {
		q.Unsafe(` LIMIT `)
		q.Param(f.Limit)
	}

	if f.ForUpdate {
		q.ForUpdate()
	}

	return q.Get()
}

// scanAccount scans a row selected with accountColumns.
func scanAccount(scan func(dest ...any) error) (account.Account, error) {
	var (
		a                    account.Account
		username, addr, hash string
		pending              *string
		digests              [4]*string
		requested            [4]*time.Time
	)

	err := scan(
		&a.ID, &username, &addr, &hash, &a.Activated,
		&digests[0], &requested[0],
		&digests[1], &requested[1],
		&pending, &digests[2], &requested[2],
		&digests[3], &requested[3],
		&a.RegisteredAt, &a.UpdatedAt,
	)
	if err != nil {
		return account.Account{}, errorz.MapDBErr(err)
	}

	a.Username = username
	a.Email = email.Address(addr)
	a.PasswordHash = hash

	if pending != nil {
		a.EmailChangePending = email.Address(*pending)
	}

	for i, k := range account.FlowKinds {
		if digests[i] == nil {
			continue
		}

		st := account.TokenState{Digest: *digests[i]}
		if requested[i] != nil {
			st.RequestedAt = requested[i].UTC()
		}
		*a.Token(k) = st
	}

	a.RegisteredAt = a.RegisteredAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()

	return a, nil
}

func accountValues(a *account.Account) []any {
	values := []any{a.ID.String(), a.Username, string(a.Email), a.PasswordHash, a.Activated}

	for _, k := range account.FlowKinds {
		digest, requestedAt := tokenValues(*a.Token(k))
		if k == account.FlowEmailChange {
			values = append(values, nullString(string(a.EmailChangePending)))
		}
		values = append(values, digest, requestedAt)
	}

	return append(values, a.RegisteredAt.UTC(), a.UpdatedAt.UTC())
}

// tokenValues returns the column values of a token state, NULL when no token is pending.
func tokenValues(st account.TokenState) (any, any) {
	if !st.Pending() {
		return nil, nil
	}
	return st.Digest, st.RequestedAt.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func anySlice[T any](s []T) []any {
	out := make([]any, 0, len(s))
	for _, v := range s {
		out = append(out, v)
	}
	return out
}
