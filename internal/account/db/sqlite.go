package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/db"
	"github.com/thibaut-decherit/usermanager/internal/errorz"
)

// SQLStore stores accounts in a SQLite database.
//
// The database should be opened with db.OpenSQLite for writing: transactions
// begin immediately on a single connection, which serializes them.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore creates a new SQLStore.
func NewSQLStore(sqlDB *sql.DB) *SQLStore {
	return &SQLStore{
		db: sqlDB,
	}
}

// BeginTx starts a new transaction.
func (s *SQLStore) BeginTx(ctx context.Context) (account.Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return &sqlTx{
		ctx: ctx,
		tx:  tx,
	}, nil
}

type sqlTx struct {
	ctx context.Context
	tx  *sql.Tx
}

func (t *sqlTx) Commit() error {
	return errorz.MapDBErr(t.tx.Commit())
}

func (t *sqlTx) Rollback() error {
	return errorz.MapDBErr(t.tx.Rollback())
}

// CreateAccount inserts a. It returns errorz.ErrConstraintViolated
// if the username, email or a token is already taken.
func (t *sqlTx) CreateAccount(a *account.Account) error {
	query, params, err := insertAccount(db.Query{Dialect: db.SQLite}, a)
	if err != nil {
		return err
	}

	_, err = t.tx.ExecContext(t.ctx, query, params...)
	return errorz.MapDBErr(err)
}

// UpdateAccount updates all fields of a but its ID and RegisteredAt.
// It returns errorz.ErrNotFound if no account has the ID of a.
func (t *sqlTx) UpdateAccount(a *account.Account) error {
	query, params, err := updateAccount(db.Query{Dialect: db.SQLite}, a)
	if err != nil {
		return err
	}

	return t.exec(query, params, "account")
}

// DeleteAccount deletes the account with the given ID.
// It returns errorz.ErrNotFound if there is none.
func (t *sqlTx) DeleteAccount(id uuid.UUID) error {
	query, params, err := deleteAccount(db.Query{Dialect: db.SQLite}, id)
	if err != nil {
		return err
	}

	return t.exec(query, params, "account")
}

// FindAccounts queries for accounts matching filter.
// It returns an empty slice if no accounts are found.
func (t *sqlTx) FindAccounts(filter *account.Filter) ([]account.Account, error) {
	query, params, err := selectAccounts(db.Query{Dialect: db.SQLite}, filter)
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.QueryContext(t.ctx, query, params...)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	defer rows.Close()

	out := make([]account.Account, 0)
	for rows.Next() {
		a, err := scanAccount(rows.Scan)
		if err != nil {
			return nil, err
		}

		out = append(out, a)
	}

	if err := rows.Err(); err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return out, nil
}

func (t *sqlTx) exec(query string, params []any, what string) error {
	result, err := t.tx.ExecContext(t.ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if n == 0 {
		return fmt.Errorf("%s not found: %w", what, errorz.ErrNotFound)
	}

	return nil
}
