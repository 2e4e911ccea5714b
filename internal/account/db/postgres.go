package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/db"
	"github.com/thibaut-decherit/usermanager/internal/errorz"
)

// Pool is the part of *pgxpool.Pool used by PgStore.
type Pool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// PgStore stores accounts in a Postgres database.
// Confirmations lock the account row with SELECT ... FOR UPDATE.
type PgStore struct {
	pool Pool
}

// NewPgStore creates a new PgStore.
func NewPgStore(pool Pool) *PgStore {
	return &PgStore{
		pool: pool,
	}
}

// BeginTx starts a new transaction.
func (s *PgStore) BeginTx(ctx context.Context) (account.Tx, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, errorz.MapDBErr(err)
	}

	return &pgTx{
		ctx: ctx,
		tx:  tx,
	}, nil
}

type pgTx struct {
	ctx context.Context
	tx  pgx.Tx
}

func (t *pgTx) Commit() error {
	return errorz.MapDBErr(t.tx.Commit(t.ctx))
}

func (t *pgTx) Rollback() error {
	return errorz.MapDBErr(t.tx.Rollback(t.ctx))
}

func (t *pgTx) CreateAccount(a *account.Account) error {
	query, params, err := insertAccount(db.Query{Dialect: db.Postgres}, a)
	if err != nil {
		return err
	}

	_, err = t.tx.Exec(t.ctx, query, params...)
	return errorz.MapDBErr(err)
}

func (t *pgTx) UpdateAccount(a *account.Account) error {
	query, params, err := updateAccount(db.Query{Dialect: db.Postgres}, a)
	if err != nil {
		return err
	}

	return t.exec(query, params, "account")
}

func (t *pgTx) DeleteAccount(id uuid.UUID) error {
	query, params, err := deleteAccount(db.Query{Dialect: db.Postgres}, id)
	if err != nil {
		return err
	}

	return t.exec(query, params, "account")
}

func (t *pgTx) FindAccounts(filter *account.Filter) ([]account.Account, error) {
	query, params, err := selectAccounts(db.Query{Dialect: db.Postgres}, filter)
	if err != nil {
		return nil, err
	}

	rows, err := t.tx.Query(t.ctx, query, params...)
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

func (t *pgTx) exec(query string, params []any, what string) error {
	tag, err := t.tx.Exec(t.ctx, query, params...)
	if err != nil {
		return errorz.MapDBErr(err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s not found: %w", what, errorz.ErrNotFound)
	}

	return nil
}
