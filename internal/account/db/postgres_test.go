package db_test

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/account/db"
	"github.com/thibaut-decherit/usermanager/internal/errorz"
)

var columns = []string{
	"id", "username", "email", "password_hash", "activated",
	"activation_token", "activation_requested_at",
	"password_reset_token", "password_reset_requested_at",
	"email_change_pending", "email_change_token", "email_change_requested_at",
	"account_deletion_token", "account_deletion_requested_at",
	"registered_at", "updated_at",
}

func Test_PgTx_FindAccounts(t *testing.T) {
	t.Run("ok, locks rows for update", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		want := testAccount(t, 1, func(a *account.Account) {
			a.EmailChangePending = "bobby@example.com"
			a.EmailChange = account.TokenState{Digest: "ec", RequestedAt: now(t, 5)}
		})

		mock.ExpectQuery(regexp.QuoteMeta(
			`FROM accounts WHERE 1=1 AND username IN ($1) ORDER BY registered_at ASC, id ASC FOR UPDATE`,
		)).
			WithArgs("bob").
			WillReturnRows(pgxmock.NewRows(columns).AddRow(accountRow(want)...))

		got, err := tx.FindAccounts(&account.Filter{Usernames: []string{"bob"}, ForUpdate: true})
		require.NoError(t, err)
		assertAccounts(t, got, []account.Account{want})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ok, filters and limit", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		a := testAccount(t, 0, nil)
		mock.ExpectQuery(regexp.QuoteMeta(
			`AND activated = $1 AND registered_at < $2 AND activation_token = $3 ORDER BY registered_at ASC, id ASC LIMIT $4`,
		)).
			WithArgs(false, now(t, 30), "d0", 10).
			WillReturnRows(pgxmock.NewRows(columns).AddRow(accountRow(a)...))

		got, err := tx.FindAccounts(&account.Filter{
			Activated:        ptr(false),
			RegisteredBefore: ptr(now(t, 30)),
			Token:            &account.TokenFilter{Kind: account.FlowActivation, Digest: "d0"},
			Limit:            10,
		})
		require.NoError(t, err)
		assertAccounts(t, got, []account.Account{a})
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ok, no results", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		id := uuid.MustParse("3f3a0dbb-0f66-4bd6-a1c4-7a06f5f3c9b1")
		mock.ExpectQuery(regexp.QuoteMeta(`AND id IN ($1)`)).
			WithArgs(id.String()).
			WillReturnRows(pgxmock.NewRows(columns))

		got, err := tx.FindAccounts(&account.Filter{IDs: []uuid.UUID{id}})
		require.NoError(t, err)
		assert.Empty(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail, query error", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		queryErr := errors.New("connection reset")
		mock.ExpectQuery("SELECT").WillReturnError(queryErr)

		_, err := tx.FindAccounts(&account.Filter{})
		assert.ErrorIs(t, err, queryErr)
	})
}

func Test_PgTx_CreateAccount(t *testing.T) {
	a := testAccount(t, 0, func(a *account.Account) {
		a.PasswordReset = account.TokenState{Digest: "pr", RequestedAt: now(t, 3)}
	})

	args := []any{
		a.ID.String(), "alice", "alice@example.com", testHash, false,
		"d0", now(t, 0),
		"pr", now(t, 3),
		nil, nil, nil,
		nil, nil,
		now(t, 0), now(t, 0),
	}

	t.Run("ok", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO accounts (id, username`)).
			WithArgs(args...).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		require.NoError(t, tx.CreateAccount(&a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail, unique violation", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectExec("INSERT INTO accounts").
			WithArgs(args...).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "accounts_username_key"})

		err := tx.CreateAccount(&a)
		assert.ErrorIs(t, err, errorz.ErrConstraintViolated)
	})

	t.Run("fail, zero id", func(t *testing.T) {
		_, tx := pgTxForTest(t)

		b := a
		b.ID = uuid.Nil
		assert.ErrorIs(t, tx.CreateAccount(&b), errorz.ErrConstraintViolated)
	})
}

func Test_PgTx_UpdateAndDelete(t *testing.T) {
	a := testAccount(t, 2, func(a *account.Account) {
		a.Activated = true
		a.Activation = account.TokenState{}
		a.UpdatedAt = now(t, 9)
	})

	t.Run("ok, update", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectExec(regexp.QuoteMeta(`UPDATE accounts SET username = $1, email = $2`)).
			WithArgs(
				"carol", "carol@example.com", testHash, true,
				nil, nil, nil, nil, nil, nil, nil, nil,
				nil, now(t, 9), a.ID.String(),
			).
			WillReturnResult(pgxmock.NewResult("UPDATE", 1))

		require.NoError(t, tx.UpdateAccount(&a))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail, update unknown account", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectExec("UPDATE accounts").
			WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
				pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("UPDATE", 0))

		assert.ErrorIs(t, tx.UpdateAccount(&a), errorz.ErrNotFound)
	})

	t.Run("ok, delete", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM accounts WHERE id = $1`)).
			WithArgs(a.ID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 1))

		require.NoError(t, tx.DeleteAccount(a.ID))
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail, delete unknown account", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectExec("DELETE FROM accounts").
			WithArgs(a.ID.String()).
			WillReturnResult(pgxmock.NewResult("DELETE", 0))

		assert.ErrorIs(t, tx.DeleteAccount(a.ID), errorz.ErrNotFound)
	})
}

func Test_PgStore_Tx(t *testing.T) {
	t.Run("ok, commit", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectCommit()

		require.NoError(t, tx.Commit())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("ok, rollback", func(t *testing.T) {
		mock, tx := pgTxForTest(t)

		mock.ExpectRollback()

		require.NoError(t, tx.Rollback())
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("fail, begin", func(t *testing.T) {
		mock, err := pgxmock.NewPool()
		require.NoError(t, err)
		t.Cleanup(mock.Close)

		beginErr := errors.New("too many connections")
		mock.ExpectBegin().WillReturnError(beginErr)

		_, err = db.NewPgStore(mock).BeginTx(context.Background())
		assert.ErrorIs(t, err, beginErr)
	})
}

func pgTxForTest(t *testing.T) (pgxmock.PgxPoolIface, account.Tx) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	mock.ExpectBegin()

	tx, err := db.NewPgStore(mock).BeginTx(context.Background())
	require.NoError(t, err)

	return mock, tx
}

// accountRow returns the row postgres returns for a, nullable columns
// are pointers or nil.
func accountRow(a account.Account) []any {
	row := []any{a.ID, a.Username, string(a.Email), a.PasswordHash, a.Activated}

	for _, k := range account.FlowKinds {
		st := a.Token(k)
		if k == account.FlowEmailChange {
			if a.EmailChangePending == "" {
				row = append(row, nil)
			} else {
				row = append(row, ptr(string(a.EmailChangePending)))
			}
		}

		if !st.Pending() {
			row = append(row, nil, nil)
			continue
		}
		row = append(row, ptr(st.Digest), ptr(st.RequestedAt))
	}

	return append(row, a.RegisteredAt, a.UpdatedAt)
}
