package db_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/email"
)

const testHash = "$argon2id$v=19$m=47104,t=1,p=1$CkX5zzYLJMWm0y/17eScyw$Qfah+NewdsdeF0+iV72mShZhRO93Qwzdj17TUZCH6ZU"

func now(t *testing.T, i int) time.Time {
	t.Helper()
	return time.Date(2024, 3, 10, 12, 0, i, 123456789, time.UTC)
}

// testAccount returns an unactivated account with a pending activation token.
func testAccount(t *testing.T, n int, modify func(a *account.Account)) account.Account {
	t.Helper()

	ids := []string{
		"3f3a0dbb-0f66-4bd6-a1c4-7a06f5f3c9b1",
		"9a1cbd56-8d6b-4d5e-b1d8-6d1c6b8f2a10",
		"e4f1c2d3-5b6a-4c7d-8e9f-0a1b2c3d4e5f",
	}

	a := account.Account{
		ID:           uuid.MustParse(ids[n]),
		Username:     []string{"alice", "bob", "carol"}[n],
		Email:        []email.Address{"alice@example.com", "bob@example.com", "carol@example.com"}[n],
		PasswordHash: testHash,
		Activation: account.TokenState{
			Digest:      []string{"d0", "d1", "d2"}[n],
			RequestedAt: now(t, n),
		},
		RegisteredAt: now(t, n),
		UpdatedAt:    now(t, n),
	}

	if modify != nil {
		modify(&a)
	}

	return a
}

// sameAccount compares accounts, times are compared with time.Equal.
func sameAccount(a, b account.Account) bool {
	for _, k := range account.FlowKinds {
		if !a.Token(k).RequestedAt.Equal(b.Token(k).RequestedAt) {
			return false
		}
		a.Token(k).RequestedAt = time.Time{}
		b.Token(k).RequestedAt = time.Time{}
	}

	if !a.RegisteredAt.Equal(b.RegisteredAt) || !a.UpdatedAt.Equal(b.UpdatedAt) {
		return false
	}

	a.RegisteredAt, b.RegisteredAt = time.Time{}, time.Time{}
	a.UpdatedAt, b.UpdatedAt = time.Time{}, time.Time{}

	return a == b
}

func assertAccounts(t *testing.T, got, want []account.Account) {
	t.Helper()

	if len(got) != len(want) {
		t.Fatalf("got %d accounts, want %d:\n%#v", len(got), len(want), got)
	}

	for i := range got {
		if !sameAccount(got[i], want[i]) {
			t.Errorf("account %d:\ngot  %#v\nwant %#v", i, got[i], want[i])
		}
	}
}

func ptr[T any](v T) *T {
	return &v
}
