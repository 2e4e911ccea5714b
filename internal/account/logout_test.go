package account_test

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/thibaut-decherit/usermanager/internal/account"
	"github.com/thibaut-decherit/usermanager/internal/errorz/testerr"
)

func Test_LogoutCoordinator_OnLogout(t *testing.T) {
	hooks := map[account.LogoutReason]account.LogoutHook{
		account.LogoutAccountDeletionRequested: account.FlashHook("Check your inbox to confirm the deletion.", "info"),
		account.LogoutAccountDeletionConfirmed: account.FlashHook("Your account was deleted.", "success"),
		account.LogoutEmailChanged:             account.FlashHook("Log in with your new email address.", "success"),
	}

	tests := map[string]struct {
		reason account.LogoutReason
		want   []string
	}{
		"ok, plain": {
			reason: account.LogoutPlain,
			want:   []string{"invalidate"},
		},
		"ok, deletion requested": {
			reason: account.LogoutAccountDeletionRequested,
			want:   []string{"invalidate", "flash info: Check your inbox to confirm the deletion."},
		},
		"ok, deletion confirmed": {
			reason: account.LogoutAccountDeletionConfirmed,
			want:   []string{"invalidate", "flash success: Your account was deleted."},
		},
		"ok, email changed": {
			reason: account.LogoutEmailChanged,
			want:   []string{"invalidate", "flash success: Log in with your new email address."},
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			c := account.NewLogoutCoordinator(hooks)
			sess := &testSession{}

			if err := c.OnLogout(context.Background(), tc.reason, sess); err != nil {
				t.Fatalf("failed to log out: %v", err)
			}

			if !reflect.DeepEqual(sess.calls, tc.want) {
				t.Fatalf("got calls %v, want %v", sess.calls, tc.want)
			}
		})
	}

	t.Run("ok, hooks are copied", func(t *testing.T) {
		h := map[account.LogoutReason]account.LogoutHook{}
		c := account.NewLogoutCoordinator(h)
		h[account.LogoutPlain] = account.FlashHook("added later")

		sess := &testSession{}
		if err := c.OnLogout(context.Background(), account.LogoutPlain, sess); err != nil {
			t.Fatalf("failed to log out: %v", err)
		}

		if len(sess.calls) != 1 {
			t.Fatalf("got calls %v, want only invalidate", sess.calls)
		}
	})

	t.Run("fail, invalidate fails", func(t *testing.T) {
		c := account.NewLogoutCoordinator(hooks)
		sess := &testSession{err: testerr.Err}

		err := c.OnLogout(context.Background(), account.LogoutEmailChanged, sess)
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", testerr.Err, err)
		}

		if len(sess.calls) != 1 {
			t.Fatalf("expected hook not to run, got calls %v", sess.calls)
		}
	})

	t.Run("fail, hook fails", func(t *testing.T) {
		c := account.NewLogoutCoordinator(map[account.LogoutReason]account.LogoutHook{
			account.LogoutPlain: func(context.Context, account.Session) error {
				return testerr.Err
			},
		})

		err := c.OnLogout(context.Background(), account.LogoutPlain, &testSession{})
		if !errors.Is(err, testerr.Err) {
			t.Fatalf("expected error %v, got %v (via errors.Is)", testerr.Err, err)
		}
	})
}

// testSession records calls in order.
type testSession struct {
	calls []string
	err   error
}

func (s *testSession) Invalidate() error {
	s.calls = append(s.calls, "invalidate")
	return s.err
}

func (s *testSession) AddFlash(value any, vars ...string) {
	key := "flash"
	if len(vars) > 0 {
		key += " " + vars[0]
	}
	s.calls = append(s.calls, key+": "+value.(string))
}
