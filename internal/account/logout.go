package account

import (
	"context"
	"fmt"
)

// LogoutReason is why a session ends.
type LogoutReason int

const (
	// LogoutPlain is a logout requested by the user.
	LogoutPlain LogoutReason = iota
	// LogoutAccountDeletionRequested ends the session after a deletion link was sent.
	LogoutAccountDeletionRequested
	// LogoutAccountDeletionConfirmed ends the session of an account that was deleted.
	LogoutAccountDeletionConfirmed
	// LogoutEmailChanged ends the session after the account email changed.
	LogoutEmailChanged
)

func (r LogoutReason) String() string {
	switch r {
	case LogoutPlain:
		return "plain"
	case LogoutAccountDeletionRequested:
		return "account deletion requested"
	case LogoutAccountDeletionConfirmed:
		return "account deletion confirmed"
	case LogoutEmailChanged:
		return "email changed"
	default:
		return fmt.Sprintf("LogoutReason(%d)", int(r))
	}
}

// Session is the authenticated session of a user.
type Session interface {
	// Invalidate destroys the authenticated session. Data added to the
	// session afterwards belongs to a fresh, anonymous session.
	Invalidate() error
	AddFlash(value any, vars ...string)
}

// LogoutHook runs after a session was invalidated.
type LogoutHook func(ctx context.Context, sess Session) error

// LogoutCoordinator ends sessions, running a hook depending on the reason.
//
// The session is always invalidated before the hook runs: a flash message
// added before invalidation would be destroyed with the session.
type LogoutCoordinator struct {
	hooks map[LogoutReason]LogoutHook
}

// NewLogoutCoordinator creates a coordinator with the given hooks.
// Reasons without a hook are plain invalidations.
func NewLogoutCoordinator(hooks map[LogoutReason]LogoutHook) *LogoutCoordinator {
	h := make(map[LogoutReason]LogoutHook, len(hooks))
	for reason, hook := range hooks {
		h[reason] = hook
	}

	return &LogoutCoordinator{
		hooks: h,
	}
}

// OnLogout invalidates sess exactly once and then runs the hook of reason, if any.
// The hook does not run when invalidation fails.
func (c *LogoutCoordinator) OnLogout(ctx context.Context, reason LogoutReason, sess Session) error {
	if err := sess.Invalidate(); err != nil {
		return fmt.Errorf("failed to invalidate session: %w", err)
	}

	hook, ok := c.hooks[reason]
	if !ok || hook == nil {
		return nil
	}

	if err := hook(ctx, sess); err != nil {
		return fmt.Errorf("logout hook for %s: %w", reason, err)
	}

	return nil
}

// FlashHook returns a hook that adds a flash message to the fresh session.
func FlashHook(message string, vars ...string) LogoutHook {
	return func(_ context.Context, sess Session) error {
		sess.AddFlash(message, vars...)
		return nil
	}
}
