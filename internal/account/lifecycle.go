package account

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/thibaut-decherit/usermanager/internal/krypto"
)

// maxPresentedTokenLen bounds tokens accepted by Confirm, well above the
// longest token a TokenGenerator produces.
const maxPresentedTokenLen = 1024

// RequestResult is the expected outcome of Lifecycle.Request.
type RequestResult int

const (
	// RequestSent means a new token was stored and sent.
	RequestSent RequestResult = iota + 1
	// RequestThrottled means a token was sent recently, nothing happened.
	RequestThrottled
)

func (r RequestResult) String() string {
	switch r {
	case RequestSent:
		return "sent"
	case RequestThrottled:
		return "throttled"
	default:
		return fmt.Sprintf("RequestResult(%d)", int(r))
	}
}

// ConfirmResult is the expected outcome of Lifecycle.Confirm.
type ConfirmResult int

const (
	// ConfirmNotFound means the token is unknown or was already used.
	// The two can't be told apart on purpose.
	ConfirmNotFound ConfirmResult = iota + 1
	// ConfirmExpired means the token was found but its validity has passed.
	// The token was cleared.
	ConfirmExpired
	// ConfirmApplied means the mutation was applied and the token cleared.
	ConfirmApplied
)

func (r ConfirmResult) String() string {
	switch r {
	case ConfirmNotFound:
		return "not found"
	case ConfirmExpired:
		return "expired"
	case ConfirmApplied:
		return "applied"
	default:
		return fmt.Sprintf("ConfirmResult(%d)", int(r))
	}
}

// Disposition tells Confirm what to do with the account after a mutation.
type Disposition int

const (
	// Keep stores the mutated account.
	Keep Disposition = iota
	// Remove deletes the account.
	Remove
)

// Mutation is applied to the account owning a valid token.
type Mutation func(a *Account) (Disposition, error)

// TokenNotice is handed to notifiers when a token was issued.
type TokenNotice struct {
	Kind FlowKind
	// Token is the plaintext token. It is only ever sent to the account owner.
	Token           string
	LifetimeMinutes int
}

// LogValue implements the slog.LogValuer interface, the token is redacted.
func (n TokenNotice) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(n.Kind)),
		slog.String("token", krypto.SecretMarker),
		slog.Int("lifetimeMinutes", n.LifetimeMinutes),
	)
}

// Lifecycle manages the tokens of one flow kind: request, then confirm or expire.
//
// Expiry is computed when a token is presented or requested again, nothing
// sweeps expired tokens in the background.
type Lifecycle struct {
	kind        FlowKind
	policy      Policy
	generator   krypto.TokenGenerator
	maxAttempts int
}

// NewLifecycle creates a lifecycle for kind. maxAttempts bounds the
// uniqueness retries, see krypto.EnsureUnique.
func NewLifecycle(kind FlowKind, policy Policy, generator krypto.TokenGenerator, maxAttempts int) (*Lifecycle, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown flow kind %q", kind)
	}

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("%s policy: %w", kind, err)
	}

	return &Lifecycle{
		kind:        kind,
		policy:      policy,
		generator:   generator,
		maxAttempts: maxAttempts,
	}, nil
}

// Kind returns the flow kind managed by l.
func (l *Lifecycle) Kind() FlowKind {
	return l.kind
}

// Policy returns the time windows used by l.
func (l *Lifecycle) Policy() Policy {
	return l.policy
}

// Throttled reports whether a is inside the cooldown of a pending, unexpired token.
func (l *Lifecycle) Throttled(a *Account, now time.Time) bool {
	st := a.Token(l.kind)
	if !st.Pending() || l.policy.Cooldown <= 0 {
		return false
	}

	if HasElapsed(st.RequestedAt, l.policy.Validity, now) {
		return false
	}

	return !HasElapsed(st.RequestedAt, l.policy.Cooldown, now)
}

// Request issues a new token for a, unless Throttled. In that case nothing is written
// and notify is not called.
//
// Otherwise stage (optional) is applied to a, a unique token is minted, a is updated
// and notify is called with the token. An error returned by notify is returned as is,
// the caller is expected to roll back tx so no undelivered token survives.
func (l *Lifecycle) Request(tx Tx, a *Account, now time.Time, stage func(*Account), notify func(TokenNotice) error) (RequestResult, error) {
	if l.Throttled(a, now) {
		return RequestThrottled, nil
	}

	if stage != nil {
		stage(a)
	}

	token, err := krypto.EnsureUnique(l.generator.Generate, l.tokenExists(tx), l.maxAttempts)
	if err != nil {
		return 0, err
	}

	// A previous token of this kind is overwritten and can no longer be confirmed.
	*a.Token(l.kind) = TokenState{
		Digest:      krypto.DigestToken(token),
		RequestedAt: now,
	}
	a.UpdatedAt = now

	if err := tx.UpdateAccount(a); err != nil {
		return 0, err
	}

	err = notify(TokenNotice{
		Kind:            l.kind,
		Token:           token,
		LifetimeMinutes: l.policy.LifetimeMinutes(),
	})
	if err != nil {
		return 0, err
	}

	return RequestSent, nil
}

// Confirm consumes token. The owning account is locked, checked for expiry and
// passed to mutate. Whatever the outcome, a found token is cleared, so a token
// is applied at most once.
//
// The returned account is the state after the mutation, the zero Account if
// the token was not found.
func (l *Lifecycle) Confirm(tx Tx, token string, now time.Time, mutate Mutation) (ConfirmResult, Account, error) {
	if token == "" || len(token) > maxPresentedTokenLen {
		return ConfirmNotFound, Account{}, nil
	}

	accounts, err := tx.FindAccounts(&Filter{
		Token: &TokenFilter{
			Kind:   l.kind,
			Digest: krypto.DigestToken(token),
		},
		ForUpdate: true,
	})
	if err != nil {
		return 0, Account{}, err
	}

	if len(accounts) == 0 {
		return ConfirmNotFound, Account{}, nil
	}

	if len(accounts) > 1 {
		return 0, Account{}, fmt.Errorf("%d accounts share a %s token", len(accounts), l.kind)
	}

	a := accounts[0]

	if HasElapsed(a.Token(l.kind).RequestedAt, l.policy.Validity, now) {
		a.ClearToken(l.kind)
		a.UpdatedAt = now

		if err := tx.UpdateAccount(&a); err != nil {
			return 0, Account{}, err
		}

		return ConfirmExpired, a, nil
	}

	disposition, err := mutate(&a)
	if err != nil {
		return 0, Account{}, err
	}

	a.ClearToken(l.kind)
	a.UpdatedAt = now

	switch disposition {
	case Remove:
		err = tx.DeleteAccount(a.ID)
	default:
		err = tx.UpdateAccount(&a)
	}

	if err != nil {
		return 0, Account{}, err
	}

	return ConfirmApplied, a, nil
}

func (l *Lifecycle) tokenExists(tx Tx) func(string) (bool, error) {
	return func(token string) (bool, error) {
		accounts, err := tx.FindAccounts(&Filter{
			Token: &TokenFilter{
				Kind:   l.kind,
				Digest: krypto.DigestToken(token),
			},
			Limit: 1,
		})
		if err != nil {
			return false, err
		}

		return len(accounts) > 0, nil
	}
}
