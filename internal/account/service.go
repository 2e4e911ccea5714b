package account

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/errorz"
	"github.com/thibaut-decherit/usermanager/internal/krypto"
)

var (
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrAccountNotActivated = errors.New("account not activated")
	ErrSameEmail           = errors.New("new email address is the current one")
	ErrRequestLimited      = errors.New("too many requests")
	ErrNegativePurgeAge    = errors.New("purge age must not be negative")
)

// DefaultPurgeBatch is the batch size of PurgeUnactivated when none is given.
const DefaultPurgeBatch = 100

// ServiceConfig is the configuration for the Service.
type ServiceConfig struct {
	Activation      Policy
	PasswordReset   Policy
	EmailChange     Policy
	AccountDeletion Policy
	// EntropyBits of generated tokens, krypto.DefaultEntropyBits if 0.
	EntropyBits int
	// MaxAttempts bounds token generation retries on collisions.
	MaxAttempts int
	// Rand is the source of token entropy, crypto/rand if nil.
	Rand io.Reader
}

// DefaultServiceConfig returns the configuration used when nothing is configured.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		Activation:      Policy{Validity: 24 * time.Hour},
		PasswordReset:   Policy{Validity: time.Hour, Cooldown: 5 * time.Minute},
		EmailChange:     Policy{Validity: time.Hour, Cooldown: 5 * time.Minute},
		AccountDeletion: Policy{Validity: time.Hour},
		EntropyBits:     krypto.DefaultEntropyBits,
		MaxAttempts:     krypto.DefaultMaxAttempts,
	}
}

func (c ServiceConfig) policy(k FlowKind) Policy {
	switch k {
	case FlowActivation:
		return c.Activation
	case FlowPasswordReset:
		return c.PasswordReset
	case FlowEmailChange:
		return c.EmailChange
	default:
		return c.AccountDeletion
	}
}

// ServiceOption configures optional Service dependencies.
type ServiceOption func(*Service)

// WithRequestLimiter limits how often requests can be made.
func WithRequestLimiter(l RequestLimiter) ServiceOption {
	return func(s *Service) {
		s.limiter = l
	}
}

// Service provides the account flows. Every method runs in a single
// transaction. Notifications are sent inside it, a failing notifier rolls
// back the request that triggered it.
type Service struct {
	store      Store
	notifier   Notifier
	logger     *slog.Logger
	limiter    RequestLimiter
	lifecycles map[FlowKind]*Lifecycle

	// comparisonHash is used to compare passwords when no account was found.
	comparisonHash string

	// NowFunc is used to get the current time.
	// Exposed for testing purposes.
	NowFunc func() time.Time
}

func NewService(store Store, notifier Notifier, logger *slog.Logger, cfg ServiceConfig, opts ...ServiceOption) (*Service, error) {
	if cfg.EntropyBits != 0 {
		if err := krypto.ValidateEntropy(cfg.EntropyBits); err != nil {
			return nil, err
		}
	}

	rnd := cfg.Rand
	if rnd == nil {
		rnd = rand.Reader
	}

	gen := krypto.TokenGenerator{
		Rand:        rnd,
		EntropyBits: cfg.EntropyBits,
	}

	lifecycles := make(map[FlowKind]*Lifecycle, len(FlowKinds))
	for _, k := range FlowKinds {
		l, err := NewLifecycle(k, cfg.policy(k), gen, cfg.MaxAttempts)
		if err != nil {
			return nil, err
		}
		lifecycles[k] = l
	}

	// The comparison hash never matches anything, it only costs the same as a real one.
	salt := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, &krypto.EntropySourceError{Err: err}
	}

	hash, err := krypto.HashArgon2(salt)
	if err != nil {
		return nil, err
	}

	svc := &Service{
		store:          store,
		notifier:       notifier,
		logger:         logger,
		lifecycles:     lifecycles,
		comparisonHash: hash.String(),
		NowFunc:        time.Now,
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// Register creates an unactivated account and sends it an activation link.
//
// If the username or email is already taken, no account is created and the owners
// of the existing accounts are notified instead. The returned outcome must not be
// revealed to the registering party.
func (s *Service) Register(ctx context.Context, r Registration) (DuplicateOutcome, error) {
	pwdHash, err := r.Password.Hash()
	if err != nil {
		return NoDuplicate, err
	}

	outcome := NoDuplicate
	err = s.inTx(ctx, func(tx Tx) error {
		dups, txErr := ResolveDuplicates(tx, r.Email, r.Username)
		if txErr != nil {
			return txErr
		}

		if len(dups) > 0 {
			outcome = dups[0].Outcome
			for _, d := range dups {
				txErr = s.notifier.SendDuplicateRegistrationNotice(ctx, d.Account, d.Outcome == DuplicateActivated)
				if txErr != nil {
					return txErr
				}
			}
			return nil
		}

		now := s.NowFunc()
		a := Account{
			ID:           uuid.New(),
			Username:     r.Username,
			Email:        r.Email,
			PasswordHash: pwdHash,
			RegisteredAt: now,
			UpdatedAt:    now,
		}

		txErr = tx.CreateAccount(&a)
		if txErr != nil {
			return txErr
		}

		_, txErr = s.lifecycles[FlowActivation].Request(tx, &a, now, nil, func(n TokenNotice) error {
			return s.notifier.SendActivation(ctx, a, n)
		})
		return txErr
	})
	if err != nil {
		return NoDuplicate, err
	}

	if outcome != NoDuplicate {
		s.logger.InfoContext(ctx, "registration collided with existing account", "outcome", outcome)
	}

	return outcome, nil
}

// ResendActivation sends a new activation link to the unactivated account identified by
// login, an email address or a username. errorz.ErrNotFound is returned if there is none.
func (s *Service) ResendActivation(ctx context.Context, login string) (RequestResult, error) {
	var res RequestResult
	err := s.inTx(ctx, func(tx Tx) error {
		a, txErr := s.findByLogin(tx, login, ptr(false))
		if txErr != nil {
			return txErr
		}

		if txErr = s.allow(ctx, FlowActivation, a.ID.String()); txErr != nil {
			return txErr
		}

		res, txErr = s.lifecycles[FlowActivation].Request(tx, &a, s.NowFunc(), nil, func(n TokenNotice) error {
			return s.notifier.SendActivation(ctx, a, n)
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return res, nil
}

// Activate activates the account owning token.
func (s *Service) Activate(ctx context.Context, token string) (ConfirmResult, error) {
	var res ConfirmResult
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		res, _, txErr = s.lifecycles[FlowActivation].Confirm(tx, token, s.NowFunc(), func(a *Account) (Disposition, error) {
			a.Activated = true
			return Keep, nil
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return res, nil
}

// RequestPasswordReset sends a password reset link to the account identified by login.
// Unactivated accounts can reset their password too. errorz.ErrNotFound is returned
// if no account matches.
func (s *Service) RequestPasswordReset(ctx context.Context, login string) (RequestResult, error) {
	var res RequestResult
	err := s.inTx(ctx, func(tx Tx) error {
		a, txErr := s.findByLogin(tx, login, nil)
		if txErr != nil {
			return txErr
		}

		if txErr = s.allow(ctx, FlowPasswordReset, a.ID.String()); txErr != nil {
			return txErr
		}

		res, txErr = s.lifecycles[FlowPasswordReset].Request(tx, &a, s.NowFunc(), nil, func(n TokenNotice) error {
			return s.notifier.SendPasswordReset(ctx, a, n)
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return res, nil
}

// ResetPassword sets the password of the account owning token. Receiving the link
// proves control of the email address, so an unactivated account is activated.
func (s *Service) ResetPassword(ctx context.Context, token string, pwd krypto.Password) (ConfirmResult, error) {
	pwdHash, err := pwd.Hash()
	if err != nil {
		return 0, err
	}

	var res ConfirmResult
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		res, _, txErr = s.lifecycles[FlowPasswordReset].Confirm(tx, token, s.NowFunc(), func(a *Account) (Disposition, error) {
			a.PasswordHash = pwdHash
			if !a.Activated {
				a.Activated = true
				a.ClearToken(FlowActivation)
			}
			return Keep, nil
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return res, nil
}

// RequestEmailChange stages addr as the new email of account id and sends a confirmation
// link to it. When addr belongs to another account the request is stored but the link is
// not sent, so the requester can't tell which addresses are registered.
func (s *Service) RequestEmailChange(ctx context.Context, id uuid.UUID, addr email.Address) (RequestResult, error) {
	if err := s.allow(ctx, FlowEmailChange, id.String()); err != nil {
		return 0, err
	}

	var res RequestResult
	err := s.inTx(ctx, func(tx Tx) error {
		a, txErr := s.findByID(tx, id)
		if txErr != nil {
			return txErr
		}

		if a.Email == addr {
			return ErrSameEmail
		}

		taken, txErr := tx.FindAccounts(&Filter{
			Emails: []email.Address{addr},
			Limit:  1,
		})
		if txErr != nil {
			return txErr
		}

		stage := func(a *Account) {
			a.EmailChangePending = addr
		}

		res, txErr = s.lifecycles[FlowEmailChange].Request(tx, &a, s.NowFunc(), stage, func(n TokenNotice) error {
			if len(taken) > 0 {
				s.logger.InfoContext(ctx, "email change to registered address, link not sent", "account", a.ID)
				return nil
			}
			return s.notifier.SendEmailChange(ctx, a, n)
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return res, nil
}

// ConfirmEmailChange replaces the email of the account owning token by the pending one.
// If another account registered the pending address in the meantime, the email is left
// unchanged but the token is consumed all the same. changed reports whether the email
// was replaced, the caller is expected to end the sessions of the account if so.
func (s *Service) ConfirmEmailChange(ctx context.Context, token string) (ConfirmResult, bool, error) {
	res, changed, err := s.confirmEmailChange(ctx, token, true)
	if changed && errors.Is(err, errorz.ErrConstraintViolated) {
		// The pending address was claimed after it was checked. The transaction
		// is aborted at this point, so the token is consumed in a new one.
		s.logger.InfoContext(ctx, "pending email was claimed during confirmation")
		res, changed, err = s.confirmEmailChange(ctx, token, false)
	}
	if err != nil {
		return 0, false, err
	}

	return res, changed, nil
}

func (s *Service) confirmEmailChange(ctx context.Context, token string, swap bool) (res ConfirmResult, changed bool, err error) {
	err = s.inTx(ctx, func(tx Tx) error {
		var txErr error
		res, _, txErr = s.lifecycles[FlowEmailChange].Confirm(tx, token, s.NowFunc(), func(a *Account) (Disposition, error) {
			changed = false
			if !swap || a.EmailChangePending == "" {
				return Keep, nil
			}

			taken, err := tx.FindAccounts(&Filter{
				Emails: []email.Address{a.EmailChangePending},
				Limit:  1,
			})
			if err != nil {
				return Keep, err
			}

			if len(taken) > 0 {
				s.logger.InfoContext(ctx, "pending email was taken before confirmation", "account", a.ID)
				return Keep, nil
			}

			a.Email = a.EmailChangePending
			changed = true
			return Keep, nil
		})
		return txErr
	})

	return res, changed, err
}

// RequestAccountDeletion sends a deletion link to the owner of account id.
func (s *Service) RequestAccountDeletion(ctx context.Context, id uuid.UUID) (RequestResult, error) {
	if err := s.allow(ctx, FlowAccountDeletion, id.String()); err != nil {
		return 0, err
	}

	var res RequestResult
	err := s.inTx(ctx, func(tx Tx) error {
		a, txErr := s.findByID(tx, id)
		if txErr != nil {
			return txErr
		}

		res, txErr = s.lifecycles[FlowAccountDeletion].Request(tx, &a, s.NowFunc(), nil, func(n TokenNotice) error {
			return s.notifier.SendAccountDeletionRequest(ctx, a, n)
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	return res, nil
}

// ConfirmAccountDeletion deletes the account owning token.
//
// The deletion is committed before the owner is notified. A failure to notify is
// logged and doesn't undo the deletion.
func (s *Service) ConfirmAccountDeletion(ctx context.Context, token string) (ConfirmResult, error) {
	var (
		res     ConfirmResult
		deleted Account
	)

	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		res, deleted, txErr = s.lifecycles[FlowAccountDeletion].Confirm(tx, token, s.NowFunc(), func(_ *Account) (Disposition, error) {
			return Remove, nil
		})
		return txErr
	})
	if err != nil {
		return 0, err
	}

	if res == ConfirmApplied {
		if err := s.notifier.SendAccountDeletionSuccess(ctx, deleted); err != nil {
			s.logger.ErrorContext(ctx, "failed to send account deletion notice", "account", deleted.ID, "error", err)
		}
	}

	return res, nil
}

// Authenticate checks login, an email address or a username, against pwd.
//
// Outdated password hashes are replaced on success. If the credentials match an
// unactivated account, its owner is notified and ErrAccountNotActivated returned.
func (s *Service) Authenticate(ctx context.Context, login string, pwd krypto.Password) (Account, error) {
	var a Account
	err := s.inTx(ctx, func(tx Tx) error {
		var txErr error
		a, txErr = s.findByLogin(tx, login, nil)
		if errors.Is(txErr, errorz.ErrNotFound) {
			// Even if no account is found we compare to a hash to prevent timing differences
			// that could result in user enumeration attacks.
			_, _, _ = pwd.Verify(s.comparisonHash)
			return ErrInvalidCredentials
		}
		if txErr != nil {
			return txErr
		}

		match, needsRehash, txErr := pwd.Verify(a.PasswordHash)
		if txErr != nil {
			return txErr
		}

		if !match {
			return ErrInvalidCredentials
		}

		if !a.Activated {
			return errors.Join(ErrAccountNotActivated, s.notifier.SendLoginAttemptOnUnactivated(ctx, a))
		}

		if !needsRehash {
			return nil
		}

		a.PasswordHash, txErr = pwd.Hash()
		if txErr != nil {
			return txErr
		}
		a.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&a)
	})
	if err != nil {
		return Account{}, err
	}

	return a, nil
}

// ChangePassword replaces the password of account id after checking the current one.
// A pending password reset is cancelled.
func (s *Service) ChangePassword(ctx context.Context, id uuid.UUID, current, next krypto.Password) error {
	return s.inTx(ctx, func(tx Tx) error {
		a, err := s.findByID(tx, id)
		if err != nil {
			return err
		}

		match, _, err := current.Verify(a.PasswordHash)
		if err != nil {
			return err
		}

		if !match {
			return ErrInvalidCredentials
		}

		a.PasswordHash, err = next.Hash()
		if err != nil {
			return err
		}

		a.ClearToken(FlowPasswordReset)
		a.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&a)
	})
}

// ChangeUsername replaces the username of account id. An invalid or taken username is
// reported as an errorz.InvalidInput keyed "username".
func (s *Service) ChangeUsername(ctx context.Context, id uuid.UUID, raw string) error {
	username, err := ParseUsername(raw)
	if err != nil {
		return errorz.InvalidInput{errorz.Keyed{Key: "username", Err: err}}
	}

	return s.inTx(ctx, func(tx Tx) error {
		a, err := s.findByID(tx, id)
		if err != nil {
			return err
		}

		if a.Username == username {
			return nil
		}

		taken, err := tx.FindAccounts(&Filter{
			Usernames: []string{username},
			Limit:     1,
		})
		if err != nil {
			return err
		}

		if len(taken) > 0 {
			return errorz.InvalidInput{errorz.Keyed{Key: "username", Err: ErrUsernameTaken}}
		}

		a.Username = username
		a.UpdatedAt = s.NowFunc()

		return tx.UpdateAccount(&a)
	})
}

// PurgeUnactivated deletes accounts that were never activated and registered more than
// olderThan ago. Accounts are deleted in transactions of batch accounts. It returns the
// number of deleted accounts, also when an error interrupts the purge.
func (s *Service) PurgeUnactivated(ctx context.Context, olderThan time.Duration, batch int) (int, error) {
	if olderThan < 0 {
		return 0, ErrNegativePurgeAge
	}

	if batch <= 0 {
		batch = DefaultPurgeBatch
	}

	before := s.NowFunc().Add(-olderThan)

	total := 0
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}

		n := 0
		err := s.inTx(ctx, func(tx Tx) error {
			accounts, txErr := tx.FindAccounts(&Filter{
				Activated:        ptr(false),
				RegisteredBefore: &before,
				ForUpdate:        true,
				Limit:            batch,
			})
			if txErr != nil {
				return txErr
			}

			for _, a := range accounts {
				if txErr = tx.DeleteAccount(a.ID); txErr != nil {
					return txErr
				}
			}

			n = len(accounts)
			return nil
		})
		if err != nil {
			return total, err
		}

		total += n
		if n < batch {
			break
		}
	}

	if total > 0 {
		s.logger.InfoContext(ctx, "purged unactivated accounts", "count", total, "registeredBefore", before)
	}

	return total, nil
}

func (s *Service) allow(ctx context.Context, kind FlowKind, key string) error {
	if s.limiter == nil {
		return nil
	}

	ok, err := s.limiter.Allow(ctx, kind, key)
	if err != nil {
		return fmt.Errorf("request limiter: %w", err)
	}

	if !ok {
		return ErrRequestLimited
	}

	return nil
}

// findByLogin finds the account with login as email address or username, ignoring
// surrounding whitespace. The account is locked for the rest of the transaction.
func (s *Service) findByLogin(tx Tx, login string, activated *bool) (Account, error) {
	login = strings.TrimSpace(login)

	filter := &Filter{
		Activated: activated,
		ForUpdate: true,
	}

	if isEmailLogin(login) {
		addr, err := email.ParseAddress(login)
		if err != nil {
			return Account{}, errorz.ErrNotFound
		}
		filter.Emails = []email.Address{addr}
	} else {
		filter.Usernames = []string{login}
	}

	accounts, err := tx.FindAccounts(filter)
	if err != nil {
		return Account{}, err
	}

	if len(accounts) != 1 {
		return Account{}, errorz.ErrNotFound
	}

	return accounts[0], nil
}

func (s *Service) findByID(tx Tx, id uuid.UUID) (Account, error) {
	accounts, err := tx.FindAccounts(&Filter{
		IDs:       []uuid.UUID{id},
		ForUpdate: true,
	})
	if err != nil {
		return Account{}, err
	}

	if len(accounts) != 1 {
		return Account{}, errorz.ErrNotFound
	}

	return accounts[0], nil
}

func (s *Service) inTx(ctx context.Context, f func(tx Tx) error) error {
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return err
	}

	err = f(tx)
	if err != nil {
		var entropyErr *krypto.EntropySourceError
		if errors.Is(err, krypto.ErrTokenSpaceExhausted) || errors.As(err, &entropyErr) {
			s.logger.ErrorContext(ctx, "failed to mint token", "error", err)
		}

		rBackErr := tx.Rollback()
		if rBackErr != nil {
			err = errors.Join(err, rBackErr)
		}
		return err
	}

	return tx.Commit()
}

func ptr[T any](v T) *T {
	return &v
}
