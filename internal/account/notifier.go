package account

import (
	"context"
	"fmt"
	"net/url"

	"github.com/thibaut-decherit/usermanager/internal/email"
)

// Notifier tells account owners about requests made on their account.
//
// Token notices carry the plaintext token, implementations must only send
// it to the address passed along, never log it.
type Notifier interface {
	SendActivation(ctx context.Context, a Account, n TokenNotice) error
	SendPasswordReset(ctx context.Context, a Account, n TokenNotice) error
	// SendEmailChange is sent to a.EmailChangePending, proving control of the new address.
	SendEmailChange(ctx context.Context, a Account, n TokenNotice) error
	SendAccountDeletionRequest(ctx context.Context, a Account, n TokenNotice) error
	SendAccountDeletionSuccess(ctx context.Context, a Account) error
	SendDuplicateRegistrationNotice(ctx context.Context, a Account, activated bool) error
	SendLoginAttemptOnUnactivated(ctx context.Context, a Account) error
}

// Emailer is used to send templated emails.
type Emailer interface {
	Send(ctx context.Context, template string, to email.Address, data any) error
}

// Email templates used by EmailNotifier.
const (
	TemplateActivation              = "account-activation"
	TemplatePasswordReset           = "password-reset"
	TemplateEmailChange             = "email-change"
	TemplateDeletionRequest         = "account-deletion-request"
	TemplateDeletionSuccess         = "account-deletion-success"
	TemplateRegistrationAttempt     = "registration-attempt"
	TemplateLoginAttemptUnactivated = "login-attempt-unactivated"
)

// Templates lists all templates EmailNotifier may send.
var Templates = []string{
	TemplateActivation,
	TemplatePasswordReset,
	TemplateEmailChange,
	TemplateDeletionRequest,
	TemplateDeletionSuccess,
	TemplateRegistrationAttempt,
	TemplateLoginAttemptUnactivated,
}

// Paths of the pages linked from emails, relative to the base URL.
var linkPaths = map[FlowKind][]string{
	FlowActivation:      {"account", "activate"},
	FlowPasswordReset:   {"password-reset"},
	FlowEmailChange:     {"email-change"},
	FlowAccountDeletion: {"account", "delete"},
}

const (
	passwordResetFormPath = "password-reset"
	resendActivationPath  = "account/activate/resend"
)

// TokenEmail is the template data of emails carrying a confirmation link.
type TokenEmail struct {
	Kind            FlowKind
	Username        string
	URL             string
	LifetimeMinutes int
	// NewEmail is only set for email changes.
	NewEmail email.Address
}

// EmailLayout implements email.Layouter.
func (e TokenEmail) EmailLayout() email.Layout {
	l := email.Layout{
		Greeting: e.Username,
		Action: &email.Action{
			Instructions: fmt.Sprintf("This link is valid for %d minutes.", e.LifetimeMinutes),
			Link:         e.URL,
		},
		Outros: []string{"If you did not make this request, you can safely ignore this email."},
	}

	switch e.Kind {
	case FlowActivation:
		l.Intros = []string{"Welcome! Please confirm your email address to activate your account."}
		l.Action.Button = "Activate account"
	case FlowPasswordReset:
		l.Intros = []string{"A password reset was requested for your account."}
		l.Action.Button = "Reset password"
	case FlowEmailChange:
		l.Intros = []string{fmt.Sprintf("Please confirm %s as the new email address of your account.", e.NewEmail)}
		l.Action.Button = "Confirm email address"
	case FlowAccountDeletion:
		l.Intros = []string{"The deletion of your account was requested. This can't be undone."}
		l.Action.Button = "Delete account"
	}

	return l
}

// NoticeEmail is the template data of informational emails.
type NoticeEmail struct {
	Template  string
	Username  string
	Activated bool
	// URL points to the page that helps the owner, it is empty when there is none.
	URL string
}

// EmailLayout implements email.Layouter.
func (e NoticeEmail) EmailLayout() email.Layout {
	l := email.Layout{Greeting: e.Username}

	switch e.Template {
	case TemplateDeletionSuccess:
		l.Intros = []string{"Your account and all its data were deleted."}
	case TemplateRegistrationAttempt:
		l.Intros = []string{"Someone tried to register a new account with your username or email address."}
		if e.Activated {
			l.Action = &email.Action{
				Instructions: "If it was you and you forgot your password, you can reset it.",
				Button:       "Reset password",
				Link:         e.URL,
			}
		} else {
			l.Action = &email.Action{
				Instructions: "Your account is not activated yet. You can get a new activation link.",
				Button:       "Resend activation link",
				Link:         e.URL,
			}
		}
	case TemplateLoginAttemptUnactivated:
		l.Intros = []string{"Someone logged in to your account, but it is not activated yet."}
		l.Action = &email.Action{
			Instructions: "Check your inbox for the activation link, or get a new one.",
			Button:       "Resend activation link",
			Link:         e.URL,
		}
	}

	return l
}

// EmailNotifier is a Notifier sending templated emails with links
// relative to a base URL.
type EmailNotifier struct {
	emailer Emailer
	baseURL *url.URL
}

// NewEmailNotifier creates a notifier. baseURL must be an absolute URL.
func NewEmailNotifier(emailer Emailer, baseURL string) (*EmailNotifier, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}

	if !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("base url must be absolute, got %q", baseURL)
	}

	return &EmailNotifier{
		emailer: emailer,
		baseURL: u,
	}, nil
}

// TokenURL returns the confirmation link of a token notice.
func (n *EmailNotifier) TokenURL(notice TokenNotice) string {
	elem := append(append([]string{}, linkPaths[notice.Kind]...), notice.Token)
	return n.baseURL.JoinPath(elem...).String()
}

func (n *EmailNotifier) SendActivation(ctx context.Context, a Account, notice TokenNotice) error {
	return n.sendToken(ctx, TemplateActivation, a.Email, a, notice)
}

func (n *EmailNotifier) SendPasswordReset(ctx context.Context, a Account, notice TokenNotice) error {
	return n.sendToken(ctx, TemplatePasswordReset, a.Email, a, notice)
}

func (n *EmailNotifier) SendEmailChange(ctx context.Context, a Account, notice TokenNotice) error {
	return n.sendToken(ctx, TemplateEmailChange, a.EmailChangePending, a, notice)
}

func (n *EmailNotifier) SendAccountDeletionRequest(ctx context.Context, a Account, notice TokenNotice) error {
	return n.sendToken(ctx, TemplateDeletionRequest, a.Email, a, notice)
}

func (n *EmailNotifier) SendAccountDeletionSuccess(ctx context.Context, a Account) error {
	return n.emailer.Send(ctx, TemplateDeletionSuccess, a.Email, NoticeEmail{
		Template: TemplateDeletionSuccess,
		Username: a.Username,
	})
}

func (n *EmailNotifier) SendDuplicateRegistrationNotice(ctx context.Context, a Account, activated bool) error {
	path := resendActivationPath
	if activated {
		path = passwordResetFormPath
	}

	return n.emailer.Send(ctx, TemplateRegistrationAttempt, a.Email, NoticeEmail{
		Template:  TemplateRegistrationAttempt,
		Username:  a.Username,
		Activated: activated,
		URL:       n.baseURL.JoinPath(path).String(),
	})
}

func (n *EmailNotifier) SendLoginAttemptOnUnactivated(ctx context.Context, a Account) error {
	return n.emailer.Send(ctx, TemplateLoginAttemptUnactivated, a.Email, NoticeEmail{
		Template: TemplateLoginAttemptUnactivated,
		Username: a.Username,
		URL:      n.baseURL.JoinPath(resendActivationPath).String(),
	})
}

func (n *EmailNotifier) sendToken(ctx context.Context, template string, to email.Address, a Account, notice TokenNotice) error {
	data := TokenEmail{
		Kind:            notice.Kind,
		Username:        a.Username,
		URL:             n.TokenURL(notice),
		LifetimeMinutes: notice.LifetimeMinutes,
	}

	if notice.Kind == FlowEmailChange {
		data.NewEmail = a.EmailChangePending
	}

	return n.emailer.Send(ctx, template, to, data)
}
