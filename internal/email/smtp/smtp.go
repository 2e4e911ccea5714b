// Package smtp sends emails over SMTP using go-mail.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/krypto"
	"github.com/wneessen/go-mail"
)

// TLS policies accepted in Settings.
const (
	TLSMandatory     = "mandatory"
	TLSOpportunistic = "opportunistic"
	TLSNone          = "none"
)

var ErrInvalidTLSPolicy = errors.New("invalid tls policy")

// Settings contains the settings of the SMTP server.
type Settings struct {
	Host     string
	Port     int
	Username string
	Password krypto.Secret
	// TLS is one of TLSMandatory, TLSOpportunistic or TLSNone.
	TLS     string
	Timeout time.Duration
}

// Sender sends emails through an SMTP server. A connection is dialed per email.
type Sender struct {
	client *mail.Client
}

// NewSender creates a new sender, no connection is made until Send.
func NewSender(s Settings) (*Sender, error) {
	policy, err := tlsPolicy(s.TLS)
	if err != nil {
		return nil, err
	}

	timeout := s.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	opts := []mail.Option{
		mail.WithPort(s.Port),
		mail.WithTimeout(timeout),
		mail.WithTLSPolicy(policy),
	}

	// Servers on localhost usually don't authenticate.
	if s.Username != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(s.Username),
			mail.WithPassword(s.Password.SecretValue()),
		)
	}

	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create smtp client: %w", err)
	}

	return &Sender{
		client: client,
	}, nil
}

// Send sends msg, with the HTML body as an alternative to the text body.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	m, err := NewMsg(msg)
	if err != nil {
		return err
	}

	if err := s.client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("failed to send email via smtp: %w", err)
	}

	return nil
}

// NewMsg converts msg to a go-mail message.
func NewMsg(msg email.Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(string(msg.From)); err != nil {
		return nil, fmt.Errorf("invalid from address: %w", err)
	}

	if err := m.To(string(msg.To)); err != nil {
		return nil, fmt.Errorf("invalid to address: %w", err)
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Text)

	if msg.HTML != "" {
		m.AddAlternativeString(mail.TypeTextHTML, msg.HTML)
	}

	return m, nil
}

func tlsPolicy(raw string) (mail.TLSPolicy, error) {
	switch raw {
	case TLSMandatory, "":
		return mail.TLSMandatory, nil
	case TLSOpportunistic:
		return mail.TLSOpportunistic, nil
	case TLSNone:
		return mail.NoTLS, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidTLSPolicy, raw)
	}
}
