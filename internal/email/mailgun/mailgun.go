// Package mailgun sends emails through the Mailgun API.
package mailgun

import (
	"context"
	"fmt"

	"github.com/mailgun/mailgun-go/v4"
	"github.com/thibaut-decherit/usermanager/internal/email"
	"github.com/thibaut-decherit/usermanager/internal/krypto"
)

// Settings contains the settings for the Mailgun API.
type Settings struct {
	Domain string
	APIKey krypto.Secret
	// APIBase overrides the API endpoint, for example mailgun.APIBaseEU.
	// Empty uses the default US endpoint.
	APIBase string
}

// Sender is an email sender that sends emails using the Mailgun API.
type Sender struct {
	mg *mailgun.MailgunImpl
}

// NewSender creates a new sender.
func NewSender(s Settings) *Sender {
	mg := mailgun.NewMailgun(s.Domain, s.APIKey.SecretValue())
	if s.APIBase != "" {
		mg.SetAPIBase(s.APIBase)
	}

	return &Sender{
		mg: mg,
	}
}

// Send sends an email using the Mailgun API.
func (s *Sender) Send(ctx context.Context, msg email.Message) error {
	m := s.mg.NewMessage(string(msg.From), msg.Subject, msg.Text, string(msg.To))
	if msg.HTML != "" {
		m.SetHtml(msg.HTML)
	}

	_, _, err := s.mg.Send(ctx, m)
	if err != nil {
		return fmt.Errorf("failed to send email via mailgun: %w", err)
	}

	return nil
}
