package email

import (
	"context"
	"log/slog"
)

// LogSender is a Sender that logs the email to the logger instead of sending it.
// Note that this is not meant for production use as it logs the email addresses
// and all email contents, confirmation links included.
type LogSender struct {
	logger *slog.Logger
}

// NewLogSender creates a new LogSender.
func NewLogSender(logger *slog.Logger) *LogSender {
	return &LogSender{
		logger: logger,
	}
}

// Send logs the email to the logger. The HTML alternative is not logged, only its size.
func (s *LogSender) Send(ctx context.Context, msg Message) error {
	s.logger.InfoContext(ctx, "send email",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"text", msg.Text,
		"htmlBytes", len(msg.HTML),
	)
	return nil
}
