package mail

import (
	"context"

	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/types"
)

// LogMailer writes emails to the logger instead of delivering them.
type LogMailer struct {
	logger logging.Logger
}

func NewLogMailer(logger logging.Logger) *LogMailer {
	return &LogMailer{logger: logger.With("component", "log_mailer")}
}

func (m *LogMailer) Send(ctx context.Context, email types.Email) error {
	m.logger.Info(ctx, "email", "to", email.To, "from", email.From, "subject", email.Subject, "text", email.Text)
	return nil
}
