package mail

import (
	"fmt"

	"github.com/jjudge-oj/accounts/config"
	"github.com/jjudge-oj/accounts/internal/logging"
)

// NewDirectSender returns the sender that talks to a provider without a queue.
// The queue transport is wired by the caller because it owns a broker connection.
func NewDirectSender(cfg config.MailConfig, logger logging.Logger) (Sender, error) {
	switch cfg.Transport {
	case config.MailTransportSendGrid:
		return NewSendGridMailer(cfg.SendGridAPIKey)
	case config.MailTransportLog:
		return NewLogMailer(logger), nil
	case config.MailTransportQueue:
		// Workers deliver with SendGrid when a key is present.
		if cfg.SendGridAPIKey != "" {
			return NewSendGridMailer(cfg.SendGridAPIKey)
		}
		return NewLogMailer(logger), nil
	default:
		return nil, fmt.Errorf("unsupported mail transport %q", cfg.Transport)
	}
}
