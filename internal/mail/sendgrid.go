package mail

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jjudge-oj/accounts/types"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// SendGridMailer delivers email through the SendGrid v3 API.
type SendGridMailer struct {
	client *sendgrid.Client
}

func NewSendGridMailer(apiKey string) (*SendGridMailer, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("sendgrid api key is required")
	}
	return &SendGridMailer{client: sendgrid.NewSendClient(apiKey)}, nil
}

func (m *SendGridMailer) Send(ctx context.Context, email types.Email) error {
	msg := sgmail.NewSingleEmail(
		sgmail.NewEmail("", email.From),
		email.Subject,
		sgmail.NewEmail("", email.To),
		email.Text,
		"",
	)

	resp, err := m.client.SendWithContext(ctx, msg)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if resp.StatusCode >= 300 {
		return fmt.Errorf("sendgrid send: status %d: %s", resp.StatusCode, resp.Body)
	}
	return nil
}
