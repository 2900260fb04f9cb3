package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/types"
)

const defaultSendTimeout = 10 * time.Second

// Mailer submits one email to a delivery transport.
type Mailer interface {
	Send(ctx context.Context, email types.Email) error
}

// Notifier sends account lifecycle emails on a best-effort basis.
// Sends run in the background and their failures are only logged.
type Notifier struct {
	mailer  Mailer
	from    string
	timeout time.Duration
	logger  logging.Logger
	wg      sync.WaitGroup
}

func NewNotifier(mailer Mailer, from string, timeout time.Duration, logger logging.Logger) *Notifier {
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}
	return &Notifier{
		mailer:  mailer,
		from:    from,
		timeout: timeout,
		logger:  logger.With("component", "notifier"),
	}
}

func (n *Notifier) NotifyWelcome(ctx context.Context, email, name string) {
	n.dispatch(ctx, "welcome", WelcomeEmail(n.from, email, name))
}

func (n *Notifier) NotifyCancellation(ctx context.Context, email, name string) {
	n.dispatch(ctx, "cancellation", CancellationEmail(n.from, email, name))
}

// Wait blocks until every dispatched email has been handed off or failed.
func (n *Notifier) Wait() {
	n.wg.Wait()
}

func (n *Notifier) dispatch(ctx context.Context, kind string, msg types.Email) {
	// The send outlives the request that triggered it.
	ctx = context.WithoutCancel(ctx)

	n.wg.Add(1)
	go func() {
		defer n.wg.Done()

		ctx, cancel := context.WithTimeout(ctx, n.timeout)
		defer cancel()

		if err := n.mailer.Send(ctx, msg); err != nil {
			n.logger.Error(ctx, "failed to send email", "kind", kind, "to", msg.To, "error", err)
			return
		}
		n.logger.Info(ctx, "email sent", "kind", kind, "to", msg.To)
	}()
}

func WelcomeEmail(from, to, name string) types.Email {
	return types.Email{
		To:      to,
		From:    from,
		Subject: "Thanks for joining us.",
		Text:    fmt.Sprintf("Welcome to our app, %s. Let me know how you get along with the app.", name),
	}
}

func CancellationEmail(from, to, name string) types.Email {
	return types.Email{
		To:      to,
		From:    from,
		Subject: "Sorry to hear that.",
		Text:    fmt.Sprintf("%s, we are really sorry to see you've decided to cancel your account. Let me know how to keep your business.", name),
	}
}
