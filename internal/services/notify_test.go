package services

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMailer struct {
	mu   sync.Mutex
	sent []types.Email
	err  error
}

func (m *fakeMailer) Send(ctx context.Context, email types.Email) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("send without deadline")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, email)
	return nil
}

func TestNotifier_SendsTemplates(t *testing.T) {
	mailer := &fakeMailer{}
	n := NewNotifier(mailer, "noreply@example.com", time.Second, logging.Nop())

	n.NotifyWelcome(context.Background(), "ada@x.com", "Ada")
	n.NotifyCancellation(context.Background(), "bob@x.com", "Bob")
	n.Wait()

	require.Len(t, mailer.sent, 2)
	byTo := map[string]types.Email{}
	for _, e := range mailer.sent {
		byTo[e.To] = e
	}
	assert.Equal(t, WelcomeEmail("noreply@example.com", "ada@x.com", "Ada"), byTo["ada@x.com"])
	assert.Equal(t, CancellationEmail("noreply@example.com", "bob@x.com", "Bob"), byTo["bob@x.com"])
}

func TestNotifier_SurvivesCanceledRequest(t *testing.T) {
	mailer := &fakeMailer{}
	n := NewNotifier(mailer, "noreply@example.com", 0, logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n.NotifyWelcome(ctx, "ada@x.com", "Ada")
	n.Wait()

	assert.Len(t, mailer.sent, 1)
}

func TestNotifier_LogsFailures(t *testing.T) {
	var buf bytes.Buffer
	mailer := &fakeMailer{err: errors.New("smtp down")}
	n := NewNotifier(mailer, "noreply@example.com", time.Second, logging.NewWithWriter(&buf, "info", false))

	n.NotifyWelcome(context.Background(), "ada@x.com", "Ada")
	n.Wait()

	assert.Contains(t, buf.String(), "failed to send email")
	assert.Contains(t, buf.String(), "smtp down")
}

func TestEmailTemplates(t *testing.T) {
	welcome := WelcomeEmail("from@x.com", "ada@x.com", "Ada")
	assert.Equal(t, "Thanks for joining us.", welcome.Subject)
	assert.Equal(t, "Welcome to our app, Ada. Let me know how you get along with the app.", welcome.Text)

	bye := CancellationEmail("from@x.com", "ada@x.com", "Ada")
	assert.Equal(t, "Sorry to hear that.", bye.Subject)
	assert.Equal(t, "Ada, we are really sorry to see you've decided to cancel your account. Let me know how to keep your business.", bye.Text)
	assert.Equal(t, "from@x.com", bye.From)
}
