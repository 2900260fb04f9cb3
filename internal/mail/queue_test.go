package mail

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memoryQueue delivers published messages to the handler on Subscribe.
type memoryQueue struct {
	messages []mq.Message
	acked    []string
	nacked   []string
}

func (q *memoryQueue) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	id := channel + "-" + string(rune('a'+len(q.messages)))
	q.messages = append(q.messages, mq.Message{ID: id, Data: data, Attributes: attrs})
	return id, nil
}

func (q *memoryQueue) Subscribe(ctx context.Context, channel string, handler mq.Handler) error {
	for _, msg := range q.messages {
		if err := handler(ctx, msg); err != nil {
			q.nacked = append(q.nacked, msg.ID)
			continue
		}
		q.acked = append(q.acked, msg.ID)
	}
	return context.Canceled
}

type recordingSender struct {
	sent []types.Email
	err  error
}

func (s *recordingSender) Send(ctx context.Context, email types.Email) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, email)
	return nil
}

func TestQueueMailer_PublishesJSON(t *testing.T) {
	q := &memoryQueue{}
	email := types.Email{To: "ada@x.com", From: "noreply@example.com", Subject: "Hi", Text: "Hello"}

	require.NoError(t, NewQueueMailer(q, "account-emails").Send(context.Background(), email))

	require.Len(t, q.messages, 1)
	var decoded types.Email
	require.NoError(t, json.Unmarshal(q.messages[0].Data, &decoded))
	assert.Equal(t, email, decoded)
	assert.Equal(t, "email", q.messages[0].Attributes["kind"])
	assert.Equal(t, "application/json", q.messages[0].Attributes[mq.AttrContentType])
}

func TestWorker_DeliversQueuedEmails(t *testing.T) {
	q := &memoryQueue{}
	mailer := NewQueueMailer(q, "account-emails")
	ctx := context.Background()
	require.NoError(t, mailer.Send(ctx, types.Email{To: "ada@x.com", Subject: "one"}))
	require.NoError(t, mailer.Send(ctx, types.Email{To: "bob@x.com", Subject: "two"}))

	sender := &recordingSender{}
	require.NoError(t, NewWorker(q, "account-emails", sender, logging.Nop()).Run(ctx))

	require.Len(t, sender.sent, 2)
	assert.Equal(t, "ada@x.com", sender.sent[0].To)
	assert.Equal(t, "bob@x.com", sender.sent[1].To)
	assert.Len(t, q.acked, 2)
	assert.Empty(t, q.nacked)
}

func TestWorker_DropsMalformedMessages(t *testing.T) {
	q := &memoryQueue{messages: []mq.Message{
		{ID: "bad-json", Data: []byte("{")},
		{ID: "no-recipient", Data: []byte(`{"subject":"hi"}`)},
	}}
	var buf bytes.Buffer
	sender := &recordingSender{}

	require.NoError(t, NewWorker(q, "account-emails", sender, logging.NewWithWriter(&buf, "info", false)).Run(context.Background()))

	assert.Empty(t, sender.sent)
	assert.Equal(t, []string{"bad-json", "no-recipient"}, q.acked)
	assert.Contains(t, buf.String(), "dropping malformed email message")
}

func TestWorker_NacksFailedSends(t *testing.T) {
	q := &memoryQueue{}
	require.NoError(t, NewQueueMailer(q, "account-emails").Send(context.Background(), types.Email{To: "ada@x.com"}))

	sender := &recordingSender{err: errors.New("provider unavailable")}
	require.NoError(t, NewWorker(q, "account-emails", sender, logging.Nop()).Run(context.Background()))

	assert.Len(t, q.nacked, 1)
	assert.Empty(t, q.acked)
}

func TestLogMailer_WritesEmail(t *testing.T) {
	var buf bytes.Buffer
	m := NewLogMailer(logging.NewWithWriter(&buf, "info", false))

	require.NoError(t, m.Send(context.Background(), types.Email{To: "ada@x.com", Subject: "Thanks for joining us."}))

	assert.Contains(t, buf.String(), "ada@x.com")
	assert.Contains(t, buf.String(), "Thanks for joining us.")
}
