package mail

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jjudge-oj/accounts/internal/logging"
	"github.com/jjudge-oj/accounts/internal/mq"
	"github.com/jjudge-oj/accounts/types"
)

const attrKind = "kind"

// Publisher is the publishing half of the message queue.
type Publisher interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
}

// Subscriber is the consuming half of the message queue.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string, handler mq.Handler) error
}

// Sender delivers a single email.
type Sender interface {
	Send(ctx context.Context, email types.Email) error
}

// QueueMailer hands emails to a queue for a Worker to deliver.
type QueueMailer struct {
	publisher Publisher
	channel   string
}

func NewQueueMailer(publisher Publisher, channel string) *QueueMailer {
	return &QueueMailer{publisher: publisher, channel: channel}
}

func (m *QueueMailer) Send(ctx context.Context, email types.Email) error {
	data, err := json.Marshal(email)
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}
	if _, err := m.publisher.Publish(ctx, m.channel, data, map[string]string{
		attrKind:           "email",
		mq.AttrContentType: "application/json",
	}); err != nil {
		return fmt.Errorf("publish email: %w", err)
	}
	return nil
}

// Worker consumes queued emails and delivers them with a Sender.
type Worker struct {
	subscriber Subscriber
	channel    string
	sender     Sender
	logger     logging.Logger
}

func NewWorker(subscriber Subscriber, channel string, sender Sender, logger logging.Logger) *Worker {
	return &Worker{
		subscriber: subscriber,
		channel:    channel,
		sender:     sender,
		logger:     logger.With("component", "mail_worker", "channel", channel),
	}
}

// Run blocks until ctx is done or the subscription fails.
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info(ctx, "mail worker started")
	err := w.subscriber.Subscribe(ctx, w.channel, w.handle)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// handle drops undecodable messages and asks for redelivery when sending fails.
func (w *Worker) handle(ctx context.Context, msg mq.Message) error {
	var email types.Email
	if err := json.Unmarshal(msg.Data, &email); err != nil || email.To == "" {
		w.logger.Warn(ctx, "dropping malformed email message", "message_id", msg.ID, "error", err)
		return nil
	}
	if err := w.sender.Send(ctx, email); err != nil {
		w.logger.Error(ctx, "failed to deliver email", "message_id", msg.ID, "to", email.To, "error", err)
		return err
	}
	w.logger.Info(ctx, "email delivered", "message_id", msg.ID, "to", email.To)
	return nil
}
