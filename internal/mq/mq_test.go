package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/jjudge-oj/accounts/config"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingBackend struct {
	published []Message
	handler   Handler
	closed    bool
}

func (b *recordingBackend) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	b.published = append(b.published, Message{ID: channel, Data: data, Attributes: attrs})
	return "msg-1", nil
}

func (b *recordingBackend) Subscribe(ctx context.Context, channel string, handler Handler) error {
	b.handler = handler
	return nil
}

func (b *recordingBackend) Close() error {
	b.closed = true
	return nil
}

func TestMQDelegatesToBackend(t *testing.T) {
	backend := &recordingBackend{}
	q := New(backend)
	ctx := context.Background()

	id, err := q.Publish(ctx, "account-emails", []byte(`{}`), map[string]string{"kind": "welcome"})
	require.NoError(t, err)
	assert.Equal(t, "msg-1", id)
	require.Len(t, backend.published, 1)
	assert.Equal(t, "welcome", backend.published[0].Attributes["kind"])

	require.NoError(t, q.Subscribe(ctx, "account-emails", func(ctx context.Context, msg Message) error { return nil }))
	assert.NotNil(t, backend.handler)

	require.NoError(t, q.Close())
	assert.True(t, backend.closed)
}

func TestHeadersToAttributes(t *testing.T) {
	assert.Nil(t, headersToAttributes(nil))

	attrs := headersToAttributes(amqp.Table{
		"kind":    "welcome",
		"raw":     []byte("bytes"),
		"attempt": int32(2),
	})
	assert.Equal(t, map[string]string{"kind": "welcome", "raw": "bytes", "attempt": "2"}, attrs)
}

func TestPubSubSubscriptionName(t *testing.T) {
	assert.Equal(t, "account-emails-sub", (&PubSubClient{subscriptionSuffix: "-sub"}).subscriptionName("account-emails"))
	assert.Equal(t, "account-emails", (&PubSubClient{}).subscriptionName("account-emails"))
}

func TestNewRabbitMQClient_RequiresURL(t *testing.T) {
	_, err := NewRabbitMQClient(config.RabbitMQConfig{})
	assert.EqualError(t, err, "rabbitmq url is required")
}

func TestOpen_RejectsUnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), config.Config{MQ: config.MQConfig{Backend: "kafka"}})
	assert.EqualError(t, err, `unsupported mq backend "kafka"`)
}

func TestOpen_PubSubRequiresProject(t *testing.T) {
	_, err := Open(context.Background(), config.Config{MQ: config.MQConfig{Backend: config.MQBackendPubSub}})
	assert.ErrorContains(t, err, "pubsub project id is required")
}

func TestSettle(t *testing.T) {
	ack, requeue := settle(nil, false)
	assert.True(t, ack)
	assert.False(t, requeue)

	ack, requeue = settle(errors.New("send failed"), false)
	assert.False(t, ack)
	assert.True(t, requeue)

	ack, requeue = settle(errors.New("send failed"), true)
	assert.False(t, ack)
	assert.False(t, requeue)
}

func TestRabbitMQPublishing(t *testing.T) {
	durable := &RabbitMQClient{queueDurable: true}
	msg := durable.publishing("id-1", []byte(`{}`), map[string]string{AttrContentType: "application/json", "kind": "email"})

	assert.Equal(t, "application/json", msg.ContentType)
	assert.Equal(t, amqp.Persistent, msg.DeliveryMode)
	assert.Equal(t, "id-1", msg.MessageId)
	assert.Equal(t, amqp.Table{"kind": "email"}, msg.Headers)
	assert.False(t, msg.Timestamp.IsZero())

	transient := (&RabbitMQClient{}).publishing("id-2", nil, nil)
	assert.Equal(t, defaultContentType, transient.ContentType)
	assert.Equal(t, amqp.Transient, transient.DeliveryMode)
}
