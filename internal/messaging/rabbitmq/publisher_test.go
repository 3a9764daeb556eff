package rabbitmq

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type published struct {
	key string
	msg amqp.Publishing
}

type stubChannel struct {
	declared   []string
	durable    []bool
	published  []published
	declareErr error
	publishErr error
}

func (c *stubChannel) QueueDeclare(name string, durable, _, _, _ bool, _ amqp.Table) (amqp.Queue, error) {
	if c.declareErr != nil {
		return amqp.Queue{}, c.declareErr
	}
	c.declared = append(c.declared, name)
	c.durable = append(c.durable, durable)
	return amqp.Queue{Name: name}, nil
}

func (c *stubChannel) PublishWithContext(ctx context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if exchange != "" {
		return errors.New("unexpected exchange " + exchange)
	}
	if c.publishErr != nil {
		return c.publishErr
	}
	c.published = append(c.published, published{key: key, msg: msg})
	return nil
}

func (c *stubChannel) Close() error { return nil }

func TestOutboxPublisher_DeclaresDurableQueue(t *testing.T) {
	ch := &stubChannel{}

	publisher, err := NewOutboxPublisher(ch, "")
	require.NoError(t, err)
	dlq, err := NewDLQPublisher(ch)
	require.NoError(t, err)

	assert.Equal(t, QueueOrders, publisher.Queue())
	assert.Equal(t, QueueOrdersDLQ, dlq.Queue())
	assert.Equal(t, []string{QueueOrders, QueueOrdersDLQ}, ch.declared)
	assert.Equal(t, []bool{true, true}, ch.durable)
}

func TestOutboxPublisher_Publish(t *testing.T) {
	ch := &stubChannel{}
	publisher, err := NewOutboxPublisher(ch, QueueOrders)
	require.NoError(t, err)

	fixed := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return fixed }

	err = publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "evt-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "9",
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       []byte(`{"order_id":9}`),
	})
	require.NoError(t, err)
	require.Len(t, ch.published, 1)

	got := ch.published[0]
	assert.Equal(t, QueueOrders, got.key)
	assert.Equal(t, "application/json", got.msg.ContentType)
	assert.Equal(t, amqp.Persistent, got.msg.DeliveryMode)
	assert.Equal(t, "evt-1", got.msg.MessageId)
	assert.Equal(t, domain.EventTypeOrderPlaced, got.msg.Type)

	var body message
	require.NoError(t, json.Unmarshal(got.msg.Body, &body))
	assert.Equal(t, "9", body.AggregateID)
	assert.JSONEq(t, `{"order_id":9}`, string(body.Payload))
	assert.True(t, fixed.Equal(body.PublishedAt))
}

func TestOutboxPublisher_Errors(t *testing.T) {
	_, err := NewOutboxPublisher(nil, "")
	require.Error(t, err)

	_, err = NewOutboxPublisher(&stubChannel{declareErr: amqp.ErrClosed}, "")
	require.ErrorIs(t, err, amqp.ErrClosed)

	ch := &stubChannel{publishErr: amqp.ErrClosed}
	publisher, err := NewOutboxPublisher(ch, "")
	require.NoError(t, err)
	err = publisher.Publish(context.Background(), domain.OutboxMessage{ID: "evt-2", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, amqp.ErrClosed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = publisher.Publish(ctx, domain.OutboxMessage{ID: "evt-3", Payload: []byte(`{}`)})
	require.ErrorIs(t, err, context.Canceled)
}
