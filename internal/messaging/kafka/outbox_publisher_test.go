package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

func TestOutboxPublisher_Publish(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewOutboxPublisher(NewProducerWithSync(mockProducer), "")
	publishedAt := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	publisher.now = func() time.Time { return publishedAt }

	var captured *sarama.ProducerMessage
	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		captured = msg
		return nil
	})

	err := publisher.Publish(context.Background(), domain.OutboxMessage{
		ID:            "evt-1",
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "17",
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       []byte(`{"order_id":17}`),
	})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())

	require.NotNil(t, captured)
	assert.Equal(t, TopicOrderEvents, captured.Topic)

	key, err := captured.Key.Encode()
	require.NoError(t, err)
	assert.Equal(t, "17", string(key))

	value, err := captured.Value.Encode()
	require.NoError(t, err)

	var envelope Envelope
	require.NoError(t, json.Unmarshal(value, &envelope))
	assert.Equal(t, "evt-1", envelope.ID)
	assert.Equal(t, domain.EventTypeOrderPlaced, envelope.EventType)
	assert.JSONEq(t, `{"order_id":17}`, string(envelope.Payload))
	assert.True(t, publishedAt.Equal(envelope.PublishedAt))

	require.Len(t, captured.Headers, 1)
	assert.Equal(t, HeaderEventType, string(captured.Headers[0].Key))
	assert.Equal(t, domain.EventTypeOrderPlaced, string(captured.Headers[0].Value))
}

func TestOutboxPublisher_KeyFallsBackToID(t *testing.T) {
	t.Parallel()

	mockProducer := mocks.NewSyncProducer(t, nil)
	publisher := NewDLQPublisher(NewProducerWithSync(mockProducer))
	assert.Equal(t, TopicDeadLetterQueue, publisher.Topic())

	mockProducer.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		key, err := msg.Key.Encode()
		if err != nil {
			return err
		}
		if string(key) != "evt-2" {
			return errors.New("expected outbox id as key")
		}
		return nil
	})

	err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "evt-2", Payload: []byte(`{}`)})
	require.NoError(t, err)
	require.NoError(t, mockProducer.Close())
}

func TestOutboxPublisher_NotInitialized(t *testing.T) {
	t.Parallel()

	var publisher *OutboxTopicPublisher
	err := publisher.Publish(context.Background(), domain.OutboxMessage{ID: "evt-3"})
	require.Error(t, err)
}
