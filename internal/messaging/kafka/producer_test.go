package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

func TestProducer_PublishEnvelopeHeaders(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSync(sp)
	env := NewEnvelope(domain.OutboxMessage{
		ID:          "evt-9",
		AggregateID: "9",
		EventType:   domain.EventTypeOrderPlaced,
		Payload:     []byte(`{"order_id":9}`),
	}, time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC))

	var got *sarama.ProducerMessage
	sp.ExpectSendMessageWithMessageCheckerFunctionAndSucceed(func(msg *sarama.ProducerMessage) error {
		got = msg
		return nil
	})

	err := producer.PublishEnvelope(context.Background(), TopicOrderEvents, env,
		sarama.RecordHeader{Key: []byte(HeaderReplayed), Value: []byte("true")})
	require.NoError(t, err)
	require.NoError(t, producer.Close())

	require.NotNil(t, got)
	assert.Equal(t, env.PublishedAt, got.Timestamp)
	require.Len(t, got.Headers, 2)
	assert.Equal(t, HeaderEventType, string(got.Headers[0].Key))
	assert.Equal(t, HeaderReplayed, string(got.Headers[1].Key))

	value, err := got.Value.Encode()
	require.NoError(t, err)
	var decoded Envelope
	require.NoError(t, json.Unmarshal(value, &decoded))
	assert.Equal(t, "9", decoded.AggregateID)
}

func TestProducer_SendError(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSync(sp, WithProducerLogger(nil))
	sp.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := producer.Send(context.Background(), &sarama.ProducerMessage{Topic: TopicOrderEvents})
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, producer.Close())
}

func TestProducer_CanceledContextSkipsBroker(t *testing.T) {
	sp := mocks.NewSyncProducer(t, nil)
	producer := NewProducerWithSync(sp)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := producer.PublishEnvelope(ctx, TopicOrderEvents, Envelope{ID: "evt-1"})
	require.ErrorIs(t, err, context.Canceled)
	require.NoError(t, producer.Close())
}

func TestProducer_NilIsNotInitialized(t *testing.T) {
	var producer *Producer

	require.ErrorIs(t, producer.Send(context.Background(), &sarama.ProducerMessage{}), errProducerNotInitialized)
	require.NoError(t, producer.Close())
}

func TestSaramaConfig_IdempotentProducer(t *testing.T) {
	o := defaultProducerOptions()
	WithClientID("ibuy-replay")(&o)

	cfg := saramaConfig(o)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "ibuy-replay", cfg.ClientID)
	assert.True(t, cfg.Producer.Idempotent)
	assert.Equal(t, sarama.WaitForAll, cfg.Producer.RequiredAcks)
	assert.Equal(t, 1, cfg.Net.MaxOpenRequests)
}
