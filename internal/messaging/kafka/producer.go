package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

var errProducerNotInitialized = errors.New("kafka producer is not initialized")

// ProducerOptions — настройки sarama для публикации событий заказа.
type ProducerOptions struct {
	ClientID    string
	MaxRetries  int
	Compression sarama.CompressionCodec
	Logger      *log.Entry
}

// ProducerOption изменяет ProducerOptions.
type ProducerOption func(*ProducerOptions)

// WithClientID задаёт client.id, под которым producer виден брокеру.
func WithClientID(id string) ProducerOption {
	return func(o *ProducerOptions) {
		if id != "" {
			o.ClientID = id
		}
	}
}

// WithProducerLogger подменяет логгер producer.
func WithProducerLogger(logger *log.Entry) ProducerOption {
	return func(o *ProducerOptions) {
		if logger != nil {
			o.Logger = logger
		}
	}
}

func defaultProducerOptions() ProducerOptions {
	return ProducerOptions{
		ClientID:    "ibuy",
		MaxRetries:  5,
		Compression: sarama.CompressionSnappy,
		Logger:      log.WithField("component", "kafka-producer"),
	}
}

// saramaConfig включает idempotent producer: acks=all и одна in-flight заявка на брокер.
func saramaConfig(o ProducerOptions) *sarama.Config {
	cfg := sarama.NewConfig()
	cfg.ClientID = o.ClientID
	cfg.Producer.Idempotent = true
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = o.MaxRetries
	cfg.Producer.Return.Successes = true
	cfg.Producer.Compression = o.Compression
	cfg.Net.MaxOpenRequests = 1
	return cfg
}

// Producer синхронно отправляет события в Kafka.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	o := defaultProducerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	sp, err := sarama.NewSyncProducer(brokers, saramaConfig(o))
	if err != nil {
		return nil, fmt.Errorf("connect kafka producer to %v: %w", brokers, err)
	}
	return &Producer{sync: sp, logger: o.Logger}, nil
}

// NewProducerWithSync оборачивает готовый sarama.SyncProducer (в тестах — mocks.SyncProducer).
func NewProducerWithSync(sp sarama.SyncProducer, opts ...ProducerOption) *Producer {
	o := defaultProducerOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Producer{sync: sp, logger: o.Logger}
}

// PublishEnvelope кодирует envelope в JSON и пишет его в topic с ключом агрегата.
// Заголовок x-event-type добавляется всегда, extra дописываются после него.
func (p *Producer) PublishEnvelope(ctx context.Context, topic string, env Envelope, extra ...sarama.RecordHeader) error {
	value, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("encode envelope %s: %w", env.ID, err)
	}
	headers := append([]sarama.RecordHeader{{
		Key:   []byte(HeaderEventType),
		Value: []byte(env.EventType),
	}}, extra...)

	return p.Send(ctx, &sarama.ProducerMessage{
		Topic:     topic,
		Key:       sarama.StringEncoder(env.Key()),
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: env.PublishedAt,
	})
}

// Send отправляет готовое сообщение. Отменённый контекст прерывает отправку до обращения к брокеру.
func (p *Producer) Send(ctx context.Context, msg *sarama.ProducerMessage) error {
	if p == nil || p.sync == nil {
		return errProducerNotInitialized
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	entry := p.logger.WithField("topic", msg.Topic)
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		entry.WithError(err).Warn("kafka send failed")
		return fmt.Errorf("send to %s: %w", msg.Topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message stored")
	return nil
}

// Close дожидается отправки буфера и закрывает соединения.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("close kafka producer: %w", err)
	}
	return nil
}
