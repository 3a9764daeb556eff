package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

const (
	DefaultReplayLimit       = 100
	DefaultReplayIdleTimeout = 2 * time.Second
)

// ErrNotDLQMessage — сообщение в DLQ topic не похоже на outbox DLQ payload.
var ErrNotDLQMessage = errors.New("message is not an outbox dlq payload")

// OffsetReader отдаёт границы партиции; реализуется sarama.Client.
type OffsetReader interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
}

// ReplayOptions задаёт параметры переотправки из DLQ.
type ReplayOptions struct {
	SourceTopic string
	TargetTopic string
	Limit       int
	// Execute=false — dry-run, сообщения только логируются.
	Execute     bool
	IdleTimeout time.Duration
}

// ReplayStats — итог прохода по DLQ.
type ReplayStats struct {
	Processed int
	Replayed  int
	Skipped   int
}

func (s *ReplayStats) add(other ReplayStats) {
	s.Processed += other.Processed
	s.Replayed += other.Replayed
	s.Skipped += other.Skipped
}

// Replayer перекладывает события из DLQ обратно в основной topic.
type Replayer struct {
	consumer sarama.Consumer
	offsets  OffsetReader
	producer *Producer
	logger   *log.Entry
}

// NewReplayer создаёт Replayer. producer может быть nil для dry-run.
func NewReplayer(consumer sarama.Consumer, offsets OffsetReader, producer *Producer) *Replayer {
	return &Replayer{
		consumer: consumer,
		offsets:  offsets,
		producer: producer,
		logger:   log.WithField("component", "kafka-dlq-replay"),
	}
}

// Replay читает не более Limit сообщений из SourceTopic, начиная с самых старых.
func (r *Replayer) Replay(ctx context.Context, opts ReplayOptions) (ReplayStats, error) {
	opts = opts.withDefaults()

	var stats ReplayStats
	if opts.Execute && r.producer == nil {
		return stats, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := r.consumer.Partitions(opts.SourceTopic)
	if err != nil {
		return stats, fmt.Errorf("get partitions for topic %s: %w", opts.SourceTopic, err)
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if stats.Processed >= opts.Limit {
			break
		}
		partStats, err := r.replayPartition(ctx, opts, partition, opts.Limit-stats.Processed)
		stats.add(partStats)
		if err != nil {
			return stats, err
		}
	}

	r.logger.WithFields(log.Fields{
		"execute":   opts.Execute,
		"processed": stats.Processed,
		"replayed":  stats.Replayed,
		"skipped":   stats.Skipped,
	}).Info("dlq replay finished")

	return stats, nil
}

func (r *Replayer) replayPartition(ctx context.Context, opts ReplayOptions, partition int32, limit int) (ReplayStats, error) {
	var stats ReplayStats

	oldest, err := r.offsets.GetOffset(opts.SourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := r.offsets.GetOffset(opts.SourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	pc, err := r.consumer.ConsumePartition(opts.SourceTopic, partition, oldest)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(opts.IdleTimeout)
	defer idle.Stop()

	for stats.Processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-idle.C:
			return stats, nil
		case consumerErr := <-pc.Errors():
			if consumerErr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, consumerErr)
			}
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			idle.Reset(opts.IdleTimeout)
			stats.Processed++

			envelope, err := DecodeDLQMessage(msg.Value)
			if err != nil {
				stats.Skipped++
				r.logger.WithError(err).WithFields(log.Fields{
					"partition": msg.Partition,
					"offset":    msg.Offset,
				}).Warn("skip unsupported dlq message")
			} else if err := r.replayOne(ctx, opts, envelope, msg); err != nil {
				return stats, err
			} else {
				stats.Replayed++
			}

			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}

	return stats, nil
}

func (r *Replayer) replayOne(ctx context.Context, opts ReplayOptions, envelope Envelope, msg *sarama.ConsumerMessage) error {
	fields := log.Fields{
		"partition":    msg.Partition,
		"offset":       msg.Offset,
		"target_topic": opts.TargetTopic,
		"outbox_id":    envelope.ID,
	}
	if !opts.Execute {
		r.logger.WithFields(fields).Info("dlq replay candidate")
		return nil
	}

	err := r.producer.PublishEnvelope(ctx, opts.TargetTopic, envelope,
		sarama.RecordHeader{Key: []byte(HeaderReplayed), Value: []byte("true")})
	if err != nil {
		return fmt.Errorf("publish replay message: %w", err)
	}
	r.logger.WithFields(fields).Debug("dlq message replayed")
	return nil
}

// DecodeDLQMessage восстанавливает исходный envelope из сообщения DLQ.
func DecodeDLQMessage(value []byte) (Envelope, error) {
	var outer Envelope
	if err := json.Unmarshal(value, &outer); err != nil {
		return Envelope{}, fmt.Errorf("%w: %w", ErrNotDLQMessage, err)
	}
	if len(outer.Payload) == 0 {
		return Envelope{}, ErrNotDLQMessage
	}

	var dl domain.DeadLetter
	if err := json.Unmarshal(outer.Payload, &dl); err != nil {
		return Envelope{}, fmt.Errorf("decode dead letter: %w", err)
	}
	if len(dl.Payload) == 0 {
		return Envelope{}, fmt.Errorf("%w: original payload is missing", ErrNotDLQMessage)
	}

	msg := dl.Message()
	msg.ID = firstNonEmpty(msg.ID, outer.ID)
	msg.AggregateType = firstNonEmpty(msg.AggregateType, outer.AggregateType)
	msg.AggregateID = firstNonEmpty(msg.AggregateID, outer.AggregateID)
	msg.EventType = firstNonEmpty(msg.EventType, outer.EventType)
	return NewEnvelope(msg, time.Now()), nil
}

func (o ReplayOptions) withDefaults() ReplayOptions {
	if o.SourceTopic == "" {
		o.SourceTopic = TopicDeadLetterQueue
	}
	if o.TargetTopic == "" {
		o.TargetTopic = TopicOrderEvents
	}
	if o.Limit <= 0 {
		o.Limit = DefaultReplayLimit
	}
	if o.IdleTimeout <= 0 {
		o.IdleTimeout = DefaultReplayIdleTimeout
	}
	return o
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
