package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/metrics"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/memory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func orderPlaced(id, orderID string) domain.OutboxMessage {
	return domain.OutboxMessage{
		ID:            id,
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   orderID,
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       []byte(`{"order_id":` + orderID + `}`),
	}
}

func TestWorker_ProcessOnce_MarksSent(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-1", "1"), orderPlaced("msg-2", "2")}}
	publisher := &stubPublisher{}

	res := NewWorker(repo, publisher, WithRetryBaseDelay(0)).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Sent: 2}, res)
	assert.Equal(t, []string{"msg-1", "msg-2"}, repo.sentIDs)
	assert.Empty(t, repo.failedIDs)
	assert.Equal(t, 2, publisher.calls())
}

func TestWorker_ProcessOnce_DeadLettersAfterLastAttempt(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-2", "2")}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{}
	reg := prometheus.NewRegistry()
	m := metrics.NewOutboxMetricsWithRegisterer(reg)

	res := NewWorker(repo, publisher,
		WithDLQPublisher(dlq),
		WithMetrics(m),
		WithRetryBaseDelay(0),
		WithMaxAttempts(3),
	).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Failed: 1, DeadLettered: 1}, res)
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, []string{"msg-2"}, repo.failedIDs)
	assert.Empty(t, repo.sentIDs)

	require.Len(t, dlq.published, 1)
	var dl domain.DeadLetter
	require.NoError(t, json.Unmarshal(dlq.published[0].Payload, &dl))
	assert.Equal(t, "msg-2", dl.OutboxID)
	assert.Contains(t, dl.PublishError, "broker down")
	assert.JSONEq(t, `{"order_id":2}`, string(dl.Payload))
	assert.Equal(t, orderPlaced("msg-2", "2"), dl.Message())

	assert.Equal(t, 0.0, gathered(t, reg, "ibuy_outbox_pending_records", ""))
	assert.Equal(t, 3.0, gathered(t, reg, "ibuy_outbox_publish_attempts_total", metrics.PublishRetry))
	assert.Equal(t, 1.0, gathered(t, reg, "ibuy_outbox_publish_attempts_total", metrics.PublishDeadLetter))
}

// gathered возвращает значение метрики; result фильтрует по метке result.
func gathered(t *testing.T, reg *prometheus.Registry, name, result string) float64 {
	t.Helper()

	families, err := reg.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if result != "" {
				matched := false
				for _, label := range metric.GetLabel() {
					matched = matched || (label.GetName() == "result" && label.GetValue() == result)
				}
				if !matched {
					continue
				}
			}
			if metric.GetGauge() != nil {
				return metric.GetGauge().GetValue()
			}
			return metric.GetCounter().GetValue()
		}
	}
	t.Fatalf("metric %s{result=%q} not found", name, result)
	return 0
}

func TestWorker_ProcessOnce_DLQFailureStillMarksFailed(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-9", "9")}}
	publisher := &stubPublisher{err: errors.New("broker down")}
	dlq := &stubPublisher{err: errors.New("dlq down")}

	res := NewWorker(repo, publisher, WithDLQPublisher(dlq), WithRetryBaseDelay(0), WithMaxAttempts(1)).
		ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Failed: 1}, res)
	assert.Equal(t, []string{"msg-9"}, repo.failedIDs)
}

func TestWorker_ProcessOnce_SucceedsAfterRetry(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-3", "3")}}
	publisher := &stubPublisher{sequence: []error{errors.New("attempt 1"), errors.New("attempt 2"), nil}}

	res := NewWorker(repo, publisher, WithRetryBaseDelay(0), WithMaxAttempts(3)).ProcessOnce(context.Background())

	assert.Equal(t, BatchResult{Sent: 1}, res)
	assert.Equal(t, 3, publisher.calls())
	assert.Equal(t, []string{"msg-3"}, repo.sentIDs)
}

func TestWorker_ProcessOnce_PullError(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pullErr: errors.New("db down")}
	publisher := &stubPublisher{}

	res := NewWorker(repo, publisher).ProcessOnce(context.Background())

	assert.Zero(t, res)
	assert.Zero(t, publisher.calls())
}

func TestWorker_ProcessOnce_CancelledContext(t *testing.T) {
	t.Parallel()

	repo := &stubOutboxRepo{pending: []domain.OutboxMessage{orderPlaced("msg-4", "4")}}
	publisher := &stubPublisher{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := NewWorker(repo, publisher).ProcessOnce(ctx)

	assert.Zero(t, res)
	assert.Zero(t, publisher.calls())
}

func TestWorker_Run_StopsOnContextCancel(t *testing.T) {
	t.Parallel()

	worker := NewWorker(&stubOutboxRepo{}, &stubPublisher{}, WithPollInterval(5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		worker.Run(ctx)
	}()

	time.Sleep(15 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker did not stop on context cancel")
	}
}

func TestWorker_Run_DisabledWithoutPublisher(t *testing.T) {
	t.Parallel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		NewWorker(&stubOutboxRepo{}, nil).Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker without publisher must return immediately")
	}
}

func TestWorker_ProcessOnce_MemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	repo := memory.NewStore().Repositories().Outbox

	_, err := repo.Enqueue(ctx, orderPlaced("", "42"))
	require.NoError(t, err)

	publisher := &stubPublisher{}
	res := NewWorker(repo, publisher, WithRetryBaseDelay(0)).ProcessOnce(ctx)
	assert.Equal(t, BatchResult{Sent: 1}, res)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)

	res = NewWorker(repo, publisher).ProcessOnce(ctx)
	assert.Zero(t, res, "sent messages are not pulled again")
}

func TestWorker_Backoff(t *testing.T) {
	t.Parallel()

	worker := NewWorker(nil, nil, WithRetryBaseDelay(10*time.Millisecond))
	assert.Equal(t, 10*time.Millisecond, worker.backoff(1))
	assert.Equal(t, 20*time.Millisecond, worker.backoff(2))
	assert.Equal(t, 40*time.Millisecond, worker.backoff(3))
	assert.Equal(t, maxRetryDelay, worker.backoff(40))

	assert.Zero(t, NewWorker(nil, nil, WithRetryBaseDelay(-time.Second)).backoff(3))
}

type stubOutboxRepo struct {
	pending   []domain.OutboxMessage
	pullErr   error
	sentIDs   []string
	failedIDs []string
}

func (s *stubOutboxRepo) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	return msg, nil
}

func (s *stubOutboxRepo) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if s.pullErr != nil {
		return nil, s.pullErr
	}
	if limit <= 0 || limit >= len(s.pending) {
		return append([]domain.OutboxMessage(nil), s.pending...), nil
	}
	return append([]domain.OutboxMessage(nil), s.pending[:limit]...), nil
}

func (s *stubOutboxRepo) Stats(context.Context) (domain.OutboxStats, error) {
	stats := domain.OutboxStats{PendingCount: len(s.pending) - len(s.sentIDs) - len(s.failedIDs)}
	if stats.PendingCount > 0 {
		stats.OldestPendingAt = time.Now().Add(-time.Second)
	}
	return stats, nil
}

func (s *stubOutboxRepo) MarkSent(_ context.Context, id string) error {
	s.sentIDs = append(s.sentIDs, id)
	return nil
}

func (s *stubOutboxRepo) MarkFailed(_ context.Context, id string) error {
	s.failedIDs = append(s.failedIDs, id)
	return nil
}

type stubPublisher struct {
	mu        sync.Mutex
	err       error
	sequence  []error
	published []domain.OutboxMessage
	count     int
}

func (s *stubPublisher) Publish(_ context.Context, msg domain.OutboxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.count++
	err := s.err
	if len(s.sequence) > 0 {
		err, s.sequence = s.sequence[0], s.sequence[1:]
	}
	if err == nil {
		s.published = append(s.published, msg)
	}
	return err
}

func (s *stubPublisher) calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

var (
	_ domain.OutboxRepository = (*stubOutboxRepo)(nil)
	_ domain.OutboxPublisher  = (*stubPublisher)(nil)
)
