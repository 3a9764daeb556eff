package memory

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	status     domain.OutboxStatus
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

// outboxRepository — in-memory хранилище transactional outbox поверх общего состояния Store.
type outboxRepository struct {
	db access
}

// Enqueue сохраняет событие со статусом `pending` и возвращает его идентификатор.
func (r *outboxRepository) Enqueue(_ context.Context, msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	err := r.db.write(func(st *state) error {
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		now := time.Now().UTC()
		st.outbox[msg.ID] = outboxRecord{
			msg:       msg,
			status:    domain.OutboxPending,
			createdAt: now,
			updatedAt: now,
		}
		return nil
	})
	return msg, err
}

// PullPending возвращает до limit самых старых сообщений со статусом `pending`.
func (r *outboxRepository) PullPending(_ context.Context, limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	var result []domain.OutboxMessage
	err := r.db.read(func(st *state) error {
		pending := pendingRecords(st)
		if len(pending) > limit {
			pending = pending[:limit]
		}
		result = make([]domain.OutboxMessage, 0, len(pending))
		for _, rec := range pending {
			result = append(result, rec.msg)
		}
		return nil
	})
	return result, err
}

// Stats возвращает размер backlog и время создания самого старого pending-сообщения.
func (r *outboxRepository) Stats(_ context.Context) (domain.OutboxStats, error) {
	var stats domain.OutboxStats
	err := r.db.read(func(st *state) error {
		pending := pendingRecords(st)
		stats.PendingCount = len(pending)
		if len(pending) > 0 {
			stats.OldestPendingAt = pending[0].createdAt
		}
		return nil
	})
	return stats, err
}

// MarkSent обновляет статус события после успешной публикации.
func (r *outboxRepository) MarkSent(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r *outboxRepository) MarkFailed(_ context.Context, id string) error {
	return r.mark(id, domain.OutboxFailed)
}

func (r *outboxRepository) mark(id string, status domain.OutboxStatus) error {
	return r.db.write(func(st *state) error {
		record, ok := st.outbox[id]
		if !ok {
			return fmt.Errorf("%w: %s", domain.ErrOutboxMessageNotFound, id)
		}
		record.status = status
		record.attemptCnt++
		record.updatedAt = time.Now().UTC()
		st.outbox[id] = record
		return nil
	})
}

func pendingRecords(st *state) []outboxRecord {
	pending := make([]outboxRecord, 0)
	for _, rec := range st.outbox {
		if rec.status == domain.OutboxPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		if pending[i].createdAt.Equal(pending[j].createdAt) {
			return pending[i].msg.ID < pending[j].msg.ID
		}
		return pending[i].createdAt.Before(pending[j].createdAt)
	})
	return pending
}

var _ domain.OutboxRepository = (*outboxRepository)(nil)
