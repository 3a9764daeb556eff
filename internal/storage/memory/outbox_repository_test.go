package memory_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/memory"
)

func TestOutboxRepository_EnqueueAndPull(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Outbox

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{
		AggregateType: domain.AggregateTypeOrder,
		AggregateID:   "1",
		EventType:     domain.EventTypeOrderPlaced,
		Payload:       []byte(`{"order_id":1}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, saved.ID)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, saved.ID, pending[0].ID)

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.PendingCount)
	assert.False(t, stats.OldestPendingAt.IsZero())
}

func TestOutboxRepository_MarkSentAndFailed(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewStore().Repositories().Outbox

	saved, err := repo.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder})
	require.NoError(t, err)

	require.NoError(t, repo.MarkSent(ctx, saved.ID))
	require.NoError(t, repo.MarkFailed(ctx, saved.ID))
	require.ErrorIs(t, repo.MarkFailed(ctx, "missing"), domain.ErrOutboxMessageNotFound)

	pending, err := repo.PullPending(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestOutboxRepository_EnqueueRolledBackWithTx(t *testing.T) {
	ctx := context.Background()
	store := memory.NewStore()

	err := store.WithinTx(ctx, func(ctx context.Context, repos domain.Repositories) error {
		if _, err := repos.Outbox.Enqueue(ctx, domain.OutboxMessage{AggregateType: domain.AggregateTypeOrder}); err != nil {
			return err
		}
		return domain.ErrCartEmpty
	})
	require.ErrorIs(t, err, domain.ErrCartEmpty)

	stats, err := store.Repositories().Outbox.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.PendingCount)
}
