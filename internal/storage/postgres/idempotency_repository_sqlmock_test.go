package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

func TestIdempotencyRepository_ClaimsFreeKey(t *testing.T) {
	store, mock := newMockStore(t)
	ttl := time.Now().UTC().Add(time.Hour)

	mock.ExpectQuery(`INSERT INTO idempotency_keys .* ON CONFLICT \(key\) DO UPDATE .* WHERE idempotency_keys.ttl_at <= \$5`).
		WithArgs("checkout-1", "hash-a", "processing", ttl, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"key"}).AddRow("checkout-1"))

	record, err := NewIdempotencyRepository(store).CreateProcessing(context.Background(), "checkout-1", "hash-a", ttl)
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusProcessing, record.Status)
	assert.Equal(t, ttl, record.TTLAt)
}

func TestIdempotencyRepository_LiveKeyConflicts(t *testing.T) {
	store, mock := newMockStore(t)
	now := time.Now().UTC()
	columns := []string{"key", "request_hash", "response_body", "http_status", "status", "ttl_at", "created_at", "updated_at"}

	for _, tc := range []struct {
		hash    string
		wantErr error
	}{
		{hash: "hash-a", wantErr: domain.ErrIdempotencyKeyAlreadyExists},
		{hash: "hash-b", wantErr: domain.ErrIdempotencyHashMismatch},
	} {
		mock.ExpectQuery(`INSERT INTO idempotency_keys`).
			WillReturnRows(sqlmock.NewRows([]string{"key"}))
		mock.ExpectQuery(`SELECT key, request_hash, .* FROM idempotency_keys WHERE key = \$1`).
			WithArgs("checkout-2").
			WillReturnRows(sqlmock.NewRows(columns).
				AddRow("checkout-2", "hash-a", []byte(`{"id":5}`), 201, "done", now.Add(time.Hour), now, now))

		existing, err := NewIdempotencyRepository(store).
			CreateProcessing(context.Background(), "checkout-2", tc.hash, now.Add(time.Hour))
		require.ErrorIs(t, err, tc.wantErr)
		assert.True(t, existing.Finished())
		assert.Equal(t, 201, existing.HTTPStatus)
		assert.JSONEq(t, `{"id":5}`, string(existing.ResponseBody))
	}
}

func TestIdempotencyRepository_DeleteExpiredWithoutLimit(t *testing.T) {
	store, mock := newMockStore(t)
	before := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM idempotency_keys`).
		WithArgs(before, nil).
		WillReturnResult(sqlmock.NewResult(0, 4))

	n, err := NewIdempotencyRepository(store).DeleteExpired(context.Background(), before, 0)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestIdempotencyRepository_FinishMissingKey(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectExec(`UPDATE idempotency_keys`).
		WithArgs("checkout-3", []byte(`{}`), 200, "done").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := NewIdempotencyRepository(store).MarkDone(context.Background(), "checkout-3", []byte(`{}`), 200)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyNotFound)
}
