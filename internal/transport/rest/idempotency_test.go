package rest

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
	"github.com/vladislavdragonenkov/ibuy/internal/storage/memory"
)

func TestWithIdempotency_PanicReleasesKey(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	h := NewHandler(nil, nil, WithIdempotency(repo))

	calls := 0
	handler := h.recoverPanic(h.withIdempotency(func(http.ResponseWriter, *http.Request) {
		calls++
		panic("boom")
	}))

	send := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/store/orders/", strings.NewReader(`{"cart_id":"x"}`))
		req.Header.Set(idempotencyHeader, "k1")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	first := send()
	require.Equal(t, http.StatusInternalServerError, first.Code)

	record, err := repo.Get(t.Context(), "k1")
	require.NoError(t, err)
	assert.Equal(t, domain.IdempotencyStatusFailed, record.Status)
	assert.Equal(t, http.StatusInternalServerError, record.HTTPStatus)

	retry := send()
	assert.NotEqual(t, http.StatusConflict, retry.Code)
	assert.Equal(t, http.StatusInternalServerError, retry.Code)
	assert.Equal(t, "true", retry.Header().Get(idempotencyReplayHeader))
	assert.JSONEq(t, `{"detail":"A server error occurred."}`, retry.Body.String())
	assert.Equal(t, 1, calls)
}

func TestWithIdempotency_InFlightKeyConflicts(t *testing.T) {
	repo := memory.NewIdempotencyRepository()
	h := NewHandler(nil, nil, WithIdempotency(repo))

	var nested *httptest.ResponseRecorder
	var handler http.HandlerFunc
	handler = h.withIdempotency(func(w http.ResponseWriter, r *http.Request) {
		if nested == nil {
			req := httptest.NewRequest(http.MethodPost, "/store/orders/", strings.NewReader(`{}`))
			req.Header.Set(idempotencyHeader, "k2")
			nested = httptest.NewRecorder()
			handler(nested, req)
		}
		writeJSON(w, http.StatusCreated, map[string]int{"id": 1})
	})

	req := httptest.NewRequest(http.MethodPost, "/store/orders/", strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, "k2")
	rec := httptest.NewRecorder()
	handler(rec, req)

	assert.Equal(t, http.StatusCreated, rec.Code)
	require.NotNil(t, nested)
	assert.Equal(t, http.StatusConflict, nested.Code)
}
