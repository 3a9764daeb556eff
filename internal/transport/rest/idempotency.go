package rest

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

const (
	idempotencyHeader       = "Idempotency-Key"
	idempotencyReplayHeader = "Idempotent-Replayed"
	maxIdempotencyKeyLength = 255
)

// bufferedResponse копит ответ обработчика, чтобы сохранить его под ключом идемпотентности.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: make(http.Header)}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(code int) {
	if b.status == 0 {
		b.status = code
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) flush(w http.ResponseWriter) {
	for k, v := range b.header {
		w.Header()[k] = v
	}
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(b.body.Bytes())
}

// withIdempotency сохраняет ответ под Idempotency-Key и воспроизводит его при повторе
// с тем же телом. Без заголовка запрос обрабатывается как обычно.
func (h *Handler) withIdempotency(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
		if h.idem == nil || key == "" {
			next(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			writeDetail(w, http.StatusBadRequest, "Idempotency-Key must not exceed 255 characters.")
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxJSONBody))
		if err != nil {
			h.writeError(w, r, domain.NewValidationError("detail", "Request body is too large."))
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))

		reqHash := requestHash(r, body)
		ctx := r.Context()
		record, err := h.idem.CreateProcessing(ctx, key, reqHash, time.Now().UTC().Add(domain.IdempotencyTTL))
		if err != nil {
			h.replayIdempotent(w, r, err, record)
			return
		}

		// Паника в обработчике не должна оставлять ключ в processing до истечения TTL.
		defer func() {
			if p := recover(); p != nil {
				failed := newBufferedResponse()
				writeDetail(failed, http.StatusInternalServerError, detailServerError)
				if err := h.idem.MarkFailed(context.WithoutCancel(ctx), key, failed.body.Bytes(), failed.status); err != nil {
					h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to release idempotency key after panic")
				}
				panic(p)
			}
		}()

		rec := newBufferedResponse()
		next(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		if status < http.StatusBadRequest {
			err = h.idem.MarkDone(ctx, key, rec.body.Bytes(), status)
		} else {
			err = h.idem.MarkFailed(ctx, key, rec.body.Bytes(), status)
		}
		if err != nil {
			h.logger.WithError(err).WithField("idempotency_key", key).Warn("failed to store idempotent response")
		}
		rec.flush(w)
	}
}

func (h *Handler) replayIdempotent(w http.ResponseWriter, r *http.Request, createErr error, record domain.IdempotencyRecord) {
	switch {
	case errors.Is(createErr, domain.ErrIdempotencyHashMismatch):
		writeDetail(w, http.StatusUnprocessableEntity, "Idempotency-Key is already used with a different request payload.")
	case errors.Is(createErr, domain.ErrIdempotencyKeyAlreadyExists):
		if !record.Finished() {
			writeDetail(w, http.StatusConflict, "A request with the same Idempotency-Key is already being processed.")
			return
		}
		status := record.HTTPStatus
		if status == 0 {
			status = http.StatusOK
		}
		w.Header().Set(idempotencyReplayHeader, "true")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write(record.ResponseBody)
	default:
		h.logger.WithError(createErr).Warn("failed to create idempotency record")
		h.writeError(w, r, createErr)
	}
}

// requestHash связывает ключ с пользователем, маршрутом и телом запроса.
func requestHash(r *http.Request, body []byte) string {
	sum := sha256.New()
	sum.Write([]byte(r.Method))
	sum.Write([]byte{0})
	sum.Write([]byte(strings.TrimSuffix(r.URL.Path, "/")))
	sum.Write([]byte{0})
	sum.Write([]byte(strconv.FormatInt(actorFrom(r.Context()).UserID, 10)))
	sum.Write([]byte{0})
	sum.Write(bytes.TrimSpace(body))
	return hex.EncodeToString(sum.Sum(nil))
}
