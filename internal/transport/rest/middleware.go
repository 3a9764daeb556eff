package rest

import (
	"context"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/ibuy/internal/auth"
	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type actorKey struct{}

func withActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// actorFrom возвращает пользователя запроса; для анонимного запроса нулевое значение.
func actorFrom(ctx context.Context) domain.Actor {
	actor, _ := ctx.Value(actorKey{}).(domain.Actor)
	return actor
}

// statusRecorder запоминает код ответа для логов и метрик.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	if r.status == 0 {
		r.status = code
	}
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.ResponseWriter.Write(b)
}

func (h *Handler) recoverPanic(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.WithFields(log.Fields{
					"panic":  rec,
					"method": r.Method,
					"path":   r.URL.Path,
					"stack":  string(debug.Stack()),
				}).Error("panic while serving request")
				writeDetail(w, http.StatusInternalServerError, detailServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// observe пишет access-лог и HTTP метрики по шаблону маршрута.
func (h *Handler) observe(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		route := r.URL.Path
		if current := mux.CurrentRoute(r); current != nil {
			if tpl, err := current.GetPathTemplate(); err == nil {
				route = tpl
			}
		}

		rec := &statusRecorder{ResponseWriter: w}
		h.metrics.RequestStarted()
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			elapsed := time.Since(started)
			h.metrics.RequestFinished(r.Method, route, status, elapsed)

			entry := h.logger.WithFields(log.Fields{
				"method":      r.Method,
				"path":        r.URL.Path,
				"status":      status,
				"duration_ms": elapsed.Milliseconds(),
			})
			if status >= http.StatusInternalServerError {
				entry.Warn("request served")
				return
			}
			entry.Debug("request served")
		}()

		next.ServeHTTP(rec, r)
	})
}

// authenticate разбирает заголовок Authorization. Без заголовка запрос остаётся анонимным.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" || h.tokens == nil {
			next.ServeHTTP(w, r)
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || (!strings.EqualFold(scheme, "JWT") && !strings.EqualFold(scheme, "Bearer")) {
			// Чужие схемы авторизации игнорируются, как и отсутствие заголовка.
			next.ServeHTTP(w, r)
			return
		}

		claims, err := h.tokens.Parse(strings.TrimSpace(token), auth.TokenTypeAccess)
		if err != nil {
			h.logger.WithError(err).Debug("rejected access token")
			writeJSON(withAuthChallenge(w), http.StatusUnauthorized, map[string]string{
				"detail": detailInvalidToken,
				"code":   "token_not_valid",
			})
			return
		}

		next.ServeHTTP(w, r.WithContext(withActor(r.Context(), claims.Actor())))
	})
}

func withAuthChallenge(w http.ResponseWriter) http.ResponseWriter {
	w.Header().Set("WWW-Authenticate", `JWT realm="api"`)
	return w
}

// authenticated пропускает только вошедших пользователей.
func (h *Handler) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !actorFrom(r.Context()).Authenticated() {
			writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
			return
		}
		next(w, r)
	}
}

// adminOnly пропускает только персонал: анонимам 401, остальным 403.
func (h *Handler) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := actorFrom(r.Context())
		switch {
		case !actor.Authenticated():
			writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
		case !actor.IsStaff:
			writeDetail(w, http.StatusForbidden, detailPermissionDenied)
		default:
			next(w, r)
		}
	}
}
