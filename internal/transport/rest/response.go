package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/vladislavdragonenkov/ibuy/internal/auth"
	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

const (
	detailNotFound         = "Not found."
	detailNotAuthenticated = "Authentication credentials were not provided."
	detailPermissionDenied = "You do not have permission to perform this action."
	detailInvalidToken     = "Given token not valid for any token type"
	detailServerError      = "A server error occurred."
	detailInvalidPage      = "Invalid page."
)

// protectedDetails — тексты ответа 405 для удалений, запрещённых ссылками.
var protectedDetails = []struct {
	err    error
	detail string
}{
	{domain.ErrCollectionNotEmpty, "Collection cannot be deleted, because it includes one or more products."},
	{domain.ErrProductInOrders, "Product cannot be deleted, because it is associated with an order item."},
	{domain.ErrCustomerHasOrders, "Customer cannot be deleted, because they have placed orders."},
}

// errRouteNotFound — идентификатор из URL не может указывать на существующую запись.
var errRouteNotFound = errors.New("resource not found")

// errInvalidPage — запрошена несуществующая страница списка.
var errInvalidPage = errors.New("invalid page")

type detailResponse struct {
	Detail string `json:"detail"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v)
}

func writeDetail(w http.ResponseWriter, code int, detail string) {
	if code == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `JWT realm="api"`)
	}
	writeJSON(w, code, detailResponse{Detail: detail})
}

// writeError переводит доменную ошибку в HTTP-ответ.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if verr, ok := domain.AsValidation(err); ok {
		writeJSON(w, http.StatusBadRequest, verr.Fields)
		return
	}
	for _, p := range protectedDetails {
		if errors.Is(err, p.err) {
			writeDetail(w, http.StatusMethodNotAllowed, p.detail)
			return
		}
	}

	switch {
	case errors.Is(err, errInvalidPage):
		writeDetail(w, http.StatusNotFound, detailInvalidPage)
	case errors.Is(err, domain.ErrNotAuthenticated):
		writeDetail(w, http.StatusUnauthorized, detailNotAuthenticated)
	case errors.Is(err, domain.ErrInvalidCredentials):
		writeDetail(w, http.StatusUnauthorized, "No active account found with the given credentials")
	case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrWrongTokenType):
		writeJSON(w, http.StatusUnauthorized, map[string]string{
			"detail": "Token is invalid or expired",
			"code":   "token_not_valid",
		})
	case errors.Is(err, domain.ErrPermissionDenied):
		writeDetail(w, http.StatusForbidden, detailPermissionDenied)
	case domain.IsNotFound(err), errors.Is(err, errRouteNotFound):
		writeDetail(w, http.StatusNotFound, detailNotFound)
	default:
		h.logger.WithError(err).WithFields(map[string]any{
			"method": r.Method,
			"path":   r.URL.Path,
		}).Error("request failed")
		writeDetail(w, http.StatusInternalServerError, detailServerError)
	}
}

// decodeJSON читает тело запроса; ошибка разбора возвращается как ValidationError.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return domain.NewValidationError("detail", "JSON parse error - "+err.Error())
	}
	return nil
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		return 0, errRouteNotFound
	}
	return id, nil
}

func cartID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["cart_pk"])
	if err != nil {
		return uuid.Nil, domain.ErrCartNotFound
	}
	return id, nil
}
