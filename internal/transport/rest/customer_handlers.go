package rest

import (
	"net/http"
	"time"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type customerRequest struct {
	UserID    *int64  `json:"user_id"`
	Phone     *string `json:"phone"`
	BirthDate *string `json:"birth_date"`
}

// apply переносит телефон и дату рождения; пустая строка в birth_date очищает дату.
func (req customerRequest) apply(c *domain.Customer) error {
	if req.Phone != nil {
		c.Phone = *req.Phone
	}
	if req.BirthDate != nil {
		if *req.BirthDate == "" {
			c.BirthDate = nil
			return nil
		}
		d, err := time.Parse(dateLayout, *req.BirthDate)
		if err != nil {
			return domain.NewValidationError("birth_date", "Date has wrong format. Use one of these formats instead: YYYY-MM-DD.")
		}
		c.BirthDate = &d
	}
	return nil
}

func (h *Handler) listCustomers(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, total, err := h.svc.ListCustomers(r.Context(), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := paginate(r, page, total, items, toCustomer)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	c, err := h.svc.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomer(c))
}

func (h *Handler) createCustomer(w http.ResponseWriter, r *http.Request) {
	var req customerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.UserID == nil {
		h.writeError(w, r, domain.NewValidationError("user_id", msgRequired))
		return
	}
	c := domain.Customer{UserID: *req.UserID}
	if err := req.apply(&c); err != nil {
		h.writeError(w, r, err)
		return
	}
	created, err := h.svc.CreateCustomer(r.Context(), c)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCustomer(created))
}

func (h *Handler) updateCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	current, err := h.svc.GetCustomer(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req customerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.apply(&current); err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.svc.UpdateCustomer(r.Context(), current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomer(updated))
}

func (h *Handler) deleteCustomer(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteCustomer(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getMe(w http.ResponseWriter, r *http.Request) {
	c, err := h.svc.Me(r.Context(), actorFrom(r.Context()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomer(c))
}

func (h *Handler) updateMe(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	current, err := h.svc.Me(r.Context(), actor)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req customerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := req.apply(&current); err != nil {
		h.writeError(w, r, err)
		return
	}
	updated, err := h.svc.UpdateMe(r.Context(), actor, current)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomer(updated))
}
