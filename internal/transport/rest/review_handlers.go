package rest

import (
	"net/http"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type reviewRequest struct {
	Description *string `json:"description"`
}

func reviewIDs(r *http.Request) (productID, id int64, err error) {
	if productID, err = pathID(r, "product_pk"); err != nil {
		return 0, 0, err
	}
	if id, err = pathID(r, "id"); err != nil {
		return 0, 0, err
	}
	return productID, id, nil
}

func (h *Handler) listReviews(w http.ResponseWriter, r *http.Request) {
	productID, err := pathID(r, "product_pk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	page, err := h.pageFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, total, err := h.svc.ListReviews(r.Context(), productID, page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := paginate(r, page, total, items, toReview)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getReview(w http.ResponseWriter, r *http.Request) {
	productID, id, err := reviewIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rv, err := h.svc.GetReview(r.Context(), productID, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReview(rv))
}

func (h *Handler) createReview(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.Authenticated() {
		h.writeError(w, r, domain.ErrNotAuthenticated)
		return
	}
	productID, err := pathID(r, "product_pk")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Description == nil {
		h.writeError(w, r, domain.NewValidationError("description", msgRequired))
		return
	}
	rv, err := h.svc.CreateReview(r.Context(), actor, productID, *req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toReview(rv))
}

func (h *Handler) updateReview(w http.ResponseWriter, r *http.Request) {
	actor := actorFrom(r.Context())
	if !actor.Authenticated() {
		h.writeError(w, r, domain.ErrNotAuthenticated)
		return
	}
	productID, id, err := reviewIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req reviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Description == nil {
		h.writeError(w, r, domain.NewValidationError("description", msgRequired))
		return
	}
	rv, err := h.svc.UpdateReview(r.Context(), actor, productID, id, *req.Description)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toReview(rv))
}

func (h *Handler) deleteReview(w http.ResponseWriter, r *http.Request) {
	productID, id, err := reviewIDs(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteReview(r.Context(), actorFrom(r.Context()), productID, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
