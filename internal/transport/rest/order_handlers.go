package rest

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type orderCreateRequest struct {
	CartID *string `json:"cart_id"`
}

type orderUpdateRequest struct {
	PaymentStatus *string `json:"payment_status"`
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	page, err := h.pageFrom(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, total, err := h.svc.ListOrders(r.Context(), actorFrom(r.Context()), page)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp, err := paginate(r, page, total, items, toOrder)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	o, err := h.svc.GetOrder(r.Context(), actorFrom(r.Context()), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

// placeOrder оформляет заказ из корзины; тело {"cart_id": "<uuid>"}.
func (h *Handler) placeOrder(w http.ResponseWriter, r *http.Request) {
	var req orderCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.CartID == nil {
		h.writeError(w, r, domain.NewValidationError("cart_id", msgRequired))
		return
	}
	cart, err := uuid.Parse(*req.CartID)
	if err != nil {
		h.writeError(w, r, domain.NewValidationError("cart_id", "Must be a valid UUID."))
		return
	}

	order, err := h.svc.PlaceOrder(r.Context(), actorFrom(r.Context()), cart)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(order))
}

func (h *Handler) updateOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req orderUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.PaymentStatus == nil {
		h.writeError(w, r, domain.NewValidationError("payment_status", msgRequired))
		return
	}
	o, err := h.svc.UpdatePaymentStatus(r.Context(), id, domain.PaymentStatus(*req.PaymentStatus))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(o))
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
