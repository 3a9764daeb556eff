package rest

import (
	"net/http"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type cartItemCreateRequest struct {
	ProductID *int64 `json:"product_id"`
	Quantity  *int   `json:"quantity"`
}

type cartItemUpdateRequest struct {
	Quantity *int `json:"quantity"`
}

func (h *Handler) createCart(w http.ResponseWriter, r *http.Request) {
	cart, err := h.svc.CreateCart(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCart(cart))
}

func (h *Handler) getCart(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	cart, err := h.svc.GetCart(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCart(cart))
}

func (h *Handler) deleteCart(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.DeleteCart(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listCartItems(w http.ResponseWriter, r *http.Request) {
	id, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	items, err := h.svc.ListCartItems(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	resp := make([]cartItemResponse, 0, len(items))
	for _, item := range items {
		resp = append(resp, toCartItem(item))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) getCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	item, err := h.svc.GetCartItem(r.Context(), cart, id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toCartItem(item))
}

// addCartItem добавляет товар; повторное добавление того же товара увеличивает количество.
func (h *Handler) addCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cartItemCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	verr := &domain.ValidationError{}
	if req.ProductID == nil {
		verr.Add("product_id", msgRequired)
	}
	if req.Quantity == nil {
		verr.Add("quantity", msgRequired)
	}
	if !verr.Empty() {
		h.writeError(w, r, verr)
		return
	}

	item, err := h.svc.AddCartItem(r.Context(), cart, *req.ProductID, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, cartItemCreatedResponse{ID: item.ID, ProductID: item.ProductID, Quantity: item.Quantity})
}

func (h *Handler) updateCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	var req cartItemUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Quantity == nil {
		h.writeError(w, r, domain.NewValidationError("quantity", msgRequired))
		return
	}
	item, err := h.svc.UpdateCartItem(r.Context(), cart, id, *req.Quantity)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, cartItemUpdateRequest{Quantity: &item.Quantity})
}

func (h *Handler) deleteCartItem(w http.ResponseWriter, r *http.Request) {
	cart, err := cartID(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	id, err := pathID(r, "id")
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.svc.RemoveCartItem(r.Context(), cart, id); err != nil {
		h.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
