package rest

import (
	"net/http"

	"github.com/vladislavdragonenkov/ibuy/internal/domain"
)

type registerRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type tokenRequest struct {
	Refresh string `json:"refresh"`
	Token   string `json:"token"`
}

type tokenPairResponse struct {
	Refresh string `json:"refresh"`
	Access  string `json:"access"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	user, err := h.svc.Register(r.Context(), domain.Registration{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toUser(user))
}

func (h *Handler) currentUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.GetUser(r.Context(), actorFrom(r.Context()).UserID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUser(user))
}

func (h *Handler) createToken(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	verr := &domain.ValidationError{}
	if req.Username == "" {
		verr.Add("username", msgRequired)
	}
	if req.Password == "" {
		verr.Add("password", msgRequired)
	}
	if !verr.Empty() {
		h.writeError(w, r, verr)
		return
	}

	user, err := h.svc.Authenticate(r.Context(), req.Username, req.Password)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	pair, err := h.tokens.Issue(user)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenPairResponse{Refresh: pair.Refresh, Access: pair.Access})
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Refresh == "" {
		h.writeError(w, r, domain.NewValidationError("refresh", msgRequired))
		return
	}
	access, err := h.tokens.Refresh(req.Refresh)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"access": access})
}

func (h *Handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	if req.Token == "" {
		h.writeError(w, r, domain.NewValidationError("token", msgRequired))
		return
	}
	if err := h.tokens.Verify(req.Token); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
