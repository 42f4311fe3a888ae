// internal/accounts/handler.go
package accounts

import (
	"encoding/json"
	"errors"
	"net/http"
)

type Handler struct {
	service Service
	signer  *TokenSigner
}

func NewHandler(service Service, signer *TokenSigner) *Handler {
	return &Handler{service: service, signer: signer}
}

func (h *Handler) HandleRegister(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Name     string `json:"name"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	user, err := h.service.Register(r.Context(), req.Email, req.Name, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}

	h.respond(w, http.StatusCreated, map[string]any{"success": true, "user": user})
}

func (h *Handler) HandleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respond(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		h.fail(w, err)
		return
	}

	token, err := h.signer.Sign(user)
	if err != nil {
		h.respond(w, http.StatusInternalServerError, map[string]any{"success": false, "error": "could not issue token"})
		return
	}

	h.respond(w, http.StatusOK, map[string]any{"success": true, "token": token, "user": user})
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func (h *Handler) fail(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrInvalidCredentials):
		status = http.StatusUnauthorized
	case errors.Is(err, ErrEmailTaken):
		status = http.StatusConflict
	case errors.Is(err, ErrRateLimited):
		status = http.StatusTooManyRequests
	case errors.Is(err, ErrUserNotFound):
		status = http.StatusNotFound
	}
	h.respond(w, status, map[string]any{"success": false, "error": err.Error()})
}
