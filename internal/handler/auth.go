package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/mealprep/internal/authclient"
	"github.com/dukerupert/mealprep/internal/session"
)

const confirmEmailMessage = "Check your email to confirm your account"

type AuthHandler struct {
	store  *session.Store
	logger *slog.Logger
}

func NewAuthHandler(s *session.Store, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{store: s, logger: logger}
}

type credentialsRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (req *credentialsRequest) normalize() {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
}

// writeAuthError maps a session error to a status. The message is always
// the one the store chose for display.
func writeAuthError(w http.ResponseWriter, status int, err error) {
	var authErr *session.AuthError
	if !errors.As(err, &authErr) {
		writeError(w, http.StatusInternalServerError, "Something went wrong")
		return
	}
	if errors.Is(err, authclient.ErrNoSession) {
		status = http.StatusUnauthorized
	}
	writeError(w, status, authErr.Message)
}

func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.normalize()
	if req.Email == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}

	if err := h.store.SignIn(r.Context(), req.Email, req.Password); err != nil {
		h.logger.Info("sign in rejected", "error", err)
		writeAuthError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.State())
}

func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	req.normalize()
	if req.Email == "" || req.Password == "" || req.ConfirmPassword == "" {
		writeError(w, http.StatusBadRequest, "Please fill in all fields")
		return
	}
	if req.Password != req.ConfirmPassword {
		writeError(w, http.StatusBadRequest, "Passwords do not match")
		return
	}

	signedIn, err := h.store.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		h.logger.Info("sign up rejected", "error", err)
		writeAuthError(w, http.StatusBadRequest, err)
		return
	}
	if !signedIn {
		writeJSON(w, http.StatusAccepted, map[string]any{
			"signed_in": false,
			"message":   confirmEmailMessage,
		})
		return
	}
	writeJSON(w, http.StatusCreated, h.store.State())
}

func (h *AuthHandler) SignOut(w http.ResponseWriter, r *http.Request) {
	if err := h.store.SignOut(r.Context()); err != nil {
		h.logger.Warn("sign out failed", "error", err)
		writeAuthError(w, http.StatusBadGateway, err)
		return
	}
	writeJSON(w, http.StatusOK, h.store.State())
}

func (h *AuthHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.store.DeleteAccount(r.Context()); err != nil {
		h.logger.Warn("delete account failed", "error", err)
		writeAuthError(w, http.StatusBadGateway, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
