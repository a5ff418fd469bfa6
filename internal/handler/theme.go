package handler

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/mealprep/internal/theme"
)

type ThemeHandler struct {
	store  *theme.Store
	logger *slog.Logger
}

func NewThemeHandler(s *theme.Store, logger *slog.Logger) *ThemeHandler {
	return &ThemeHandler{store: s, logger: logger}
}

func (h *ThemeHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Mode string `json:"mode"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}
	mode, ok := theme.ParseMode(req.Mode)
	if !ok {
		writeError(w, http.StatusBadRequest, `mode must be "light" or "dark"`)
		return
	}
	if err := h.store.Set(r.Context(), mode); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, h.store.State())
}

func (h *ThemeHandler) Toggle(w http.ResponseWriter, r *http.Request) {
	mode := h.store.Toggle(r.Context())
	h.logger.Debug("theme toggled", "mode", mode)
	writeJSON(w, http.StatusOK, h.store.State())
}
