package handler

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/mealprep/internal/preferences"
)

type PreferencesHandler struct {
	store  *preferences.Store
	logger *slog.Logger
}

func NewPreferencesHandler(s *preferences.Store, logger *slog.Logger) *PreferencesHandler {
	return &PreferencesHandler{store: s, logger: logger}
}

type preferencesRequest struct {
	Diet      string   `json:"diet"`
	Allergies []string `json:"allergies"`
	Goal      string   `json:"goal"`
}

// resolve fills omitted fields from base and trims allergy tags.
func (req preferencesRequest) resolve(base preferences.Preferences) preferences.Preferences {
	p := base.Clone()
	if req.Diet != "" {
		p.Diet = req.Diet
	}
	if req.Goal != "" {
		p.Goal = req.Goal
	}
	if req.Allergies != nil {
		p.Allergies = make([]string, 0, len(req.Allergies))
		for _, a := range req.Allergies {
			p.Allergies = append(p.Allergies, strings.TrimSpace(a))
		}
	}
	return p
}

func (h *PreferencesHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.store.State())
}

func (h *PreferencesHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	p := req.resolve(h.store.Preferences())
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.store.Save(r.Context(), p)
	writeJSON(w, http.StatusOK, h.store.State())
}

// CompleteOnboarding saves the chosen preferences and marks onboarding done.
// An empty body keeps the current preferences.
func (h *PreferencesHandler) CompleteOnboarding(w http.ResponseWriter, r *http.Request) {
	var req preferencesRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}
	p := req.resolve(h.store.Preferences())
	if err := p.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.store.CompleteOnboarding(r.Context(), p)
	h.logger.Info("onboarding completed", "diet", p.Diet, "goal", p.Goal, "allergies", len(p.Allergies))
	writeJSON(w, http.StatusOK, h.store.State())
}
