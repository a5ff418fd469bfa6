package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dukerupert/mealprep/internal/app"
	"github.com/dukerupert/mealprep/internal/meals"
)

type MealsHandler struct {
	app    *app.App
	logger *slog.Logger
}

func NewMealsHandler(a *app.App, logger *slog.Logger) *MealsHandler {
	return &MealsHandler{app: a, logger: logger}
}

// Generate takes ingredients and an optional count. Diet, allergies and
// goal come from the saved preferences.
func (h *MealsHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Ingredients []string `json:"ingredients"`
		Count       int      `json:"count"`
	}
	if !decodeJSON(w, r, &req, false) {
		return
	}

	ingredients := make([]string, 0, len(req.Ingredients))
	for _, ing := range req.Ingredients {
		if ing = strings.TrimSpace(ing); ing != "" {
			ingredients = append(ingredients, ing)
		}
	}

	result, err := h.app.GenerateMeals(r.Context(), ingredients, req.Count)
	if err != nil {
		var genErr *meals.GenerationError
		if !errors.As(err, &genErr) {
			h.logger.Error("generate meals", "error", err)
			writeError(w, http.StatusInternalServerError, "Failed to generate meals")
			return
		}
		status := http.StatusBadGateway
		if genErr.StatusCode == 0 && genErr.Err == nil {
			// Rejected before any call was made.
			status = http.StatusBadRequest
		}
		writeError(w, status, genErr.Message)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"meals": result})
}

func (h *MealsHandler) Health(w http.ResponseWriter, r *http.Request) {
	hs, err := h.app.Meals.Health(r.Context())
	if err != nil {
		h.logger.Warn("meal service health check", "error", err)
		writeError(w, http.StatusBadGateway, "Health check failed")
		return
	}
	writeJSON(w, http.StatusOK, hs)
}
