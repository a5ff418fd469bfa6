package handler

import (
	"net/http"

	"github.com/dukerupert/mealprep/internal/app"
	"github.com/dukerupert/mealprep/internal/preferences"
)

type StateHandler struct {
	app *app.App
}

func NewStateHandler(a *app.App) *StateHandler {
	return &StateHandler{app: a}
}

func (h *StateHandler) Get(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.app.Snapshot())
}

// Options lists the choices offered on the onboarding and settings screens.
func (h *StateHandler) Options(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"diets":            preferences.DietOptions,
		"goals":            preferences.GoalOptions,
		"common_allergies": preferences.CommonAllergies,
	})
}
