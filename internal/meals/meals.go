// Package meals requests generated recipes from the remote meal service.
package meals

import (
	"context"
	"slices"
)

const (
	DefaultCount = 3
	MinCount     = 1
	MaxCount     = 5
)

// Nutrition values are free text such as "450 kcal" or "32g".
type Nutrition struct {
	Calories string `json:"calories"`
	Protein  string `json:"protein"`
	Carbs    string `json:"carbs,omitempty"`
	Fat      string `json:"fat,omitempty"`
}

type Meal struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Ingredients []string  `json:"ingredients"`
	Steps       []string  `json:"steps"`
	Nutrition   Nutrition `json:"nutrition"`
	PrepTime    string    `json:"prep_time,omitempty"`
	Difficulty  string    `json:"difficulty,omitempty"`
}

type Request struct {
	Ingredients []string `json:"ingredients"`
	Diet        string   `json:"diet,omitempty"`
	Allergies   []string `json:"allergies,omitempty"`
	Goal        string   `json:"goal,omitempty"`
	Count       int      `json:"count,omitempty"`
}

type HealthStatus struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

// Generator is implemented by Client and CachedGateway.
type Generator interface {
	Generate(ctx context.Context, req Request) ([]Meal, error)
	Health(ctx context.Context) (HealthStatus, error)
}

// GenerationError is returned for every failed generation request.
// Message is suitable for display.
type GenerationError struct {
	Message    string
	StatusCode int
	Err        error
}

func (e *GenerationError) Error() string { return e.Message }

func (e *GenerationError) Unwrap() error { return e.Err }

func cloneMeals(in []Meal) []Meal {
	out := make([]Meal, len(in))
	for i, m := range in {
		m.Ingredients = slices.Clone(m.Ingredients)
		m.Steps = slices.Clone(m.Steps)
		out[i] = m
	}
	return out
}
