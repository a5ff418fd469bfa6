package meals

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func twoMeals() []Meal {
	return []Meal{
		{
			Title:       "Chicken Fried Rice",
			Description: "Quick weeknight stir fry",
			Ingredients: []string{"chicken", "rice", "soy sauce"},
			Steps:       []string{"Cook rice", "Fry chicken", "Combine"},
			Nutrition:   Nutrition{Calories: "520 kcal", Protein: "35g"},
			PrepTime:    "25 min",
		},
		{
			Title:       "Chicken Rice Bowl",
			Description: "Meal prep friendly",
			Ingredients: []string{"chicken", "rice"},
			Steps:       []string{"Grill chicken", "Serve over rice"},
			Nutrition:   Nutrition{Calories: "480 kcal", Protein: "40g", Carbs: "50g", Fat: "12g"},
			Difficulty:  "easy",
		},
	}
}

func setupServer(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(srv.URL + "/")
}

func TestGenerateReturnsMealsInOrder(t *testing.T) {
	var got Request
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/generate-meals" {
			t.Errorf("request = %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get("X-Request-ID") == "" {
			t.Error("missing X-Request-ID")
		}
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]any{"meals": twoMeals()})
	})

	meals, err := c.Generate(context.Background(), Request{
		Ingredients: []string{"chicken", "rice"},
		Diet:        "balanced",
		Allergies:   []string{},
		Goal:        "balanced",
		Count:       3,
	})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if len(meals) != 2 {
		t.Fatalf("meals = %d, want 2", len(meals))
	}
	if meals[0].Title != "Chicken Fried Rice" || meals[1].Title != "Chicken Rice Bowl" {
		t.Errorf("meal order = %q, %q", meals[0].Title, meals[1].Title)
	}
	if meals[1].Nutrition.Fat != "12g" || meals[0].PrepTime != "25 min" {
		t.Errorf("optional fields lost: %+v", meals)
	}
	if got.Count != 3 || got.Diet != "balanced" || len(got.Ingredients) != 2 {
		t.Errorf("request body = %+v", got)
	}
}

func TestGenerateDefaultsCount(t *testing.T) {
	var got Request
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"meals":[]}`))
	})

	meals, err := c.Generate(context.Background(), Request{Ingredients: []string{"eggs"}})
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if meals == nil || len(meals) != 0 {
		t.Errorf("meals = %#v, want empty slice", meals)
	}
	if got.Count != DefaultCount {
		t.Errorf("count sent = %d, want %d", got.Count, DefaultCount)
	}
}

func TestGenerateErrorMessages(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"detail", http.StatusTooManyRequests, `{"detail":"rate limited"}`, "rate limited"},
		{"no detail", http.StatusInternalServerError, `{"error":"boom"}`, "Failed to generate meals"},
		{"validation detail", http.StatusUnprocessableEntity, `{"detail":[{"loc":["body","count"],"msg":"too large"}]}`, "Failed to generate meals"},
		{"not json", http.StatusBadGateway, `<html>bad gateway</html>`, "Unknown error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			})

			meals, err := c.Generate(context.Background(), Request{Ingredients: []string{"tofu"}})
			var genErr *GenerationError
			if !errors.As(err, &genErr) {
				t.Fatalf("err = %v, want *GenerationError", err)
			}
			if genErr.Message != tt.want {
				t.Errorf("message = %q, want %q", genErr.Message, tt.want)
			}
			if genErr.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", genErr.StatusCode, tt.status)
			}
			if meals != nil {
				t.Errorf("meals = %v, want none on failure", meals)
			}
		})
	}
}

func TestGenerateValidatesLocally(t *testing.T) {
	calls := 0
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
	})

	tests := []struct {
		name string
		req  Request
		want string
	}{
		{"no ingredients", Request{}, "At least one ingredient is required"},
		{"count too large", Request{Ingredients: []string{"beans"}, Count: 6}, "Meal count must be between 1 and 5"},
		{"negative count", Request{Ingredients: []string{"beans"}, Count: -1}, "Meal count must be between 1 and 5"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Generate(context.Background(), tt.req)
			var genErr *GenerationError
			if !errors.As(err, &genErr) || genErr.Message != tt.want {
				t.Errorf("err = %v, want %q", err, tt.want)
			}
		})
	}
	if calls != 0 {
		t.Errorf("server calls = %d, want 0", calls)
	}
}

func TestGenerateTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	_, err := NewClient(url).Generate(context.Background(), Request{Ingredients: []string{"rice"}})
	var genErr *GenerationError
	if !errors.As(err, &genErr) || genErr.Message != "Failed to generate meals" {
		t.Fatalf("err = %v, want GenerationError", err)
	}
	if genErr.Err == nil {
		t.Error("transport error should be wrapped")
	}
}

func TestGenerateHonoursContext(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := c.Generate(ctx, Request{Ingredients: []string{"rice"}})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want wrapped context.Canceled", err)
	}
}

func TestHealth(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/health" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(`{"status":"healthy","service":"MealPrep AI"}`))
	})

	hs, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if hs.Status != "healthy" || hs.Service != "MealPrep AI" {
		t.Errorf("health = %+v", hs)
	}
}

func TestHealthFailure(t *testing.T) {
	c := setupServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	if _, err := c.Health(context.Background()); err == nil {
		t.Error("expected error for unhealthy service")
	}
}

func TestNewClientDefaultURL(t *testing.T) {
	if c := NewClient(""); c.baseURL != DefaultBaseURL {
		t.Errorf("base url = %q, want %q", c.baseURL, DefaultBaseURL)
	}
}
