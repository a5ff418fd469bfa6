package meals

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
)

const DefaultBaseURL = "http://localhost:8000"

// Client calls the generation service directly. It never retries.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = l
	}
}

// NewClient creates a client for the service at baseURL, or DefaultBaseURL
// when baseURL is empty.
func NewClient(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		logger:     slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type generateResponse struct {
	Meals []Meal `json:"meals"`
}

// Generate asks the service for meals built from req.Ingredients. A zero
// Count means DefaultCount.
func (c *Client) Generate(ctx context.Context, req Request) ([]Meal, error) {
	if len(req.Ingredients) == 0 {
		return nil, &GenerationError{Message: "At least one ingredient is required"}
	}
	if req.Count == 0 {
		req.Count = DefaultCount
	}
	if req.Count < MinCount || req.Count > MaxCount {
		return nil, &GenerationError{Message: fmt.Sprintf("Meal count must be between %d and %d", MinCount, MaxCount)}
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, &GenerationError{Message: "Failed to generate meals", Err: fmt.Errorf("marshal request: %w", err)}
	}

	start := time.Now()
	resp, err := c.send(ctx, http.MethodPost, "/api/generate-meals", body)
	if err != nil {
		c.logger.Warn("meal generation request failed", "error", err)
		return nil, &GenerationError{Message: "Failed to generate meals", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := errorMessage(resp.Body)
		c.logger.Warn("meal generation rejected", "status", resp.StatusCode, "detail", msg)
		return nil, &GenerationError{Message: msg, StatusCode: resp.StatusCode}
	}

	var out generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &GenerationError{Message: "Failed to generate meals", StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	if out.Meals == nil {
		out.Meals = []Meal{}
	}

	c.logger.Info("meals generated",
		"count", len(out.Meals),
		"ingredients", len(req.Ingredients),
		"duration", time.Since(start),
	)
	return out.Meals, nil
}

// errorMessage extracts the service's detail field from an error body. A
// body that is not JSON yields "Unknown error"; JSON without a string detail
// yields "Failed to generate meals".
func errorMessage(r io.Reader) string {
	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.NewDecoder(r).Decode(&body); err != nil {
		return "Unknown error"
	}
	var detail string
	if err := json.Unmarshal(body.Detail, &detail); err != nil || detail == "" {
		return "Failed to generate meals"
	}
	return detail
}

// Health reports the service's own health check.
func (c *Client) Health(ctx context.Context) (HealthStatus, error) {
	resp, err := c.send(ctx, http.MethodGet, "/api/health", nil)
	if err != nil {
		return HealthStatus{}, fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return HealthStatus{}, fmt.Errorf("health check failed: status %d", resp.StatusCode)
	}

	var hs HealthStatus
	if err := json.NewDecoder(resp.Body).Decode(&hs); err != nil {
		return HealthStatus{}, fmt.Errorf("decode health response: %w", err)
	}
	return hs, nil
}

func (c *Client) send(ctx context.Context, method, path string, body []byte) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return c.httpClient.Do(req)
}
