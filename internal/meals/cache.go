package meals

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

const DefaultCacheTTL = 5 * time.Minute

// CachedGateway reuses results for identical (ingredients, diet, allergies,
// goal) requests for the cache lifetime and collapses identical requests
// that are in flight. Count is not part of the key. Failures are not cached.
type CachedGateway struct {
	next   Generator
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time

	group singleflight.Group

	mu      sync.Mutex
	entries map[string]cacheEntry
}

type cacheEntry struct {
	meals   []Meal
	expires time.Time
}

// NewCachedGateway wraps next. A ttl of zero or less means DefaultCacheTTL.
func NewCachedGateway(next Generator, ttl time.Duration, logger *slog.Logger) *CachedGateway {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &CachedGateway{
		next:    next,
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func cacheKey(req Request) string {
	key, _ := json.Marshal([]any{req.Ingredients, req.Diet, req.Allergies, req.Goal})
	return string(key)
}

func (g *CachedGateway) lookup(key string) ([]Meal, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	e, ok := g.entries[key]
	if !ok {
		return nil, false
	}
	if !g.now().Before(e.expires) {
		delete(g.entries, key)
		return nil, false
	}
	return e.meals, true
}

func (g *CachedGateway) store(key string, meals []Meal) {
	g.mu.Lock()
	g.entries[key] = cacheEntry{meals: cloneMeals(meals), expires: g.now().Add(g.ttl)}
	g.mu.Unlock()
}

// Generate returns cached meals when available. The shared request keeps
// running when a caller's ctx ends; that caller just stops waiting.
func (g *CachedGateway) Generate(ctx context.Context, req Request) ([]Meal, error) {
	key := cacheKey(req)
	if meals, ok := g.lookup(key); ok {
		g.logger.Debug("meal cache hit", "key", key)
		return cloneMeals(meals), nil
	}

	ch := g.group.DoChan(key, func() (any, error) {
		meals, err := g.next.Generate(context.WithoutCancel(ctx), req)
		if err != nil {
			return nil, err
		}
		g.store(key, meals)
		return meals, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			g.logger.Debug("meal request shared", "key", key)
		}
		return cloneMeals(res.Val.([]Meal)), nil
	case <-ctx.Done():
		return nil, &GenerationError{Message: "Request cancelled", Err: ctx.Err()}
	}
}

// Health is never cached.
func (g *CachedGateway) Health(ctx context.Context) (HealthStatus, error) {
	return g.next.Health(ctx)
}

// Purge drops expired entries and reports how many remain.
func (g *CachedGateway) Purge() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	now := g.now()
	for k, e := range g.entries {
		if !now.Before(e.expires) {
			delete(g.entries, k)
		}
	}
	return len(g.entries)
}
