// Package launch decides the first screen once the preferences and session
// stores have finished loading.
package launch

import (
	"context"
	"log/slog"
	"sync"
)

type Route string

const (
	Pending    Route = "pending"
	Onboarding Route = "onboarding"
	Home       Route = "home"
)

// PreferencesSource is satisfied by *preferences.Store.
type PreferencesSource interface {
	Loaded() <-chan struct{}
	HasCompletedOnboarding() bool
}

// SessionSource is satisfied by *session.Store.
type SessionSource interface {
	Loaded() <-chan struct{}
}

type Router struct {
	prefs   PreferencesSource
	session SessionSource
	logger  *slog.Logger

	once    sync.Once
	mu      sync.RWMutex
	route   Route
	onRoute func(Route)
	done    chan struct{}
}

func New(prefs PreferencesSource, sess SessionSource, logger *slog.Logger) *Router {
	return &Router{
		prefs:   prefs,
		session: sess,
		logger:  logger,
		route:   Pending,
		done:    make(chan struct{}),
	}
}

// OnRoute registers fn to receive the decision. It is called at most once.
func (r *Router) OnRoute(fn func(Route)) {
	r.mu.Lock()
	r.onRoute = fn
	r.mu.Unlock()
}

// Run blocks until both stores have loaded, then decides the route. Later
// calls return the same decision without notifying again. If ctx ends first
// the router stays Pending and ctx.Err() is returned.
func (r *Router) Run(ctx context.Context) (Route, error) {
	for _, ch := range []<-chan struct{}{r.prefs.Loaded(), r.session.Loaded()} {
		select {
		case <-ch:
		case <-ctx.Done():
			return r.Route(), ctx.Err()
		}
	}

	r.once.Do(r.decide)
	return r.Route(), nil
}

func (r *Router) decide() {
	route := Onboarding
	if r.prefs.HasCompletedOnboarding() {
		route = Home
	}

	r.mu.Lock()
	r.route = route
	fn := r.onRoute
	r.mu.Unlock()
	close(r.done)

	r.logger.Info("launch route decided", "route", route)
	if fn != nil {
		fn(route)
	}
}

// Route returns the decision, or Pending before it is made.
func (r *Router) Route() Route {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.route
}

// Done is closed once the route has been decided.
func (r *Router) Done() <-chan struct{} {
	return r.done
}
