package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/dukerupert/mealprep/internal/app"
	"github.com/dukerupert/mealprep/internal/handler"
	"github.com/dukerupert/mealprep/internal/launch"
	"github.com/dukerupert/mealprep/internal/middleware"
	"github.com/dukerupert/mealprep/internal/preferences"
	"github.com/dukerupert/mealprep/internal/session"
	"github.com/dukerupert/mealprep/internal/theme"
	ws "github.com/dukerupert/mealprep/internal/websocket"
)

const (
	authRateLimit  = 10
	authRateWindow = time.Minute
)

type Options struct {
	// OriginPatterns lists extra origins allowed to open the websocket.
	OriginPatterns []string
}

type Server struct {
	app         *app.App
	hub         *ws.Hub
	stateH      *handler.StateHandler
	themeH      *handler.ThemeHandler
	prefsH      *handler.PreferencesHandler
	authH       *handler.AuthHandler
	mealsH      *handler.MealsHandler
	rateLimiter *middleware.RateLimiter
	opts        Options
	logger      *slog.Logger
}

// New builds the HTTP shell around a and subscribes the hub to every store
// so renderers hear about changes made by any client.
func New(a *app.App, opts Options, logger *slog.Logger) *Server {
	hub := ws.NewHub(logger.With("component", "websocket"))
	s := &Server{
		app:         a,
		hub:         hub,
		stateH:      handler.NewStateHandler(a),
		themeH:      handler.NewThemeHandler(a.Theme, logger.With("component", "theme_handler")),
		prefsH:      handler.NewPreferencesHandler(a.Preferences, logger.With("component", "preferences_handler")),
		authH:       handler.NewAuthHandler(a.Session, logger.With("component", "auth_handler")),
		mealsH:      handler.NewMealsHandler(a, logger.With("component", "meals_handler")),
		rateLimiter: middleware.NewRateLimiter(authRateLimit, authRateWindow),
		opts:        opts,
		logger:      logger,
	}
	s.subscribe()
	return s
}

func (s *Server) subscribe() {
	s.app.Theme.OnChange(func(m theme.Mode) {
		s.hub.Broadcast(ws.NewMessage(ws.EntityTheme, ws.ActionUpdated, s.app.Theme.State()))
	})
	s.app.Preferences.OnChange(func(st preferences.State, completedOnboarding bool) {
		if completedOnboarding {
			s.hub.Broadcast(ws.NewMessage(ws.EntityOnboarding, ws.ActionCompleted, st))
			return
		}
		s.hub.Broadcast(ws.NewMessage(ws.EntityPreferences, ws.ActionUpdated, st))
	})
	s.app.Session.OnChange(func(u *session.User) {
		s.hub.Broadcast(ws.NewMessage(ws.EntitySession, ws.ActionUpdated, s.app.Session.State()))
	})
	s.app.Router.OnRoute(func(r launch.Route) {
		s.hub.Broadcast(ws.NewMessage(ws.EntityRoute, ws.ActionDecided, map[string]launch.Route{"route": r}))
	})
}

func (s *Server) Hub() *ws.Hub {
	return s.hub
}

// RateLimiter returns the limiter for the cleanup loop.
func (s *Server) RateLimiter() *middleware.RateLimiter {
	return s.rateLimiter
}

func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.healthHandler)

	mux.HandleFunc("GET /api/state", s.stateH.Get)
	mux.HandleFunc("GET /api/options", s.stateH.Options)

	mux.HandleFunc("PUT /api/theme", s.themeH.Set)
	mux.HandleFunc("POST /api/theme/toggle", s.themeH.Toggle)

	mux.HandleFunc("GET /api/preferences", s.prefsH.Get)
	mux.HandleFunc("PUT /api/preferences", s.prefsH.Update)
	mux.HandleFunc("POST /api/onboarding/complete", s.prefsH.CompleteOnboarding)

	mux.HandleFunc("POST /api/auth/signin", s.rateLimitedHandler(s.authH.SignIn))
	mux.HandleFunc("POST /api/auth/signup", s.rateLimitedHandler(s.authH.SignUp))
	mux.HandleFunc("POST /api/auth/signout", s.authH.SignOut)
	mux.HandleFunc("DELETE /api/auth/account", s.authH.DeleteAccount)

	mux.HandleFunc("POST /api/meals/generate", s.mealsH.Generate)
	mux.HandleFunc("GET /api/meals/health", s.mealsH.Health)

	snapshot := func() any { return s.app.Snapshot() }
	mux.HandleFunc("GET /ws", ws.HandleWebSocket(s.hub, snapshot, s.opts.OriginPatterns))

	logged := middleware.RequestLogger(s.logger.With("component", "http"), "/health")(mux)
	return middleware.RequestID(logged)
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"status": "ok",
		"route":  s.app.Router.Route(),
	})
}

func (s *Server) rateLimitedHandler(h http.HandlerFunc) http.HandlerFunc {
	return s.rateLimiter.Middleware(middleware.ByIP)(h).ServeHTTP
}
