// Package app builds the client core once at process start and hands the
// stores to whoever needs them.
package app

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/dukerupert/mealprep/internal/kv"
	"github.com/dukerupert/mealprep/internal/launch"
	"github.com/dukerupert/mealprep/internal/meals"
	"github.com/dukerupert/mealprep/internal/preferences"
	"github.com/dukerupert/mealprep/internal/session"
	"github.com/dukerupert/mealprep/internal/theme"
)

type Options struct {
	// Store backs the theme and preferences stores.
	Store            kv.Store
	Auth             session.Backend
	Meals            meals.Generator
	SystemAppearance string
	Logger           *slog.Logger
}

type App struct {
	Theme       *theme.Store
	Preferences *preferences.Store
	Session     *session.Store
	Router      *launch.Router
	Meals       meals.Generator

	logger *slog.Logger
}

func New(opts Options) (*App, error) {
	if opts.Store == nil {
		return nil, errors.New("app: store is required")
	}
	if opts.Auth == nil {
		return nil, errors.New("app: auth backend is required")
	}
	if opts.Meals == nil {
		return nil, errors.New("app: meal generator is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	prefs := preferences.New(opts.Store, logger.With("component", "preferences"))
	sess := session.New(opts.Auth, logger.With("component", "session"))
	return &App{
		Theme:       theme.New(opts.Store, opts.SystemAppearance, logger.With("component", "theme")),
		Preferences: prefs,
		Session:     sess,
		Router:      launch.New(prefs, sess, logger.With("component", "launch")),
		Meals:       opts.Meals,
		logger:      logger,
	}, nil
}

// Start loads the three stores concurrently and waits for the launch
// decision.
func (a *App) Start(ctx context.Context) (launch.Route, error) {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		a.Theme.Load(gctx)
		return nil
	})
	g.Go(func() error {
		a.Preferences.Load(gctx)
		return nil
	})
	g.Go(func() error {
		a.Session.Load(gctx)
		return nil
	})

	var route launch.Route
	g.Go(func() error {
		var err error
		route, err = a.Router.Run(gctx)
		return err
	})

	if err := g.Wait(); err != nil {
		return launch.Pending, err
	}
	a.logger.Info("app started",
		"route", route,
		"theme", a.Theme.Mode(),
		"authenticated", a.Session.IsAuthenticated(),
	)
	return route, nil
}

// Snapshot is the combined state a renderer needs to draw any screen.
type Snapshot struct {
	Theme       theme.State       `json:"theme"`
	Preferences preferences.State `json:"preferences"`
	Session     session.State     `json:"session"`
	Route       launch.Route      `json:"route"`
}

func (a *App) Snapshot() Snapshot {
	return Snapshot{
		Theme:       a.Theme.State(),
		Preferences: a.Preferences.State(),
		Session:     a.Session.State(),
		Route:       a.Router.Route(),
	}
}

// MealRequest fills diet, allergies and goal from the saved preferences.
func (a *App) MealRequest(ingredients []string, count int) meals.Request {
	p := a.Preferences.Preferences()
	return meals.Request{
		Ingredients: ingredients,
		Diet:        p.Diet,
		Allergies:   p.Allergies,
		Goal:        p.Goal,
		Count:       count,
	}
}

// GenerateMeals runs a generation request parameterized by the saved
// preferences.
func (a *App) GenerateMeals(ctx context.Context, ingredients []string, count int) ([]meals.Meal, error) {
	return a.Meals.Generate(ctx, a.MealRequest(ingredients, count))
}
