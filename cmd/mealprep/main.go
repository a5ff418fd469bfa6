package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dukerupert/mealprep/internal/app"
	"github.com/dukerupert/mealprep/internal/authclient"
	"github.com/dukerupert/mealprep/internal/config"
	"github.com/dukerupert/mealprep/internal/database"
	"github.com/dukerupert/mealprep/internal/kv"
	"github.com/dukerupert/mealprep/internal/logging"
	"github.com/dukerupert/mealprep/internal/meals"
	"github.com/dukerupert/mealprep/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	logger := logging.Setup(cfg.LogLevel)

	store, closeStore, err := openStore(cfg, logger)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer closeStore()

	// Tokens are sealed at rest when a passphrase is configured.
	sessionStore := store
	if cfg.SessionPassphrase != "" {
		sealed, err := kv.NewSealedStore(store, cfg.SessionPassphrase)
		if err != nil {
			slog.Error("failed to set up sealed session store", "error", err)
			os.Exit(1)
		}
		sessionStore = sealed
	}

	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	if !cfg.AuthConfigured() {
		logger.Warn("auth service not configured, running in guest mode",
			"url_set", cfg.SupabaseURL != "",
			"key_set", cfg.SupabaseAnonKey != "",
		)
	}
	authClient := authclient.NewClient(
		authclient.Config{URL: cfg.SupabaseURL, AnonKey: cfg.SupabaseAnonKey},
		sessionStore,
		authclient.WithHTTPClient(httpClient),
		authclient.WithLogger(logger.With("component", "authclient")),
	)

	mealClient := meals.NewClient(cfg.APIURL,
		meals.WithHTTPClient(httpClient),
		meals.WithLogger(logger.With("component", "meals")),
	)
	gateway := meals.NewCachedGateway(mealClient, cfg.MealCacheTTL, logger.With("component", "meal_cache"))

	a, err := app.New(app.Options{
		Store:            store,
		Auth:             authClient,
		Meals:            gateway,
		SystemAppearance: cfg.Appearance,
		Logger:           logger,
	})
	if err != nil {
		slog.Error("failed to build app", "error", err)
		os.Exit(1)
	}

	// The server subscribes to the stores before they load so the launch
	// decision reaches connected renderers.
	srv := server.New(a, server.Options{OriginPatterns: cfg.OriginPatterns}, logger)

	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	route, err := a.Start(startCtx)
	startCancel()
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	logger.Info("launch route", "route", route)

	httpServer := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           srv.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      2 * time.Minute, // meal generation can be slow upstream
		IdleTimeout:       120 * time.Second,
	}

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	defer cleanupCancel()
	go func() {
		ticker := time.NewTicker(10 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := srv.RateLimiter().Cleanup(); n > 0 {
					slog.Debug("cleaned up rate limit windows", "count", n)
				}
				gateway.Purge()
			case <-cleanupCtx.Done():
				return
			}
		}
	}()

	go func() {
		slog.Info("mealprep starting", "addr", ":"+cfg.Port, "api_url", cfg.APIURL)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down")
	cleanupCancel()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		slog.Error("shutdown error", "error", err)
		os.Exit(1)
	}
}

// openStore returns the kv store for this run. Ephemeral runs keep
// everything in memory and start as a fresh install every time.
func openStore(cfg *config.Config, logger *slog.Logger) (kv.Store, func(), error) {
	if cfg.Ephemeral {
		logger.Warn("ephemeral run, nothing will be saved")
		return kv.NewMemoryStore(), func() {}, nil
	}

	db, err := database.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	store := kv.NewSQLiteStore(db)
	if keys, err := store.Keys(context.Background()); err == nil {
		logger.Debug("stored keys", "keys", keys)
	}
	return store, func() { db.Close() }, nil
}
