// Package config reads process settings from the environment, optionally
// seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/dukerupert/mealprep/internal/meals"
)

type Config struct {
	Port              string
	DBPath            string
	Ephemeral         bool
	APIURL            string
	SupabaseURL       string
	SupabaseAnonKey   string
	SessionPassphrase string
	Appearance        string
	MealCacheTTL      time.Duration
	HTTPTimeout       time.Duration
	LogLevel          string
	OriginPatterns    []string
}

// Load reads the given .env files (".env" when none are named) and then
// the environment. Variables already set win over file values. Missing
// files are not an error.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cacheTTL, err := getEnvDuration("MEALPREP_MEAL_CACHE_TTL", meals.DefaultCacheTTL)
	if err != nil {
		return nil, err
	}
	httpTimeout, err := getEnvDuration("MEALPREP_HTTP_TIMEOUT", 0)
	if err != nil {
		return nil, err
	}
	ephemeral, err := getEnvBool("MEALPREP_EPHEMERAL")
	if err != nil {
		return nil, err
	}

	return &Config{
		Port:              getEnv("MEALPREP_PORT", "8085"),
		DBPath:            getEnv("MEALPREP_DB_PATH", "mealprep.db"),
		Ephemeral:         ephemeral,
		APIURL:            getEnv("MEALPREP_API_URL", meals.DefaultBaseURL),
		SupabaseURL:       getEnv("MEALPREP_SUPABASE_URL", ""),
		SupabaseAnonKey:   getEnv("MEALPREP_SUPABASE_ANON_KEY", ""),
		SessionPassphrase: getEnv("MEALPREP_SESSION_PASSPHRASE", ""),
		Appearance:        getEnv("MEALPREP_APPEARANCE", ""),
		MealCacheTTL:      cacheTTL,
		HTTPTimeout:       httpTimeout,
		LogLevel:          getEnv("MEALPREP_LOG_LEVEL", "info"),
		OriginPatterns:    getEnvList("MEALPREP_WS_ORIGINS"),
	}, nil
}

func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	return d, nil
}

func getEnvBool(key string) (bool, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// AuthConfigured reports whether both auth service settings are present.
func (c *Config) AuthConfigured() bool {
	return c.SupabaseURL != "" && c.SupabaseAnonKey != ""
}
