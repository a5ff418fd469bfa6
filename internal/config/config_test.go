package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"MEALPREP_PORT", "MEALPREP_DB_PATH", "MEALPREP_API_URL",
		"MEALPREP_SUPABASE_URL", "MEALPREP_SUPABASE_ANON_KEY",
		"MEALPREP_SESSION_PASSPHRASE", "MEALPREP_APPEARANCE",
		"MEALPREP_MEAL_CACHE_TTL", "MEALPREP_HTTP_TIMEOUT",
		"MEALPREP_LOG_LEVEL", "MEALPREP_WS_ORIGINS", "MEALPREP_EPHEMERAL",
	} {
		t.Setenv(k, "")
		os.Unsetenv(k)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "8085" || cfg.DBPath != "mealprep.db" || cfg.APIURL != "http://localhost:8000" {
		t.Errorf("defaults = %+v", cfg)
	}
	if cfg.MealCacheTTL != 5*time.Minute || cfg.HTTPTimeout != 0 {
		t.Errorf("durations = %v, %v", cfg.MealCacheTTL, cfg.HTTPTimeout)
	}
	if cfg.AuthConfigured() {
		t.Error("auth should not be configured by default")
	}
	if cfg.Ephemeral {
		t.Error("runs should be durable by default")
	}
}

func TestLoadEphemeral(t *testing.T) {
	tests := []struct {
		value   string
		want    bool
		wantErr bool
	}{
		{"true", true, false},
		{"1", true, false},
		{"false", false, false},
		{"sometimes", false, true},
	}
	for _, tt := range tests {
		t.Run(tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("MEALPREP_EPHEMERAL", tt.value)
			cfg, err := Load(filepath.Join(t.TempDir(), "missing.env"))
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("load: %v", err)
			}
			if cfg.Ephemeral != tt.want {
				t.Errorf("ephemeral = %v, want %v", cfg.Ephemeral, tt.want)
			}
		})
	}
}

func TestLoadFromEnvFile(t *testing.T) {
	clearEnv(t)
	path := filepath.Join(t.TempDir(), ".env")
	os.WriteFile(path, []byte("MEALPREP_PORT=9000\nMEALPREP_SUPABASE_URL=https://example.supabase.co\nMEALPREP_SUPABASE_ANON_KEY=anon\nMEALPREP_MEAL_CACHE_TTL=90s\n"), 0o600)

	// Real environment wins over the file.
	t.Setenv("MEALPREP_PORT", "9100")
	t.Setenv("MEALPREP_WS_ORIGINS", "localhost:8081, 192.168.1.*")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Port != "9100" {
		t.Errorf("port = %q, want environment value 9100", cfg.Port)
	}
	if !cfg.AuthConfigured() || cfg.MealCacheTTL != 90*time.Second {
		t.Errorf("config = %+v", cfg)
	}
	if len(cfg.OriginPatterns) != 2 || cfg.OriginPatterns[1] != "192.168.1.*" {
		t.Errorf("origins = %v", cfg.OriginPatterns)
	}
}

func TestLoadRejectsBadDuration(t *testing.T) {
	clearEnv(t)
	for _, v := range []string{"soon", "-5m"} {
		t.Setenv("MEALPREP_HTTP_TIMEOUT", v)
		if _, err := Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
			t.Errorf("expected error for MEALPREP_HTTP_TIMEOUT=%q", v)
		}
	}
}
