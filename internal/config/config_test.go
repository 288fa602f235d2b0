package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func clearEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestApplyEnv(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		clearEnv(t, "APP_ENV", "PORT", "DATABASE_DRIVER", "OPENROUTER_MODEL", "VISION_MODEL", "LLM_TIMEOUT", "GENERATION_WORKERS", "MAX_UPLOAD_BYTES")

		var cfg Config
		applyEnv(&cfg)

		if cfg.Port != "8080" || cfg.DatabaseDriver != "sqlite" || !cfg.IsDev() {
			t.Errorf("Unexpected defaults %+v", cfg)
		}
		if cfg.LLMTimeout != 90*time.Second {
			t.Errorf("Expected 90s LLM timeout, got %s", cfg.LLMTimeout)
		}
		if cfg.VisionModel != cfg.OpenRouterModel {
			t.Errorf("Expected vision model to follow the chat model, got %q", cfg.VisionModel)
		}
		if cfg.MaxUploadBytes != 8<<20 {
			t.Errorf("Expected 8MiB upload limit, got %d", cfg.MaxUploadBytes)
		}
	})

	t.Run("EnvironmentWins", func(t *testing.T) {
		t.Setenv("PORT", "9090")
		t.Setenv("DATABASE_DRIVER", "POSTGRES")
		t.Setenv("GENERATION_WORKERS", "7")
		t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")

		cfg := Config{Port: "1234", GenerationWorkers: 2}
		applyEnv(&cfg)

		if cfg.Port != "9090" || cfg.DatabaseDriver != "postgres" || cfg.GenerationWorkers != 7 {
			t.Errorf("Unexpected config %+v", cfg)
		}
		if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example" {
			t.Errorf("Unexpected origins %v", cfg.AllowedOrigins)
		}
	})

	t.Run("InvalidNumberFallsBack", func(t *testing.T) {
		t.Setenv("GENERATION_WORKERS", "many")
		cfg := Config{GenerationWorkers: 3}
		applyEnv(&cfg)
		if cfg.GenerationWorkers != 3 {
			t.Errorf("Expected file value to survive, got %d", cfg.GenerationWorkers)
		}
	})
}

func TestFromFile(t *testing.T) {
	clearEnv(t, "PORT", "LLM_TIMEOUT", "SUPABASE_BUCKET")

	path := filepath.Join(t.TempDir(), "flashgen.yaml")
	raw := "port: \"7070\"\nllm_timeout: 45s\nsupabase_bucket: uploads\n"
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := fromFile(path)
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	applyEnv(&cfg)

	if cfg.Port != "7070" || cfg.LLMTimeout != 45*time.Second || cfg.SupabaseBucket != "uploads" {
		t.Errorf("Unexpected config %+v", cfg)
	}

	if _, err := fromFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("Expected error for a missing file")
	}
}
