package config

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config stores runtime configuration loaded from an optional YAML file and the environment.
type Config struct {
	Env      string `yaml:"env"`
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	DatabaseDriver string `yaml:"database_driver"`
	DatabasePath   string `yaml:"database_path"`
	DatabaseURL    string `yaml:"database_url"`

	OpenRouterKey     string        `yaml:"openrouter_api_key"`
	OpenRouterBaseURL string        `yaml:"openrouter_base_url"`
	OpenRouterModel   string        `yaml:"openrouter_model"`
	LLMTemperature    float32       `yaml:"llm_temperature"`
	LLMMaxTokens      int           `yaml:"llm_max_tokens"`
	LLMTimeout        time.Duration `yaml:"llm_timeout"`
	VisionModel       string        `yaml:"vision_model"`

	SupabaseURL         string `yaml:"supabase_url"`
	SupabaseServiceKey  string `yaml:"supabase_service_key"`
	SupabaseJWTSecret   string `yaml:"supabase_jwt_secret"`
	SupabaseJWTAudience string `yaml:"supabase_jwt_audience"`
	SupabaseBucket      string `yaml:"supabase_bucket"`

	RedisURL            string   `yaml:"redis_url"`
	GenerationRateLimit int      `yaml:"generation_rate_limit"`
	GenerationWorkers   int      `yaml:"generation_workers"`
	AllowedOrigins      []string `yaml:"allowed_origins"`
	MaxUploadBytes      int64    `yaml:"max_upload_bytes"`
}

// IsDev reports whether the server runs in development mode.
func (c Config) IsDev() bool {
	return c.Env == "" || c.Env == "development"
}

// Load reads configuration from CONFIG_FILE (if set) and the environment, providing sensible defaults.
func Load() Config {
	// Load .env file if it exists (useful for development)
	_ = godotenv.Load()

	cfg, err := fromFile(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("load config file: %v", err)
	}
	applyEnv(&cfg)

	if cfg.DatabaseDriver == "sqlite" && cfg.DatabasePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.DatabasePath), 0o755); err != nil {
			log.Fatalf("failed to ensure database dir %s: %v", cfg.DatabasePath, err)
		}
	}

	return cfg
}

func fromFile(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// applyEnv overlays environment variables on cfg and fills in defaults for anything still empty.
func applyEnv(cfg *Config) {
	cfg.Env = getEnv("APP_ENV", or(cfg.Env, "development"))
	cfg.Port = getEnv("PORT", or(cfg.Port, "8080"))
	cfg.LogLevel = getEnv("LOG_LEVEL", or(cfg.LogLevel, "info"))

	cfg.DatabaseDriver = strings.ToLower(getEnv("DATABASE_DRIVER", or(cfg.DatabaseDriver, "sqlite")))
	cfg.DatabasePath = getEnv("DATABASE_PATH", or(cfg.DatabasePath, "./data/flashgen.db"))
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)

	cfg.OpenRouterKey = getEnv("OPENROUTER_API_KEY", cfg.OpenRouterKey)
	cfg.OpenRouterBaseURL = getEnv("OPENROUTER_BASE_URL", or(cfg.OpenRouterBaseURL, "https://openrouter.ai/api/v1"))
	cfg.OpenRouterModel = getEnv("OPENROUTER_MODEL", or(cfg.OpenRouterModel, "openai/gpt-4o-mini"))
	cfg.LLMTemperature = float32(getEnvFloat("LLM_TEMPERATURE", float64(orFloat(cfg.LLMTemperature, 0.3))))
	cfg.LLMMaxTokens = getEnvInt("LLM_MAX_TOKENS", orInt(cfg.LLMMaxTokens, 2000))
	cfg.LLMTimeout = getEnvDuration("LLM_TIMEOUT", orDuration(cfg.LLMTimeout, 90*time.Second))
	cfg.VisionModel = getEnv("VISION_MODEL", or(cfg.VisionModel, cfg.OpenRouterModel))

	cfg.SupabaseURL = strings.TrimRight(getEnv("SUPABASE_URL", cfg.SupabaseURL), "/")
	cfg.SupabaseServiceKey = getEnv("SUPABASE_SERVICE_KEY", cfg.SupabaseServiceKey)
	cfg.SupabaseJWTSecret = getEnv("SUPABASE_JWT_SECRET", cfg.SupabaseJWTSecret)
	cfg.SupabaseJWTAudience = getEnv("SUPABASE_JWT_AUDIENCE", or(cfg.SupabaseJWTAudience, "authenticated"))
	cfg.SupabaseBucket = getEnv("SUPABASE_BUCKET", or(cfg.SupabaseBucket, "source-documents"))

	cfg.RedisURL = getEnv("REDIS_URL", cfg.RedisURL)
	cfg.GenerationRateLimit = getEnvInt("GENERATION_RATE_LIMIT", orInt(cfg.GenerationRateLimit, 20))
	cfg.GenerationWorkers = getEnvInt("GENERATION_WORKERS", orInt(cfg.GenerationWorkers, 4))
	cfg.AllowedOrigins = getEnvList("ALLOWED_ORIGINS", cfg.AllowedOrigins)
	cfg.MaxUploadBytes = int64(getEnvInt("MAX_UPLOAD_BYTES", int(orInt64(cfg.MaxUploadBytes, 8<<20))))
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, raw, err)
		return fallback
	}
	return v
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, raw, err)
		return fallback
	}
	return v
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		log.Printf("ignoring %s=%q: %v", key, raw, err)
		return fallback
	}
	return v
}

func getEnvList(key string, fallback []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}

func orInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func orInt64(v, fallback int64) int64 {
	if v != 0 {
		return v
	}
	return fallback
}

func orFloat(v, fallback float32) float32 {
	if v != 0 {
		return v
	}
	return fallback
}

func orDuration(v, fallback time.Duration) time.Duration {
	if v != 0 {
		return v
	}
	return fallback
}
