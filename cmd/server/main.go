package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"flashgen/internal/api"
	"flashgen/internal/config"
	"flashgen/internal/db"
	"flashgen/internal/logging"
	"flashgen/internal/middleware"
	"flashgen/internal/services"
)

const (
	shutdownTimeout = 30 * time.Second
	rateLimitWindow = time.Hour
)

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}
	defer logger.Sync()

	if cfg.IsDev() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	conn, err := db.Open(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}
	defer db.Close(conn)

	if cfg.SupabaseJWTSecret == "" {
		logger.Warn("SUPABASE_JWT_SECRET is not set, every authenticated request will be rejected")
	}
	if cfg.OpenRouterKey == "" {
		logger.Warn("OPENROUTER_API_KEY is not set, generation requests will fail")
	}

	llm := services.NewLLMClient(services.LLMConfig{
		APIKey:      cfg.OpenRouterKey,
		BaseURL:     cfg.OpenRouterBaseURL,
		Model:       cfg.OpenRouterModel,
		Temperature: cfg.LLMTemperature,
		MaxTokens:   cfg.LLMMaxTokens,
		Timeout:     cfg.LLMTimeout,
	}, logger.Named("llm"))

	var store services.ObjectStore
	if s := services.NewSupabaseStore(cfg.SupabaseURL, cfg.SupabaseServiceKey, cfg.SupabaseBucket); s != nil {
		store = s
	} else {
		logger.Info("supabase storage not configured, uploaded PDFs will not be archived")
	}

	var ocr services.TextRecognizer
	if v := services.NewVisionOCR(services.LLMConfig{
		APIKey:    cfg.OpenRouterKey,
		BaseURL:   cfg.OpenRouterBaseURL,
		Model:     cfg.VisionModel,
		MaxTokens: 4000,
		Timeout:   cfg.LLMTimeout,
	}, logger.Named("ocr")); v != nil {
		ocr = v
	}

	flashcardService := services.NewFlashcardService(conn)
	server := api.NewServer(api.Services{
		Generation: services.NewGenerationService(conn, llm, logger.Named("generation")),
		Candidates: services.NewCandidateService(conn, flashcardService),
		Flashcards: flashcardService,
		Documents:  services.NewDocumentService(services.NewPDFService(), ocr, store, logger.Named("documents")),
	}, api.Options{
		Verifier:       middleware.NewTokenVerifier(cfg.SupabaseJWTSecret, cfg.SupabaseJWTAudience),
		Limiter:        newLimiter(cfg, logger),
		Logger:         logger,
		AllowedOrigins: cfg.AllowedOrigins,
		MaxUploadBytes: cfg.MaxUploadBytes,
		Workers:        cfg.GenerationWorkers,
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      server.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr), zap.String("env", cfg.Env), zap.String("database", cfg.DatabaseDriver))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	if err := server.Shutdown(ctx); err != nil {
		logger.Warn("generation jobs cancelled before completion", zap.Error(err))
	}
	logger.Info("server exited")
}

// newLimiter prefers a Redis-backed limiter so that limits hold across instances.
func newLimiter(cfg config.Config, logger *zap.Logger) middleware.Limiter {
	if cfg.GenerationRateLimit <= 0 {
		return nil
	}
	if cfg.RedisURL != "" {
		rdb, err := connectRedis(cfg.RedisURL)
		if err == nil {
			logger.Info("using redis rate limiter", zap.Int("per_hour", cfg.GenerationRateLimit))
			return middleware.NewRedisLimiter(rdb, cfg.GenerationRateLimit, rateLimitWindow)
		}
		logger.Warn("redis unavailable, falling back to in-process rate limiting", zap.Error(err))
	}
	return middleware.NewLocalLimiter(cfg.GenerationRateLimit, rateLimitWindow)
}

func connectRedis(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	rdb := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return rdb, nil
}
