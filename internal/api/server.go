package api

import (
	"context"
	"errors"
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"flashgen/internal/middleware"
	"flashgen/internal/services"
)

const defaultMaxUploadBytes = 8 << 20 // 8 MB

// Services groups the domain services the HTTP layer dispatches to.
type Services struct {
	Generation *services.GenerationService
	Candidates *services.CandidateService
	Flashcards *services.FlashcardService
	Documents  *services.DocumentService
}

type Options struct {
	Verifier       *middleware.TokenVerifier
	Limiter        middleware.Limiter
	Logger         *zap.Logger
	AllowedOrigins []string
	MaxUploadBytes int64
	Workers        int
}

type Server struct {
	engine     *gin.Engine
	generation *services.GenerationService
	candidates *services.CandidateService
	flashcards *services.FlashcardService
	documents  *services.DocumentService
	jobs       *JobManager
	limiter    middleware.Limiter
	logger     *zap.Logger
	maxUpload  int64
}

func NewServer(svc Services, opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	s := &Server{
		engine:     gin.New(),
		generation: svc.Generation,
		candidates: svc.Candidates,
		flashcards: svc.Flashcards,
		documents:  svc.Documents,
		jobs:       NewJobManager(opts.Workers, logger),
		limiter:    opts.Limiter,
		logger:     logger,
		maxUpload:  maxUpload,
	}
	s.engine.HandleMethodNotAllowed = true
	s.engine.Use(middleware.Recovery(logger))
	s.engine.Use(middleware.Logger(logger))
	s.engine.Use(cors.New(corsConfig(opts.AllowedOrigins)))
	s.engine.NoRoute(func(c *gin.Context) { writeError(c, http.StatusNotFound, "not found") })
	s.engine.NoMethod(func(c *gin.Context) { writeError(c, http.StatusMethodNotAllowed, "method not allowed") })

	s.routes(opts)
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
		MaxAge:       12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Wait blocks until background generation jobs have finished.
func (s *Server) Wait() {
	s.jobs.Wait()
}

// Shutdown drains background jobs until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.jobs.Shutdown(ctx)
}

func (s *Server) routes(opts Options) {
	api := s.engine.Group("/api")
	api.GET("/health", s.handleHealth)

	authed := api.Group("", middleware.Auth(opts.Verifier))

	// Submissions are rate limited inside the handlers, after validation.
	requests := authed.Group("/generation-requests")
	requests.POST("", s.handleCreateGenerationRequest)
	requests.POST("/pdf", s.handleCreateGenerationRequestFromPDF)
	requests.POST("/image", s.handleCreateGenerationRequestFromImage)
	requests.GET("", s.handleListGenerationRequests)
	requests.GET("/:id", s.handleGetGenerationRequest)

	candidates := authed.Group("/ai-candidates")
	candidates.GET("", s.handleListCandidates)
	candidates.PUT("/:id", s.handleUpdateCandidate)
	candidates.DELETE("/:id", s.handleDeleteCandidate)
	candidates.POST("/:id/accept", s.handleAcceptCandidate)

	cards := authed.Group("/flashcards")
	cards.GET("", s.handleListFlashcards)
	cards.POST("", s.handleCreateFlashcard)
	cards.GET("/:id", s.handleGetFlashcard)
	cards.PUT("/:id", s.handleUpdateFlashcard)
	cards.DELETE("/:id", s.handleDeleteFlashcard)
	cards.POST("/:id/review", s.handleReviewFlashcard)

	study := authed.Group("/study")
	study.GET("/next", s.handleNextCard)
	study.GET("/stats", s.handleStudyStats)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func writeError(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message})
}

// respondError maps a service error onto its status code and a safe message.
func (s *Server) respondError(c *gin.Context, err error) {
	status := services.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	writeError(c, status, services.PublicMessage(err))
}

// currentUser returns the authenticated user. Auth always runs first, so a
// missing value is a wiring bug and answers 401.
func currentUser(c *gin.Context) (uuid.UUID, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

var errInvalidID = errors.New("invalid id")

// pathID parses the :id path parameter as a version 4 UUID.
func pathID(c *gin.Context) (uuid.UUID, bool) {
	id, err := parseUUIDv4(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "invalid id: must be a UUID v4")
		return uuid.Nil, false
	}
	return id, true
}

func parseUUIDv4(raw string) (uuid.UUID, error) {
	if len(raw) != 36 {
		return uuid.Nil, errInvalidID
	}
	id, err := uuid.Parse(raw)
	if err != nil || id.Version() != 4 || id.Variant() != uuid.RFC4122 {
		return uuid.Nil, errInvalidID
	}
	return id, nil
}
