package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"flashgen/internal/models"
)

// ProgressCallback is called while a generation request is processed.
type ProgressCallback func(step, message string, current, total int)

const educationalPrompt = `You are an expert educator who writes spaced repetition flashcards.
Read the source text and produce atomic, unambiguous question/answer pairs that test one fact or idea each.
Prefer active recall over recognition, avoid yes/no questions and do not repeat the same fact twice.
Write the cards in the language of the source text.`

const recentRequestsLimit = 50

// GenerationService turns source text into reviewable AI candidates.
type GenerationService struct {
	db     *gorm.DB
	llm    Completer
	logger *zap.Logger
}

func NewGenerationService(db *gorm.DB, llm Completer, logger *zap.Logger) *GenerationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GenerationService{db: db, llm: llm, logger: logger}
}

// CreateRequest validates the source text and stores a request in the processing state.
func (s *GenerationService) CreateRequest(ctx context.Context, userID uuid.UUID, sourceText string, documentPath *string) (*models.GenerationRequest, error) {
	text, err := ValidateSourceText(sourceText)
	if err != nil {
		return nil, err
	}

	req := &models.GenerationRequest{
		UserID:       userID,
		SourceText:   text,
		Status:       models.GenerationProcessing,
		DocumentPath: documentPath,
	}
	if err := s.db.WithContext(ctx).Create(req).Error; err != nil {
		return nil, databaseErr("create generation request", err)
	}
	return req, nil
}

// Generate creates a request and processes it synchronously.
func (s *GenerationService) Generate(ctx context.Context, userID uuid.UUID, sourceText string) (*models.GenerationRequest, []models.AICandidate, error) {
	req, err := s.CreateRequest(ctx, userID, sourceText, nil)
	if err != nil {
		return nil, nil, err
	}
	candidates, err := s.Process(ctx, req, nil)
	return req, candidates, err
}

// Process calls the LLM for req, stores the usable candidates and moves the
// request to completed. Any failure marks the request failed. A result with no
// usable cards also marks it failed but returns an empty slice and no error.
func (s *GenerationService) Process(ctx context.Context, req *models.GenerationRequest, progress ProgressCallback) ([]models.AICandidate, error) {
	if progress == nil {
		progress = func(string, string, int, int) {}
	}
	if s.llm == nil {
		s.markFailed(ctx, req)
		return nil, &FlashcardError{Code: CodeGeneration, Message: "generate flashcards", Err: ErrAIUnavailable}
	}

	progress("generating", "Requesting flashcards from the model", 10, 100)

	completion, err := s.llm.Complete(ctx, []Message{
		{Role: openai.ChatMessageRoleSystem, Content: educationalPrompt},
		{Role: openai.ChatMessageRoleUser, Content: req.SourceText},
	})
	if err != nil {
		s.markFailed(ctx, req)
		return nil, &FlashcardError{Code: CodeGeneration, Message: "generate flashcards", Err: err}
	}

	candidates := buildCandidates(req.ID, completion.Flashcards)
	if len(candidates) == 0 {
		s.logger.Warn("model returned no usable flashcards",
			zap.String("request_id", req.ID.String()),
			zap.String("reference", completion.Reference),
			zap.Int("returned", len(completion.Flashcards)))
		s.markFailed(ctx, req)
		return []models.AICandidate{}, nil
	}

	progress("saving", fmt.Sprintf("Saving %d candidates", len(candidates)), 80, 100)

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.CreateInBatches(&candidates, 100).Error; err != nil {
			return fmt.Errorf("insert candidates: %w", err)
		}
		return tx.Model(req).Update("status", models.GenerationCompleted).Error
	})
	if err != nil {
		s.markFailed(ctx, req)
		return nil, databaseErr("store generated candidates", err)
	}
	req.Status = models.GenerationCompleted

	s.logger.Info("generation completed",
		zap.String("request_id", req.ID.String()),
		zap.String("reference", completion.Reference),
		zap.Int("returned", len(completion.Flashcards)),
		zap.Int("stored", len(candidates)))
	progress("complete", "Generation complete", 100, 100)

	return candidates, nil
}

// buildCandidates drops cards with a blank or over-length side.
func buildCandidates(requestID uuid.UUID, cards []GeneratedFlashcard) []models.AICandidate {
	out := make([]models.AICandidate, 0, len(cards))
	for _, card := range cards {
		front := strings.TrimSpace(card.Front)
		back := strings.TrimSpace(card.Back)
		if !withinCardLimits(front, back) {
			continue
		}
		out = append(out, models.AICandidate{RequestID: requestID, Front: front, Back: back})
	}
	return out
}

func (s *GenerationService) markFailed(ctx context.Context, req *models.GenerationRequest) {
	// The request must leave the processing state even when ctx was cancelled.
	ctx = context.WithoutCancel(ctx)
	err := s.db.WithContext(ctx).
		Model(&models.GenerationRequest{}).
		Where("id = ?", req.ID).
		Update("status", models.GenerationFailed).Error
	if err != nil {
		s.logger.Error("mark generation request failed", zap.String("request_id", req.ID.String()), zap.Error(err))
		return
	}
	req.Status = models.GenerationFailed
}

// GetRequest returns a request owned by userID. Requests of other users are reported as not found.
func (s *GenerationService) GetRequest(ctx context.Context, userID, id uuid.UUID) (*models.GenerationRequest, error) {
	var req models.GenerationRequest
	err := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&req).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("generation request not found")
	}
	if err != nil {
		return nil, databaseErr("load generation request", err)
	}
	return &req, nil
}

// ListRequests returns the most recent requests of userID.
func (s *GenerationService) ListRequests(ctx context.Context, userID uuid.UUID) ([]models.GenerationRequest, error) {
	requests := []models.GenerationRequest{}
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Limit(recentRequestsLimit).
		Find(&requests).Error
	if err != nil {
		return nil, databaseErr("list generation requests", err)
	}
	return requests, nil
}
