package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"flashgen/internal/models"
)

// CandidateService manages AI candidates of a user's generation requests.
type CandidateService struct {
	db    *gorm.DB
	cards *FlashcardService
}

func NewCandidateService(db *gorm.DB, cards *FlashcardService) *CandidateService {
	return &CandidateService{db: db, cards: cards}
}

// ListByRequest returns the candidates of a request owned by userID, oldest first.
func (s *CandidateService) ListByRequest(ctx context.Context, userID, requestID uuid.UUID) ([]models.AICandidate, error) {
	db := s.db.WithContext(ctx)

	var count int64
	if err := db.Model(&models.GenerationRequest{}).
		Where("id = ? AND user_id = ?", requestID, userID).
		Count(&count).Error; err != nil {
		return nil, databaseErr("load generation request", err)
	}
	if count == 0 {
		return nil, notFoundErr("generation request not found")
	}

	candidates := []models.AICandidate{}
	if err := db.Where("request_id = ?", requestID).Order("created_at ASC, id ASC").Find(&candidates).Error; err != nil {
		return nil, databaseErr("list candidates", err)
	}
	return candidates, nil
}

// load returns a candidate whose request belongs to userID. Foreign candidates
// are reported as not found.
func (s *CandidateService) load(tx *gorm.DB, userID, id uuid.UUID) (*models.AICandidate, error) {
	var candidate models.AICandidate
	err := tx.Joins("JOIN generation_requests ON generation_requests.id = ai_candidate_flashcards.request_id").
		Where("ai_candidate_flashcards.id = ? AND generation_requests.user_id = ?", id, userID).
		First(&candidate).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("candidate not found")
	}
	if err != nil {
		return nil, databaseErr("load candidate", err)
	}
	return &candidate, nil
}

func (s *CandidateService) Update(ctx context.Context, userID, id uuid.UUID, in FlashcardInput) (*models.AICandidate, error) {
	if err := ValidateFlashcard(&in); err != nil {
		return nil, err
	}

	var candidate *models.AICandidate
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		candidate, err = s.load(tx, userID, id)
		if err != nil {
			return err
		}
		candidate.Front = in.Front
		candidate.Back = in.Back
		return tx.Model(candidate).Updates(map[string]any{"front": in.Front, "back": in.Back}).Error
	})
	if err != nil {
		return nil, wrapDatabase("update candidate", err)
	}
	return candidate, nil
}

func (s *CandidateService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate, err := s.load(tx, userID, id)
		if err != nil {
			return err
		}
		return tx.Delete(candidate).Error
	})
	return wrapDatabase("delete candidate", err)
}

// Accept promotes a candidate to a permanent AI flashcard. The insert and the
// candidate delete commit together or not at all.
func (s *CandidateService) Accept(ctx context.Context, userID, id uuid.UUID) (*models.Flashcard, error) {
	var card *models.Flashcard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		candidate, err := s.load(tx, userID, id)
		if err != nil {
			return err
		}

		card = s.cards.newCard(userID, candidate.Front, candidate.Back, models.SourceAI)
		if err := tx.Create(card).Error; err != nil {
			return fmt.Errorf("insert flashcard: %w", err)
		}

		res := tx.Delete(candidate)
		if res.Error != nil {
			return fmt.Errorf("delete candidate: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return notFoundErr("candidate not found")
		}
		return nil
	})
	if err != nil {
		return nil, wrapDatabase("accept candidate", err)
	}
	return card, nil
}
