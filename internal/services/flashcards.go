package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	fsrs "github.com/open-spaced-repetition/go-fsrs"
	"gorm.io/gorm"

	"flashgen/internal/models"
)

var (
	// ErrNoDueCards indicates that there are no cards ready to review.
	ErrNoDueCards = errors.New("no due cards")
)

const (
	DefaultPage  = 1
	DefaultLimit = 20
	MaxLimit     = 100
)

// ListOptions selects one page of a user's flashcards.
type ListOptions struct {
	Page   int
	Limit  int
	Source models.FlashcardSource
}

// Pagination is returned alongside every paged list.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

type FlashcardPage struct {
	Flashcards []models.Flashcard `json:"flashcards"`
	Pagination Pagination         `json:"pagination"`
}

// StudyStats counts a user's cards by scheduling state.
type StudyStats struct {
	Total    int64 `json:"total"`
	Due      int64 `json:"due"`
	New      int64 `json:"new"`
	Learning int64 `json:"learning"`
	Review   int64 `json:"review"`
}

// FlashcardService owns the permanent flashcard collection and its FSRS scheduling.
type FlashcardService struct {
	db     *gorm.DB
	params fsrs.Parameters
	now    func() time.Time
}

func NewFlashcardService(db *gorm.DB) *FlashcardService {
	return &FlashcardService{
		db:     db,
		params: fsrs.DefaultParam(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (o ListOptions) normalize() (ListOptions, error) {
	if o.Page == 0 {
		o.Page = DefaultPage
	}
	if o.Limit == 0 {
		o.Limit = DefaultLimit
	}
	if o.Page < 1 {
		return o, validationErr("page must be at least 1")
	}
	if o.Limit < 1 || o.Limit > MaxLimit {
		return o, validationErr(fmt.Sprintf("limit must be between 1 and %d", MaxLimit))
	}
	if o.Source != "" && !o.Source.Valid() {
		return o, validationErr("source must be one of [AI MANUAL]")
	}
	return o, nil
}

// List returns one page of the user's flashcards, newest first.
func (s *FlashcardService) List(ctx context.Context, userID uuid.UUID, opts ListOptions) (*FlashcardPage, error) {
	opts, err := opts.normalize()
	if err != nil {
		return nil, err
	}

	query := s.db.WithContext(ctx).Model(&models.Flashcard{}).Where("user_id = ?", userID)
	if opts.Source != "" {
		query = query.Where("source = ?", opts.Source)
	}

	cards := []models.Flashcard{}
	pagination, err := paginate(query.Order("created_at DESC"), opts.Page, opts.Limit, &cards)
	if err != nil {
		return nil, databaseErr("list flashcards", err)
	}
	return &FlashcardPage{Flashcards: cards, Pagination: pagination}, nil
}

func paginate[T any](query *gorm.DB, page, limit int, dest *[]T) (Pagination, error) {
	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Pagination{}, err
	}
	if err := query.Offset((page - 1) * limit).Limit(limit).Find(dest).Error; err != nil {
		return Pagination{}, err
	}
	return Pagination{
		Page:       page,
		Limit:      limit,
		Total:      total,
		TotalPages: int((total + int64(limit) - 1) / int64(limit)),
	}, nil
}

func (s *FlashcardService) Get(ctx context.Context, userID, id uuid.UUID) (*models.Flashcard, error) {
	return s.load(s.db.WithContext(ctx), userID, id)
}

// load fetches a card and tells apart a missing card from someone else's card.
func (s *FlashcardService) load(tx *gorm.DB, userID, id uuid.UUID) (*models.Flashcard, error) {
	var card models.Flashcard
	err := tx.Where("id = ?", id).First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, notFoundErr("flashcard not found")
	}
	if err != nil {
		return nil, databaseErr("load flashcard", err)
	}
	if card.UserID != userID {
		return nil, accessDeniedErr("flashcard belongs to another user")
	}
	return &card, nil
}

// Create stores a new card for userID. New cards are due immediately.
func (s *FlashcardService) Create(ctx context.Context, userID uuid.UUID, in FlashcardInput, source models.FlashcardSource) (*models.Flashcard, error) {
	if err := ValidateFlashcard(&in); err != nil {
		return nil, err
	}
	card := s.newCard(userID, in.Front, in.Back, source)
	if err := s.db.WithContext(ctx).Create(card).Error; err != nil {
		return nil, databaseErr("create flashcard", err)
	}
	return card, nil
}

func (s *FlashcardService) newCard(userID uuid.UUID, front, back string, source models.FlashcardSource) *models.Flashcard {
	now := s.now()
	return &models.Flashcard{
		UserID: userID,
		Front:  front,
		Back:   back,
		Source: source,
		Due:    &now,
		State:  int(fsrs.New),
	}
}

func (s *FlashcardService) Update(ctx context.Context, userID, id uuid.UUID, in FlashcardInput) (*models.Flashcard, error) {
	if err := ValidateFlashcard(&in); err != nil {
		return nil, err
	}

	var card *models.Flashcard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		card, err = s.load(tx, userID, id)
		if err != nil {
			return err
		}
		card.Front = in.Front
		card.Back = in.Back
		return tx.Model(card).Updates(map[string]any{"front": in.Front, "back": in.Back}).Error
	})
	if err != nil {
		return nil, wrapDatabase("update flashcard", err)
	}
	return card, nil
}

// Delete removes a card. Cards of other users are left untouched.
func (s *FlashcardService) Delete(ctx context.Context, userID, id uuid.UUID) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := s.load(tx, userID, id)
		if err != nil {
			return err
		}
		return tx.Delete(card).Error
	})
	return wrapDatabase("delete flashcard", err)
}

// ParseRating converts again|hard|good|easy into an FSRS rating.
func ParseRating(raw string) (fsrs.Rating, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "again":
		return fsrs.Again, nil
	case "hard":
		return fsrs.Hard, nil
	case "good":
		return fsrs.Good, nil
	case "easy":
		return fsrs.Easy, nil
	default:
		return 0, validationErr("rating must be one of [again hard good easy]")
	}
}

// Review applies an FSRS rating to a card and records the review.
func (s *FlashcardService) Review(ctx context.Context, userID, id uuid.UUID, rating fsrs.Rating) (*models.Flashcard, *models.ReviewLog, error) {
	var (
		card   *models.Flashcard
		review *models.ReviewLog
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		card, err = s.load(tx, userID, id)
		if err != nil {
			return err
		}

		now := s.now()
		info, ok := s.params.Repeat(card.ToFSRSCard(), now)[rating]
		if !ok {
			return validationErr(fmt.Sprintf("rating %d not supported", rating))
		}
		card.ApplyFSRSCard(info.Card)

		if err := tx.Model(card).Select(
			"due", "stability", "difficulty", "elapsed_days", "scheduled_days",
			"reps", "lapses", "state", "last_review",
		).Updates(card).Error; err != nil {
			return fmt.Errorf("update card: %w", err)
		}

		review = &models.ReviewLog{
			FlashcardID:   card.ID,
			UserID:        userID,
			Rating:        int(info.ReviewLog.Rating),
			ScheduledDays: int(info.ReviewLog.ScheduledDays),
			ElapsedDays:   int(info.ReviewLog.ElapsedDays),
			State:         int(info.ReviewLog.State),
			ReviewedAt:    now,
		}
		if err := tx.Create(review).Error; err != nil {
			return fmt.Errorf("insert review log: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, nil, wrapDatabase("review flashcard", err)
	}
	return card, review, nil
}

// NextDue returns the earliest due card of the user, falling back to the
// oldest card that was never reviewed.
func (s *FlashcardService) NextDue(ctx context.Context, userID uuid.UUID) (*models.Flashcard, error) {
	db := s.db.WithContext(ctx)
	now := s.now()

	var card models.Flashcard
	err := db.Where("user_id = ? AND due IS NOT NULL AND due <= ?", userID, now).
		Order("due ASC").
		First(&card).Error
	if err == nil {
		return &card, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, databaseErr("load due flashcard", err)
	}

	err = db.Where("user_id = ? AND state = ?", userID, int(fsrs.New)).
		Order("created_at ASC").
		First(&card).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDueCards
	}
	if err != nil {
		return nil, databaseErr("load new flashcard", err)
	}
	return &card, nil
}

func (s *FlashcardService) Stats(ctx context.Context, userID uuid.UUID) (*StudyStats, error) {
	db := s.db.WithContext(ctx)
	now := s.now()
	var stats StudyStats

	counts := []struct {
		dest  *int64
		query string
		args  []any
	}{
		{&stats.Total, "user_id = ?", []any{userID}},
		{&stats.Due, "user_id = ? AND due IS NOT NULL AND due <= ?", []any{userID, now}},
		{&stats.New, "user_id = ? AND state = ?", []any{userID, int(fsrs.New)}},
		{&stats.Learning, "user_id = ? AND state IN ?", []any{userID, []int{int(fsrs.Learning), int(fsrs.Relearning)}}},
		{&stats.Review, "user_id = ? AND state = ?", []any{userID, int(fsrs.Review)}},
	}
	for _, c := range counts {
		if err := db.Model(&models.Flashcard{}).Where(c.query, c.args...).Count(c.dest).Error; err != nil {
			return nil, databaseErr("count flashcards", err)
		}
	}
	return &stats, nil
}

// wrapDatabase leaves typed service errors alone and wraps everything else as a database error.
func wrapDatabase(msg string, err error) error {
	if err == nil {
		return nil
	}
	var fe *FlashcardError
	if errors.As(err, &fe) {
		return err
	}
	return databaseErr(msg, err)
}
