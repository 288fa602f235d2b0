package models

import (
	"time"

	"github.com/google/uuid"
	fsrs "github.com/open-spaced-repetition/go-fsrs"
	"gorm.io/gorm"
)

type GenerationStatus string

const (
	GenerationProcessing GenerationStatus = "processing"
	GenerationCompleted  GenerationStatus = "completed"
	GenerationFailed     GenerationStatus = "failed"
)

type FlashcardSource string

const (
	SourceAI     FlashcardSource = "AI"
	SourceManual FlashcardSource = "MANUAL"
)

// Valid reports whether s is one of the known flashcard origins.
func (s FlashcardSource) Valid() bool {
	return s == SourceAI || s == SourceManual
}

// GenerationRequest tracks one source-text submission through the AI pipeline.
type GenerationRequest struct {
	ID           uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID        `gorm:"type:uuid;not null;index" json:"user_id"`
	SourceText   string           `gorm:"type:text;not null" json:"source_text"`
	Status       GenerationStatus `gorm:"type:varchar(16);not null;index" json:"status"`
	DocumentPath *string          `gorm:"type:text" json:"document_path,omitempty"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

func (r *GenerationRequest) BeforeCreate(*gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// AICandidate is an AI-proposed flashcard awaiting review. It lives in its own
// table; promotion copies it into flashcards and deletes the row.
type AICandidate struct {
	ID        uuid.UUID          `gorm:"type:uuid;primaryKey" json:"id"`
	RequestID uuid.UUID          `gorm:"type:uuid;not null;index" json:"request_id"`
	Request   *GenerationRequest `gorm:"foreignKey:RequestID;constraint:OnDelete:CASCADE" json:"-"`
	Front     string             `gorm:"type:text;not null" json:"front"`
	Back      string             `gorm:"type:text;not null" json:"back"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}

func (AICandidate) TableName() string { return "ai_candidate_flashcards" }

func (c *AICandidate) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type Flashcard struct {
	ID        uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	Front     string          `gorm:"type:text;not null" json:"front"`
	Back      string          `gorm:"type:text;not null" json:"back"`
	Source    FlashcardSource `gorm:"type:varchar(8);not null;index" json:"source"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`

	// Spaced repetition state, see ToFSRSCard.
	Due           *time.Time `gorm:"index" json:"due,omitempty"`
	Stability     float64    `gorm:"not null;default:0" json:"stability"`
	Difficulty    float64    `gorm:"not null;default:0" json:"difficulty"`
	ElapsedDays   int        `gorm:"not null;default:0" json:"elapsed_days"`
	ScheduledDays int        `gorm:"not null;default:0" json:"scheduled_days"`
	Reps          int        `gorm:"not null;default:0" json:"reps"`
	Lapses        int        `gorm:"not null;default:0" json:"lapses"`
	State         int        `gorm:"not null;default:0" json:"state"`
	LastReview    *time.Time `json:"last_review,omitempty"`
}

func (f *Flashcard) BeforeCreate(*gorm.DB) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	return nil
}

type ReviewLog struct {
	ID            uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	FlashcardID   uuid.UUID  `gorm:"type:uuid;not null;index" json:"flashcard_id"`
	Flashcard     *Flashcard `gorm:"foreignKey:FlashcardID;constraint:OnDelete:CASCADE" json:"-"`
	UserID        uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	Rating        int        `gorm:"not null" json:"rating"`
	ScheduledDays int        `gorm:"not null" json:"scheduled_days"`
	ElapsedDays   int        `gorm:"not null" json:"elapsed_days"`
	State         int        `gorm:"not null" json:"state"`
	ReviewedAt    time.Time  `gorm:"not null" json:"reviewed_at"`
}

func (l *ReviewLog) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

func (f *Flashcard) ToFSRSCard() fsrs.Card {
	card := fsrs.Card{
		Stability:     f.Stability,
		Difficulty:    f.Difficulty,
		ElapsedDays:   uint64(max(f.ElapsedDays, 0)),
		ScheduledDays: uint64(max(f.ScheduledDays, 0)),
		Reps:          uint64(max(f.Reps, 0)),
		Lapses:        uint64(max(f.Lapses, 0)),
		State:         fsrs.State(max(f.State, 0)),
	}
	if f.Due != nil {
		card.Due = *f.Due
	}
	if f.LastReview != nil {
		card.LastReview = *f.LastReview
	}
	return card
}

func (f *Flashcard) ApplyFSRSCard(c fsrs.Card) {
	f.Due = timePtr(c.Due)
	f.Stability = c.Stability
	f.Difficulty = c.Difficulty
	f.ElapsedDays = int(c.ElapsedDays)
	f.ScheduledDays = int(c.ScheduledDays)
	f.Reps = int(c.Reps)
	f.Lapses = int(c.Lapses)
	f.State = int(c.State)
	f.LastReview = timePtr(c.LastReview)
}

func timePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	t = t.UTC()
	return &t
}
