package client

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

type fakeStore struct {
	cards     []models.Flashcard
	updateErr error
	deleteErr error
}

func (f *fakeStore) ListFlashcards(context.Context, ListParams) (*FlashcardPage, error) {
	return &FlashcardPage{Flashcards: f.cards, Pagination: Pagination{Page: 1, Limit: 20, Total: int64(len(f.cards)), TotalPages: 1}}, nil
}

func (f *fakeStore) UpdateFlashcard(_ context.Context, id uuid.UUID, in CardInput) (*models.Flashcard, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &models.Flashcard{ID: id, Front: in.Front, Back: in.Back, Source: models.SourceManual}, nil
}

func (f *fakeStore) DeleteFlashcard(context.Context, uuid.UUID) error {
	return f.deleteErr
}

func loadedCollection(t *testing.T, store *fakeStore) *Collection {
	t.Helper()
	c := NewCollection(store)
	if _, err := c.Load(context.Background(), ListParams{}); err != nil {
		t.Fatalf("load: %v", err)
	}
	return c
}

func TestCollection(t *testing.T) {
	first := models.Flashcard{ID: uuid.New(), Front: "Q1", Back: "A1"}
	second := models.Flashcard{ID: uuid.New(), Front: "Q2", Back: "A2"}

	t.Run("UpdateCommits", func(t *testing.T) {
		c := loadedCollection(t, &fakeStore{cards: []models.Flashcard{first, second}})

		if _, err := c.Update(context.Background(), first.ID, CardInput{Front: "New", Back: "A1"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if got := c.Cards()[0].Front; got != "New" {
			t.Errorf("Expected updated front, got %q", got)
		}
	})

	t.Run("UpdateRestoresOnFailure", func(t *testing.T) {
		c := loadedCollection(t, &fakeStore{cards: []models.Flashcard{first, second}, updateErr: errors.New("offline")})

		if _, err := c.Update(context.Background(), first.ID, CardInput{Front: "New", Back: "A1"}); err == nil {
			t.Fatal("Expected error")
		}
		if got := c.Cards()[0].Front; got != "Q1" {
			t.Errorf("Expected original front after rollback, got %q", got)
		}
	})

	t.Run("DeleteCommits", func(t *testing.T) {
		c := loadedCollection(t, &fakeStore{cards: []models.Flashcard{first, second}})

		if err := c.Delete(context.Background(), first.ID); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		cards := c.Cards()
		if len(cards) != 1 || cards[0].ID != second.ID {
			t.Errorf("Expected only the second card, got %+v", cards)
		}
	})

	t.Run("DeleteRestoresOnFailure", func(t *testing.T) {
		c := loadedCollection(t, &fakeStore{cards: []models.Flashcard{first, second}, deleteErr: &Error{StatusCode: 403, Message: "access denied"}})

		if err := c.Delete(context.Background(), first.ID); StatusCode(err) != 403 {
			t.Fatalf("Expected 403, got %v", err)
		}
		if got := len(c.Cards()); got != 2 {
			t.Errorf("Expected both cards after rollback, got %d", got)
		}
	})
}
