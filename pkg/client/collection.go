package client

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

// FlashcardStore is the remote half of a Collection.
type FlashcardStore interface {
	ListFlashcards(ctx context.Context, params ListParams) (*FlashcardPage, error)
	UpdateFlashcard(ctx context.Context, id uuid.UUID, in CardInput) (*models.Flashcard, error)
	DeleteFlashcard(ctx context.Context, id uuid.UUID) error
}

// Collection is a local copy of one page of flashcards. Changes are applied
// locally first and rolled back when the server rejects them.
type Collection struct {
	mu    sync.RWMutex
	store FlashcardStore
	cards []models.Flashcard
}

func NewCollection(store FlashcardStore) *Collection {
	return &Collection{store: store}
}

// Load replaces the local list with one page from the server.
func (c *Collection) Load(ctx context.Context, params ListParams) (Pagination, error) {
	page, err := c.store.ListFlashcards(ctx, params)
	if err != nil {
		return Pagination{}, err
	}
	c.mu.Lock()
	c.cards = slices.Clone(page.Flashcards)
	c.mu.Unlock()
	return page.Pagination, nil
}

// Cards returns a copy of the local list.
func (c *Collection) Cards() []models.Flashcard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.cards)
}

func (c *Collection) Update(ctx context.Context, id uuid.UUID, in CardInput) (*models.Flashcard, error) {
	snapshot := c.snapshot()

	c.mu.Lock()
	for i := range c.cards {
		if c.cards[i].ID == id {
			c.cards[i].Front = in.Front
			c.cards[i].Back = in.Back
		}
	}
	c.mu.Unlock()

	updated, err := c.store.UpdateFlashcard(ctx, id, in)
	if err != nil {
		c.restore(snapshot)
		return nil, err
	}

	c.mu.Lock()
	for i := range c.cards {
		if c.cards[i].ID == id {
			c.cards[i] = *updated
		}
	}
	c.mu.Unlock()
	return updated, nil
}

func (c *Collection) Delete(ctx context.Context, id uuid.UUID) error {
	snapshot := c.snapshot()

	c.mu.Lock()
	c.cards = slices.DeleteFunc(c.cards, func(card models.Flashcard) bool { return card.ID == id })
	c.mu.Unlock()

	if err := c.store.DeleteFlashcard(ctx, id); err != nil {
		c.restore(snapshot)
		return err
	}
	return nil
}

func (c *Collection) snapshot() []models.Flashcard {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.cards)
}

func (c *Collection) restore(cards []models.Flashcard) {
	c.mu.Lock()
	c.cards = cards
	c.mu.Unlock()
}
