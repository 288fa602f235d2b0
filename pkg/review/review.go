// Package review tracks a user's decisions on AI-generated candidates and
// commits them to the API.
package review

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"flashgen/internal/models"
	"flashgen/pkg/client"
)

type State int

const (
	Idle State = iota
	Editing
	SavingEdit
	MarkedForAcceptance
	MarkedForRejection
	Saving
	Saved
	Rejected
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Editing:
		return "editing"
	case SavingEdit:
		return "saving_edit"
	case MarkedForAcceptance:
		return "marked_for_acceptance"
	case MarkedForRejection:
		return "marked_for_rejection"
	case Saving:
		return "saving"
	case Saved:
		return "saved"
	case Rejected:
		return "rejected"
	case Error:
		return "error"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Final reports whether the item no longer exists as a candidate.
func (s State) Final() bool {
	return s == Saved || s == Rejected
}

var (
	ErrPartialSave       = errors.New("some candidates could not be saved")
	ErrUnknownCandidate  = errors.New("unknown candidate")
	ErrInvalidTransition = errors.New("invalid state transition")
)

// Backend is the subset of the API client a session needs.
type Backend interface {
	UpdateCandidate(ctx context.Context, id uuid.UUID, in client.CardInput) (*models.AICandidate, error)
	DeleteCandidate(ctx context.Context, id uuid.UUID) error
	AcceptCandidate(ctx context.Context, id uuid.UUID) (*models.Flashcard, error)
}

type Item struct {
	Candidate models.AICandidate
	State     State
	// Err is the last save failure; cleared when the item is marked again.
	Err       error
	Flashcard *models.Flashcard
}

// Summary counts the outcome of a bulk save.
type Summary struct {
	Saved    int
	Rejected int
	Failed   int
}

// Session holds the review state of every candidate of one generation request.
type Session struct {
	mu      sync.Mutex
	backend Backend
	items   []*Item
	index   map[uuid.UUID]*Item
}

func NewSession(backend Backend, candidates []models.AICandidate) *Session {
	s := &Session{
		backend: backend,
		items:   make([]*Item, 0, len(candidates)),
		index:   make(map[uuid.UUID]*Item, len(candidates)),
	}
	for _, c := range candidates {
		item := &Item{Candidate: c, State: Idle}
		s.items = append(s.items, item)
		s.index[c.ID] = item
	}
	return s
}

// Items returns copies of the items in their original order.
func (s *Session) Items() []Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Item, len(s.items))
	for i, item := range s.items {
		out[i] = *item
	}
	return out
}

func (s *Session) State(id uuid.UUID) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.index[id]
	if !ok {
		return Idle, ErrUnknownCandidate
	}
	return item.State, nil
}

// ToggleAccept marks the candidate for acceptance, or clears the mark when it
// is already set.
func (s *Session) ToggleAccept(id uuid.UUID) (State, error) {
	return s.toggle(id, MarkedForAcceptance)
}

func (s *Session) ToggleReject(id uuid.UUID) (State, error) {
	return s.toggle(id, MarkedForRejection)
}

func (s *Session) toggle(id uuid.UUID, mark State) (State, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.index[id]
	if !ok {
		return Idle, ErrUnknownCandidate
	}

	switch item.State {
	case mark:
		item.State = Idle
	case Idle, MarkedForAcceptance, MarkedForRejection, Error:
		item.State = mark
		item.Err = nil
	default:
		return item.State, fmt.Errorf("%w: cannot mark from %s", ErrInvalidTransition, item.State)
	}
	return item.State, nil
}

func (s *Session) StartEdit(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.index[id]
	if !ok {
		return ErrUnknownCandidate
	}
	if item.State != Idle && item.State != Error {
		return fmt.Errorf("%w: cannot edit from %s", ErrInvalidTransition, item.State)
	}
	item.State = Editing
	item.Err = nil
	return nil
}

func (s *Session) CancelEdit(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.index[id]
	if !ok {
		return ErrUnknownCandidate
	}
	if item.State != Editing {
		return fmt.Errorf("%w: not editing", ErrInvalidTransition)
	}
	item.State = Idle
	return nil
}

// SaveEdit stores new text for a candidate being edited. On failure the item
// moves to Error and keeps its previous text.
func (s *Session) SaveEdit(ctx context.Context, id uuid.UUID, in client.CardInput) error {
	s.mu.Lock()
	item, ok := s.index[id]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownCandidate
	}
	if item.State != Editing {
		s.mu.Unlock()
		return fmt.Errorf("%w: not editing", ErrInvalidTransition)
	}
	item.State = SavingEdit
	s.mu.Unlock()

	updated, err := s.backend.UpdateCandidate(ctx, id, in)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		item.State = Error
		item.Err = err
		return err
	}
	item.Candidate = *updated
	item.State = Idle
	return nil
}

// SaveAllMarked accepts every candidate marked for acceptance and deletes
// every candidate marked for rejection. Failures do not stop the loop; they
// are recorded on the item and reported as ErrPartialSave.
func (s *Session) SaveAllMarked(ctx context.Context) (Summary, error) {
	return s.save(ctx, true)
}

// SaveAccepted commits only the acceptance marks.
func (s *Session) SaveAccepted(ctx context.Context) (Summary, error) {
	return s.save(ctx, false)
}

func (s *Session) save(ctx context.Context, includeRejected bool) (Summary, error) {
	type job struct {
		item   *Item
		accept bool
	}

	s.mu.Lock()
	var jobs []job
	for _, item := range s.items {
		switch {
		case item.State == MarkedForAcceptance:
			jobs = append(jobs, job{item: item, accept: true})
		case item.State == MarkedForRejection && includeRejected:
			jobs = append(jobs, job{item: item})
		default:
			continue
		}
		item.State = Saving
	}
	s.mu.Unlock()

	var summary Summary
	for _, j := range jobs {
		id := j.item.Candidate.ID
		var (
			card *models.Flashcard
			err  error
		)
		if j.accept {
			card, err = s.backend.AcceptCandidate(ctx, id)
		} else {
			err = s.backend.DeleteCandidate(ctx, id)
		}

		s.mu.Lock()
		switch {
		case err != nil:
			j.item.State = Error
			j.item.Err = err
			summary.Failed++
		case j.accept:
			j.item.State = Saved
			j.item.Flashcard = card
			summary.Saved++
		default:
			j.item.State = Rejected
			summary.Rejected++
		}
		s.mu.Unlock()
	}

	if summary.Failed > 0 {
		return summary, fmt.Errorf("%w: %d of %d failed", ErrPartialSave, summary.Failed, len(jobs))
	}
	return summary, nil
}
