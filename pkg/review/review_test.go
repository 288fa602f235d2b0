package review

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"flashgen/internal/models"
	"flashgen/pkg/client"
)

type fakeBackend struct {
	failAccept map[uuid.UUID]error
	accepted   []uuid.UUID
	deleted    []uuid.UUID
	updateErr  error
}

func (f *fakeBackend) UpdateCandidate(_ context.Context, id uuid.UUID, in client.CardInput) (*models.AICandidate, error) {
	if f.updateErr != nil {
		return nil, f.updateErr
	}
	return &models.AICandidate{ID: id, Front: in.Front, Back: in.Back}, nil
}

func (f *fakeBackend) DeleteCandidate(_ context.Context, id uuid.UUID) error {
	f.deleted = append(f.deleted, id)
	return nil
}

func (f *fakeBackend) AcceptCandidate(_ context.Context, id uuid.UUID) (*models.Flashcard, error) {
	if err := f.failAccept[id]; err != nil {
		return nil, err
	}
	f.accepted = append(f.accepted, id)
	return &models.Flashcard{ID: uuid.New(), Source: models.SourceAI}, nil
}

func candidates(n int) []models.AICandidate {
	out := make([]models.AICandidate, n)
	for i := range out {
		out[i] = models.AICandidate{ID: uuid.New(), Front: "Q", Back: "A"}
	}
	return out
}

func mustState(t *testing.T, s *Session, id uuid.UUID, want State) {
	t.Helper()
	got, err := s.State(id)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestToggle(t *testing.T) {
	cs := candidates(1)
	id := cs[0].ID

	t.Run("DoubleToggleReturnsToIdle", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		s.ToggleAccept(id)
		s.ToggleAccept(id)
		mustState(t, s, id, Idle)

		s.ToggleReject(id)
		s.ToggleReject(id)
		mustState(t, s, id, Idle)
	})

	t.Run("SwitchesBetweenMarks", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		s.ToggleAccept(id)
		s.ToggleReject(id)
		mustState(t, s, id, MarkedForRejection)
	})

	t.Run("CannotMarkWhileEditing", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		if err := s.StartEdit(id); err != nil {
			t.Fatalf("start edit: %v", err)
		}
		if _, err := s.ToggleAccept(id); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})

	t.Run("UnknownCandidate", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		if _, err := s.ToggleAccept(uuid.New()); !errors.Is(err, ErrUnknownCandidate) {
			t.Errorf("Expected ErrUnknownCandidate, got %v", err)
		}
	})
}

func TestEdit(t *testing.T) {
	cs := candidates(1)
	id := cs[0].ID

	t.Run("SaveReturnsToIdleWithNewText", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		_ = s.StartEdit(id)
		if err := s.SaveEdit(context.Background(), id, client.CardInput{Front: "Edited", Back: "A"}); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		mustState(t, s, id, Idle)
		if got := s.Items()[0].Candidate.Front; got != "Edited" {
			t.Errorf("Expected edited front, got %q", got)
		}
	})

	t.Run("CancelReturnsToIdle", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		_ = s.StartEdit(id)
		_ = s.CancelEdit(id)
		mustState(t, s, id, Idle)
	})

	t.Run("FailureLandsInError", func(t *testing.T) {
		s := NewSession(&fakeBackend{updateErr: errors.New("front must be at most 200 characters")}, cs)
		_ = s.StartEdit(id)
		if err := s.SaveEdit(context.Background(), id, client.CardInput{Front: "x", Back: "y"}); err == nil {
			t.Fatal("Expected error")
		}
		mustState(t, s, id, Error)
		if got := s.Items()[0].Candidate.Front; got != "Q" {
			t.Errorf("Expected original front, got %q", got)
		}
	})

	t.Run("SaveWithoutEditFails", func(t *testing.T) {
		s := NewSession(&fakeBackend{}, cs)
		if err := s.SaveEdit(context.Background(), id, client.CardInput{}); !errors.Is(err, ErrInvalidTransition) {
			t.Errorf("Expected ErrInvalidTransition, got %v", err)
		}
	})
}

func TestSave(t *testing.T) {
	t.Run("AllMarkedAcceptsAndRejects", func(t *testing.T) {
		cs := candidates(3)
		backend := &fakeBackend{}
		s := NewSession(backend, cs)
		s.ToggleAccept(cs[0].ID)
		s.ToggleReject(cs[1].ID)

		summary, err := s.SaveAllMarked(context.Background())
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if summary != (Summary{Saved: 1, Rejected: 1}) {
			t.Errorf("Unexpected summary %+v", summary)
		}
		mustState(t, s, cs[0].ID, Saved)
		mustState(t, s, cs[1].ID, Rejected)
		mustState(t, s, cs[2].ID, Idle)
		if s.Items()[0].Flashcard == nil {
			t.Error("Expected accepted item to carry its flashcard")
		}
	})

	t.Run("AcceptedOnlyLeavesRejections", func(t *testing.T) {
		cs := candidates(2)
		backend := &fakeBackend{}
		s := NewSession(backend, cs)
		s.ToggleAccept(cs[0].ID)
		s.ToggleReject(cs[1].ID)

		if _, err := s.SaveAccepted(context.Background()); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		mustState(t, s, cs[0].ID, Saved)
		mustState(t, s, cs[1].ID, MarkedForRejection)
		if len(backend.deleted) != 0 {
			t.Errorf("Expected no deletes, got %d", len(backend.deleted))
		}
	})

	t.Run("FailureDoesNotAbortLoop", func(t *testing.T) {
		cs := candidates(3)
		backend := &fakeBackend{failAccept: map[uuid.UUID]error{cs[0].ID: errors.New("not found")}}
		s := NewSession(backend, cs)
		for _, c := range cs {
			s.ToggleAccept(c.ID)
		}

		summary, err := s.SaveAllMarked(context.Background())
		if !errors.Is(err, ErrPartialSave) {
			t.Fatalf("Expected ErrPartialSave, got %v", err)
		}
		if summary != (Summary{Saved: 2, Failed: 1}) {
			t.Errorf("Unexpected summary %+v", summary)
		}
		mustState(t, s, cs[0].ID, Error)
		if s.Items()[0].Err == nil {
			t.Error("Expected failed item to keep its error")
		}

		// An errored item can be marked again and retried.
		s.ToggleAccept(cs[0].ID)
		delete(backend.failAccept, cs[0].ID)
		if _, err := s.SaveAllMarked(context.Background()); err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		mustState(t, s, cs[0].ID, Saved)
	})
}
