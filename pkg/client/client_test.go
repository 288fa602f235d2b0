package client

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

func newTestClient(t *testing.T, mux *http.ServeMux) *Client {
	t.Helper()
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return New(srv.URL, "token-123")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClientRequests(t *testing.T) {
	t.Run("SendsBearerTokenAndDecodes", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/generation-requests", func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer token-123" {
				t.Errorf("Expected bearer token, got %q", got)
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["source_text"] != "some text" {
				t.Errorf("Expected source_text to be forwarded, got %q", body["source_text"])
			}
			writeJSON(w, http.StatusCreated, models.GenerationRequest{ID: uuid.New(), Status: models.GenerationProcessing})
		})
		c := newTestClient(t, mux)

		req, err := c.CreateGenerationRequest(context.Background(), "some text")
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if req.Status != models.GenerationProcessing {
			t.Errorf("Expected processing status, got %s", req.Status)
		}
	})

	t.Run("ErrorBodyBecomesAPIError", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("DELETE /api/flashcards/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusForbidden, map[string]string{"error": "access denied"})
		})
		c := newTestClient(t, mux)

		err := c.DeleteFlashcard(context.Background(), uuid.New())
		var apiErr *Error
		if !errors.As(err, &apiErr) {
			t.Fatalf("Expected *Error, got %v", err)
		}
		if apiErr.StatusCode != http.StatusForbidden || apiErr.Message != "access denied" {
			t.Errorf("Unexpected error %+v", apiErr)
		}
		if StatusCode(err) != http.StatusForbidden {
			t.Errorf("Expected StatusCode 403, got %d", StatusCode(err))
		}
	})

	t.Run("NonJSONErrorFallsBackToStatusText", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/flashcards", func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "upstream exploded", http.StatusBadGateway)
		})
		c := newTestClient(t, mux)

		_, err := c.ListFlashcards(context.Background(), ListParams{})
		var apiErr *Error
		if !errors.As(err, &apiErr) || apiErr.Message != "Bad Gateway" {
			t.Errorf("Expected Bad Gateway error, got %v", err)
		}
	})

	t.Run("ListFlashcardsEncodesQuery", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/flashcards", func(w http.ResponseWriter, r *http.Request) {
			q := r.URL.Query()
			if q.Get("page") != "2" || q.Get("limit") != "10" || q.Get("source") != "AI" {
				t.Errorf("Unexpected query %s", r.URL.RawQuery)
			}
			writeJSON(w, http.StatusOK, FlashcardPage{Pagination: Pagination{Page: 2, Limit: 10}})
		})
		c := newTestClient(t, mux)

		page, err := c.ListFlashcards(context.Background(), ListParams{Page: 2, Limit: 10, Source: models.SourceAI})
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if page.Pagination.Page != 2 {
			t.Errorf("Expected page 2, got %d", page.Pagination.Page)
		}
	})

	t.Run("AcceptUnwrapsFlashcard", func(t *testing.T) {
		id := uuid.New()
		mux := http.NewServeMux()
		mux.HandleFunc("POST /api/ai-candidates/{id}/accept", func(w http.ResponseWriter, r *http.Request) {
			if r.PathValue("id") != id.String() {
				t.Errorf("Expected candidate id in path, got %s", r.PathValue("id"))
			}
			writeJSON(w, http.StatusCreated, map[string]any{"flashcard": models.Flashcard{Front: "Q", Back: "A", Source: models.SourceAI}})
		})
		c := newTestClient(t, mux)

		card, err := c.AcceptCandidate(context.Background(), id)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if card.Front != "Q" || card.Source != models.SourceAI {
			t.Errorf("Unexpected flashcard %+v", card)
		}
	})
}

func TestPollCandidates(t *testing.T) {
	fast := PollOptions{Interval: 5 * time.Millisecond, Timeout: time.Second}

	t.Run("ReturnsOnceCandidatesAppear", func(t *testing.T) {
		var calls int32
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/ai-candidates", func(w http.ResponseWriter, r *http.Request) {
			if atomic.AddInt32(&calls, 1) < 3 {
				writeJSON(w, http.StatusOK, map[string]any{"aiCandidates": []models.AICandidate{}})
				return
			}
			writeJSON(w, http.StatusOK, map[string]any{"aiCandidates": []models.AICandidate{{Front: "Q", Back: "A"}}})
		})
		mux.HandleFunc("GET /api/generation-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"generationRequest": models.GenerationRequest{Status: models.GenerationProcessing}})
		})
		c := newTestClient(t, mux)

		candidates, err := c.PollCandidates(context.Background(), uuid.New(), fast)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len(candidates) != 1 {
			t.Errorf("Expected 1 candidate, got %d", len(candidates))
		}
		if got := atomic.LoadInt32(&calls); got != 3 {
			t.Errorf("Expected 3 list calls, got %d", got)
		}
	})

	t.Run("StopsOnFailedRequest", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/ai-candidates", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"aiCandidates": []models.AICandidate{}})
		})
		mux.HandleFunc("GET /api/generation-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"generationRequest": models.GenerationRequest{Status: models.GenerationFailed}})
		})
		c := newTestClient(t, mux)

		_, err := c.PollCandidates(context.Background(), uuid.New(), fast)
		if !errors.Is(err, ErrGenerationFailed) {
			t.Errorf("Expected ErrGenerationFailed, got %v", err)
		}
	})

	t.Run("StopsOnRequestError", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/ai-candidates", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		})
		c := newTestClient(t, mux)

		_, err := c.PollCandidates(context.Background(), uuid.New(), fast)
		if StatusCode(err) != http.StatusNotFound {
			t.Errorf("Expected 404 error, got %v", err)
		}
	})

	t.Run("TimesOut", func(t *testing.T) {
		mux := http.NewServeMux()
		mux.HandleFunc("GET /api/ai-candidates", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"aiCandidates": []models.AICandidate{}})
		})
		mux.HandleFunc("GET /api/generation-requests/{id}", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]any{"generationRequest": models.GenerationRequest{Status: models.GenerationProcessing}})
		})
		c := newTestClient(t, mux)

		_, err := c.PollCandidates(context.Background(), uuid.New(), PollOptions{Interval: 5 * time.Millisecond, Timeout: 40 * time.Millisecond})
		if !errors.Is(err, ErrPollTimeout) {
			t.Errorf("Expected ErrPollTimeout, got %v", err)
		}
	})
}

func TestUserMessage(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ShortText", &Error{StatusCode: 400, Message: "source text must be at least 1000 characters"}, "The text is too short. Paste at least 1000 characters."},
		{"Forbidden", &Error{StatusCode: 403, Message: "access denied"}, "You do not have access to this item."},
		{"BadID", &Error{StatusCode: 400, Message: "invalid id: must be a UUID v4"}, "That item reference is invalid."},
		{"ServerError", &Error{StatusCode: 500, Message: "boom"}, "The server had a problem. Please try again."},
		{"Timeout", ErrPollTimeout, "Generation is taking longer than expected. Check back in a moment."},
		{"Unknown", errors.New("weird"), genericMessage},
		{"Nil", nil, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := UserMessage(tt.err); got != tt.want {
				t.Errorf("Expected %q, got %q", tt.want, got)
			}
		})
	}
}
