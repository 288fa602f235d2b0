package services

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"flashgen/internal/testutil"
)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeRecognizer struct {
	text string
	err  error
}

func (f *fakeRecognizer) Recognize(context.Context, string, []byte) (string, error) {
	return f.text, f.err
}

type recordingStore struct {
	paths        []string
	contentTypes []string
	err          error
}

func (r *recordingStore) Upload(_ context.Context, objectPath, contentType string, _ []byte) error {
	if r.err != nil {
		return r.err
	}
	r.paths = append(r.paths, objectPath)
	r.contentTypes = append(r.contentTypes, contentType)
	return nil
}

func TestPrepareImage(t *testing.T) {
	ctx := context.Background()
	userID := uuid.New()

	t.Run("TranscribesAndArchives", func(t *testing.T) {
		store := &recordingStore{}
		svc := NewDocumentService(NewPDFService(), &fakeRecognizer{text: strings.Repeat("x", 1200)}, store, nil)

		doc, err := svc.PrepareImage(ctx, userID, "board.png", pngHeader)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if len([]rune(doc.Text)) != 1200 {
			t.Errorf("Expected 1200 characters, got %d", len([]rune(doc.Text)))
		}
		if doc.Path == nil || !strings.HasPrefix(*doc.Path, userID.String()+"/") || !strings.HasSuffix(*doc.Path, ".png") {
			t.Errorf("Unexpected archive path %v", doc.Path)
		}
		if len(store.contentTypes) != 1 || store.contentTypes[0] != "image/png" {
			t.Errorf("Expected one image/png upload, got %v", store.contentTypes)
		}
	})

	t.Run("ShortTranscriptIsRejected", func(t *testing.T) {
		store := &recordingStore{}
		svc := NewDocumentService(NewPDFService(), &fakeRecognizer{text: "too short"}, store, nil)

		_, err := svc.PrepareImage(ctx, userID, "board.png", pngHeader)
		if HTTPStatus(err) != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %d (%v)", HTTPStatus(err), err)
		}
		if len(store.paths) != 0 {
			t.Error("Expected nothing to be archived")
		}
	})

	t.Run("NonImageIsRejected", func(t *testing.T) {
		svc := NewDocumentService(NewPDFService(), &fakeRecognizer{}, nil, nil)
		if _, err := svc.PrepareImage(ctx, userID, "notes.png", []byte("plain text")); HTTPStatus(err) != http.StatusBadRequest {
			t.Errorf("Expected 400, got %v", err)
		}
	})

	t.Run("RecognizerFailureIsServerError", func(t *testing.T) {
		svc := NewDocumentService(NewPDFService(), &fakeRecognizer{err: &NetworkError{StatusCode: 502, Err: errors.New("bad gateway")}}, nil, nil)
		if _, err := svc.PrepareImage(ctx, userID, "board.png", pngHeader); HTTPStatus(err) != http.StatusInternalServerError {
			t.Errorf("Expected 500, got %v", err)
		}
	})

	t.Run("WithoutRecognizer", func(t *testing.T) {
		svc := NewDocumentService(NewPDFService(), nil, nil, nil)
		if svc.OCREnabled() {
			t.Error("Expected OCR to be disabled")
		}
		if _, err := svc.PrepareImage(ctx, userID, "board.png", pngHeader); !errors.Is(err, ErrAIUnavailable) {
			t.Errorf("Expected ErrAIUnavailable, got %v", err)
		}
	})
}

func TestPreparePDF(t *testing.T) {
	t.Run("ArchivesExtractedText", func(t *testing.T) {
		store := &recordingStore{}
		svc := NewDocumentService(NewPDFService(), nil, store, nil)
		userID := uuid.New()
		text := strings.TrimSpace(strings.Repeat("Mitochondria produce ATP. ", 44))

		doc, err := svc.Prepare(context.Background(), userID, "biology.pdf", testutil.MinimalPDF(text))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if doc.Text != text {
			t.Errorf("Expected extracted text to match, got %q", doc.Text)
		}
		if doc.Pages != 1 {
			t.Errorf("Expected 1 page, got %d", doc.Pages)
		}
		if doc.Path == nil || !strings.HasPrefix(*doc.Path, userID.String()+"/") || !strings.HasSuffix(*doc.Path, ".pdf") {
			t.Errorf("Unexpected archive path %v", doc.Path)
		}
		if len(store.contentTypes) != 1 || store.contentTypes[0] != "application/pdf" {
			t.Errorf("Expected one application/pdf upload, got %v", store.contentTypes)
		}
	})

	t.Run("ShortPDFIsNotArchived", func(t *testing.T) {
		store := &recordingStore{}
		svc := NewDocumentService(NewPDFService(), nil, store, nil)

		_, err := svc.Prepare(context.Background(), uuid.New(), "short.pdf", testutil.MinimalPDF("Only a heading"))
		if HTTPStatus(err) != http.StatusBadRequest {
			t.Fatalf("Expected 400, got %v", err)
		}
		if len(store.paths) != 0 {
			t.Error("Expected nothing to be archived")
		}
	})

	t.Run("ExtractDoesNotArchive", func(t *testing.T) {
		store := &recordingStore{}
		svc := NewDocumentService(NewPDFService(), nil, store, nil)

		doc, err := svc.ExtractPDF(testutil.MinimalPDF(strings.Repeat("a", 1000)))
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if doc.Path != nil || len(store.paths) != 0 {
			t.Errorf("Expected no upload before Archive, got %v", store.paths)
		}
		if err := svc.Archive(context.Background(), uuid.New(), "a.pdf", doc, nil); err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if doc.Path == nil || len(store.paths) != 1 {
			t.Errorf("Expected one upload after Archive, got %v", store.paths)
		}
	})

	t.Run("RejectsNonPDF", func(t *testing.T) {
		svc := NewDocumentService(NewPDFService(), nil, nil, nil)
		_, err := svc.Prepare(context.Background(), uuid.New(), "notes.pdf", []byte("not a pdf"))
		if HTTPStatus(err) != http.StatusBadRequest {
			t.Errorf("Expected 400, got %v", err)
		}
		if PublicMessage(err) != "file is not a PDF document" {
			t.Errorf("Unexpected message %q", PublicMessage(err))
		}
	})

	t.Run("RejectsTruncatedPDF", func(t *testing.T) {
		svc := NewDocumentService(NewPDFService(), nil, nil, nil)
		_, err := svc.Prepare(context.Background(), uuid.New(), "notes.pdf", []byte("%PDF-1.4\ngarbage"))
		if HTTPStatus(err) != http.StatusBadRequest {
			t.Errorf("Expected 400, got %v", err)
		}
	})
}

func TestVisionOCR(t *testing.T) {
	newOCR := func(rt http.RoundTripper) *VisionOCR {
		v := NewVisionOCR(LLMConfig{
			APIKey:     "test-key",
			BaseURL:    "http://llm.test/v1",
			Model:      "vision-model",
			HTTPClient: &http.Client{Transport: rt},
		}, nil)
		v.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
		return v
	}

	t.Run("SendsImageAsDataURI", func(t *testing.T) {
		rt := &scriptedTransport{script: []scriptedResponse{{status: 200, body: completionBody(t, "  Photosynthesis converts light.  ")}}}
		text, err := newOCR(rt).Recognize(context.Background(), "image/png", pngHeader)
		if err != nil {
			t.Fatalf("Expected no error, got %v", err)
		}
		if text != "Photosynthesis converts light." {
			t.Errorf("Unexpected transcript %q", text)
		}
		if !bytes.Contains(rt.lastBody, []byte("data:image/png;base64,")) {
			t.Errorf("Expected a data URI in the request, got %s", rt.lastBody)
		}
	})

	t.Run("RetriesServerErrors", func(t *testing.T) {
		rt := &scriptedTransport{script: []scriptedResponse{
			{status: 503, body: `{"error":{"message":"overloaded"}}`},
			{status: 200, body: completionBody(t, "text")},
		}}
		if _, err := newOCR(rt).Recognize(context.Background(), "image/png", pngHeader); err != nil {
			t.Fatalf("Expected retry to succeed, got %v", err)
		}
		if rt.calls != 2 {
			t.Errorf("Expected 2 calls, got %d", rt.calls)
		}
	})

	t.Run("RejectsUnsupportedType", func(t *testing.T) {
		rt := &scriptedTransport{script: []scriptedResponse{{status: 200, body: completionBody(t, "text")}}}
		if _, err := newOCR(rt).Recognize(context.Background(), "image/gif", pngHeader); HTTPStatus(err) != http.StatusBadRequest {
			t.Errorf("Expected 400, got %v", err)
		}
		if rt.calls != 0 {
			t.Errorf("Expected no calls, got %d", rt.calls)
		}
	})

	t.Run("UnconfiguredIsNil", func(t *testing.T) {
		if NewVisionOCR(LLMConfig{}, nil) != nil {
			t.Error("Expected nil recognizer without an API key")
		}
	})
}
