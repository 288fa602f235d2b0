package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"

	"github.com/google/uuid"
	storage "github.com/supabase-community/storage-go"
	"go.uber.org/zap"
)

// ObjectStore keeps uploaded source documents.
type ObjectStore interface {
	Upload(ctx context.Context, objectPath, contentType string, data []byte) error
}

// SupabaseStore uploads objects into one Supabase Storage bucket.
type SupabaseStore struct {
	client *storage.Client
	bucket string
}

func NewSupabaseStore(supabaseURL, serviceKey, bucket string) *SupabaseStore {
	if supabaseURL == "" || serviceKey == "" || bucket == "" {
		return nil
	}
	client := storage.NewClient(strings.TrimRight(supabaseURL, "/")+"/storage/v1", serviceKey, nil)
	return &SupabaseStore{client: client, bucket: bucket}
}

func (s *SupabaseStore) Upload(_ context.Context, objectPath, contentType string, data []byte) error {
	upsert := false
	_, err := s.client.UploadFile(s.bucket, objectPath, bytes.NewReader(data), storage.FileOptions{
		ContentType: &contentType,
		Upsert:      &upsert,
	})
	if err != nil {
		return fmt.Errorf("upload %s/%s: %w", s.bucket, objectPath, err)
	}
	return nil
}

// DocumentService extracts text from uploaded PDFs and images and archives
// the originals.
type DocumentService struct {
	pdf    *PDFService
	ocr    TextRecognizer
	store  ObjectStore
	logger *zap.Logger
}

// NewDocumentService wires the extractors. ocr and store may be nil.
func NewDocumentService(pdf *PDFService, ocr TextRecognizer, store ObjectStore, logger *zap.Logger) *DocumentService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentService{pdf: pdf, ocr: ocr, store: store, logger: logger}
}

// OCREnabled reports whether image uploads can be transcribed.
func (s *DocumentService) OCREnabled() bool {
	return s.ocr != nil
}

// SourceDocument is validated document text ready to be submitted for generation.
type SourceDocument struct {
	Text        string
	// Path is the object path of the archived original, nil until Archive stores it.
	Path        *string
	Pages       int
	ContentType string

	ext string
}

// Prepare extracts and validates the PDF text, then archives the original.
func (s *DocumentService) Prepare(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*SourceDocument, error) {
	doc, err := s.ExtractPDF(data)
	if err != nil {
		return nil, err
	}
	if err := s.Archive(ctx, userID, filename, doc, data); err != nil {
		return nil, err
	}
	return doc, nil
}

// PrepareImage transcribes an image with the vision model, then validates
// and archives it like a PDF.
func (s *DocumentService) PrepareImage(ctx context.Context, userID uuid.UUID, filename string, data []byte) (*SourceDocument, error) {
	doc, err := s.ExtractImage(ctx, data)
	if err != nil {
		return nil, err
	}
	if err := s.Archive(ctx, userID, filename, doc, data); err != nil {
		return nil, err
	}
	return doc, nil
}

// ExtractPDF returns the validated text of a PDF without archiving it.
func (s *DocumentService) ExtractPDF(data []byte) (*SourceDocument, error) {
	extracted, err := s.pdf.ExtractText(data)
	if err != nil {
		return nil, err
	}
	return newSourceDocument(extracted.Text, extracted.Pages, "application/pdf", ".pdf")
}

// ExtractImage returns the validated transcript of an image without archiving it.
func (s *DocumentService) ExtractImage(ctx context.Context, data []byte) (*SourceDocument, error) {
	if s.ocr == nil {
		return nil, ErrAIUnavailable
	}
	contentType, err := ImageContentType(data)
	if err != nil {
		return nil, err
	}

	text, err := s.ocr.Recognize(ctx, contentType, data)
	if err != nil {
		var vErr *FlashcardError
		if errors.As(err, &vErr) {
			return nil, err
		}
		return nil, &FlashcardError{Code: CodeGeneration, Message: "image transcription failed", Err: err}
	}
	return newSourceDocument(text, 1, contentType, imageExtension(contentType))
}

// ImageContentType sniffs data and returns its MIME type when it is an image
// the vision model accepts.
func ImageContentType(data []byte) (string, error) {
	contentType := DetectImageType(data)
	if !SupportedImageTypes[contentType] {
		return "", validationErr("file is not a PNG, JPEG or WebP image")
	}
	return contentType, nil
}

func newSourceDocument(extracted string, pages int, contentType, ext string) (*SourceDocument, error) {
	text, err := ValidateSourceText(extracted)
	if err != nil {
		return nil, err
	}
	return &SourceDocument{Text: text, Pages: pages, ContentType: contentType, ext: ext}, nil
}

// Archive stores the original upload under the user's prefix and records its
// path on doc. It is a no-op when no store is configured.
func (s *DocumentService) Archive(ctx context.Context, userID uuid.UUID, filename string, doc *SourceDocument, data []byte) error {
	if s.store == nil {
		return nil
	}

	objectPath := path.Join(userID.String(), uuid.NewString()+doc.ext)
	if err := s.store.Upload(ctx, objectPath, doc.ContentType, data); err != nil {
		return &FlashcardError{Code: CodeUnknown, Message: "archive source document", Err: err}
	}
	s.logger.Info("archived source document",
		zap.String("user_id", userID.String()),
		zap.String("filename", filename),
		zap.String("path", objectPath),
		zap.Int("pages", doc.Pages))
	doc.Path = &objectPath
	return nil
}

func imageExtension(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}
