// Package client is a Go client for the flashgen HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"flashgen/internal/models"
)

const defaultTimeout = 30 * time.Second

// Error is a non-2xx answer from the API.
type Error struct {
	StatusCode int
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.StatusCode, e.Message)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}

// Client talks to the flashgen API on behalf of one authenticated user.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CardInput is the editable part of a candidate or flashcard.
type CardInput struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

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

// ListParams filters a flashcard listing. Zero values use server defaults.
type ListParams struct {
	Page   int
	Limit  int
	Source models.FlashcardSource
}

func (c *Client) CreateGenerationRequest(ctx context.Context, sourceText string) (*models.GenerationRequest, error) {
	var out models.GenerationRequest
	body := map[string]string{"source_text": sourceText}
	if err := c.doJSON(ctx, http.MethodPost, "/api/generation-requests", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadPDF submits a PDF document as the generation source.
func (c *Client) UploadPDF(ctx context.Context, filename string, data []byte) (*models.GenerationRequest, error) {
	return c.upload(ctx, "/api/generation-requests/pdf", filename, data)
}

// UploadImage submits a PNG, JPEG or WebP image whose text is transcribed on the server.
func (c *Client) UploadImage(ctx context.Context, filename string, data []byte) (*models.GenerationRequest, error) {
	return c.upload(ctx, "/api/generation-requests/image", filename, data)
}

func (c *Client) upload(ctx context.Context, path, filename string, data []byte) (*models.GenerationRequest, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filename))
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	var out models.GenerationRequest
	if err := c.do(ctx, http.MethodPost, path, w.FormDataContentType(), &buf, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetGenerationRequest(ctx context.Context, id uuid.UUID) (*models.GenerationRequest, error) {
	var out struct {
		GenerationRequest models.GenerationRequest `json:"generationRequest"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/generation-requests/"+id.String(), nil, &out); err != nil {
		return nil, err
	}
	return &out.GenerationRequest, nil
}

func (c *Client) ListCandidates(ctx context.Context, requestID uuid.UUID) ([]models.AICandidate, error) {
	var out struct {
		AICandidates []models.AICandidate `json:"aiCandidates"`
	}
	path := "/api/ai-candidates?generationRequestId=" + url.QueryEscape(requestID.String())
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return out.AICandidates, nil
}

func (c *Client) UpdateCandidate(ctx context.Context, id uuid.UUID, in CardInput) (*models.AICandidate, error) {
	var out models.AICandidate
	if err := c.doJSON(ctx, http.MethodPut, "/api/ai-candidates/"+id.String(), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteCandidate(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/ai-candidates/"+id.String(), nil, nil)
}

// AcceptCandidate promotes a candidate into the user's flashcards.
func (c *Client) AcceptCandidate(ctx context.Context, id uuid.UUID) (*models.Flashcard, error) {
	var out struct {
		Flashcard models.Flashcard `json:"flashcard"`
	}
	if err := c.doJSON(ctx, http.MethodPost, "/api/ai-candidates/"+id.String()+"/accept", nil, &out); err != nil {
		return nil, err
	}
	return &out.Flashcard, nil
}

func (c *Client) ListFlashcards(ctx context.Context, params ListParams) (*FlashcardPage, error) {
	q := url.Values{}
	if params.Page > 0 {
		q.Set("page", strconv.Itoa(params.Page))
	}
	if params.Limit > 0 {
		q.Set("limit", strconv.Itoa(params.Limit))
	}
	if params.Source != "" {
		q.Set("source", string(params.Source))
	}
	path := "/api/flashcards"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var out FlashcardPage
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CreateFlashcard(ctx context.Context, in CardInput) (*models.Flashcard, error) {
	var out models.Flashcard
	if err := c.doJSON(ctx, http.MethodPost, "/api/flashcards", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) UpdateFlashcard(ctx context.Context, id uuid.UUID, in CardInput) (*models.Flashcard, error) {
	var out models.Flashcard
	if err := c.doJSON(ctx, http.MethodPut, "/api/flashcards/"+id.String(), in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) DeleteFlashcard(ctx context.Context, id uuid.UUID) error {
	return c.doJSON(ctx, http.MethodDelete, "/api/flashcards/"+id.String(), nil, nil)
}

func (c *Client) doJSON(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	contentType := ""
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
		contentType = "application/json"
	}
	return c.do(ctx, method, path, contentType, body, out)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return handleHTTPError(resp.StatusCode, data)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// handleHTTPError converts an error response into *Error, falling back to a
// generic message when the body is not the API's {"error": "..."} shape.
func handleHTTPError(statusCode int, body []byte) *Error {
	var payload struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		return &Error{StatusCode: statusCode, Message: payload.Error}
	}

	message := http.StatusText(statusCode)
	if message == "" {
		message = "HTTP request failed"
	}
	return &Error{StatusCode: statusCode, Message: message}
}
