package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"slices"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"flashgen/internal/middleware"
	"flashgen/internal/models"
	"flashgen/internal/services"
)

var errNoCandidates = errors.New("the model returned no usable flashcards")

type createGenerationRequestBody struct {
	SourceText string `json:"source_text"`
}

func (s *Server) handleCreateGenerationRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var body createGenerationRequestBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	text, err := services.ValidateSourceText(body.SourceText)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !s.allowSubmission(c) {
		return
	}

	req, err := s.generation.CreateRequest(c.Request.Context(), userID, text, nil)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.startGeneration(req)

	c.JSON(http.StatusCreated, req)
}

func (s *Server) handleCreateGenerationRequestFromPDF(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if s.documents == nil {
		writeError(c, http.StatusServiceUnavailable, "document uploads are not enabled")
		return
	}

	filename, data, ok := s.readUpload(c, ".pdf")
	if !ok {
		return
	}
	doc, err := s.documents.ExtractPDF(data)
	if err != nil {
		s.respondError(c, err)
		return
	}
	if !s.allowSubmission(c) {
		return
	}
	s.submitDocument(c, userID, filename, doc, data)
}

func (s *Server) handleCreateGenerationRequestFromImage(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	if s.documents == nil || !s.documents.OCREnabled() {
		writeError(c, http.StatusServiceUnavailable, "image uploads are not enabled")
		return
	}

	filename, data, ok := s.readUpload(c, ".png", ".jpg", ".jpeg", ".webp")
	if !ok {
		return
	}
	// Transcription calls the vision model, so only the format check runs
	// before the budget is charged.
	if _, err := services.ImageContentType(data); err != nil {
		s.respondError(c, err)
		return
	}
	if !s.allowSubmission(c) {
		return
	}
	doc, err := s.documents.ExtractImage(c.Request.Context(), data)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.submitDocument(c, userID, filename, doc, data)
}

// readUpload reads the multipart "file" field, enforcing the upload size
// limit and the allowed extensions.
func (s *Server) readUpload(c *gin.Context, extensions ...string) (string, []byte, bool) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxUpload)
	header, err := c.FormFile("file")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(c, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d bytes", s.maxUpload))
			return "", nil, false
		}
		writeError(c, http.StatusBadRequest, "multipart field 'file' is required")
		return "", nil, false
	}

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !slices.Contains(extensions, ext) {
		writeError(c, http.StatusBadRequest, fmt.Sprintf("only %s files are supported", strings.Join(extensions, ", ")))
		return "", nil, false
	}

	src, err := header.Open()
	if err != nil {
		writeError(c, http.StatusBadRequest, "could not read uploaded file")
		return "", nil, false
	}
	defer src.Close()

	data, err := io.ReadAll(src)
	if err != nil {
		writeError(c, http.StatusBadRequest, "could not read uploaded file")
		return "", nil, false
	}
	return header.Filename, data, true
}

// submitDocument archives the upload and queues the request. Extraction has
// already validated the text.
func (s *Server) submitDocument(c *gin.Context, userID uuid.UUID, filename string, doc *services.SourceDocument, data []byte) {
	ctx := c.Request.Context()
	if err := s.documents.Archive(ctx, userID, filename, doc, data); err != nil {
		s.respondError(c, err)
		return
	}

	req, err := s.generation.CreateRequest(ctx, userID, doc.Text, doc.Path)
	if err != nil {
		s.respondError(c, err)
		return
	}
	s.startGeneration(req)

	c.JSON(http.StatusCreated, req)
}

// allowSubmission charges one generation against the caller's budget. It runs
// after input validation so rejected submissions cost nothing.
func (s *Server) allowSubmission(c *gin.Context) bool {
	if s.limiter == nil {
		return true
	}
	return middleware.Throttle(c, s.limiter, s.logger)
}

// startGeneration hands a copy of the request to the job manager. The caller
// keeps req for its response while the job updates its own copy.
func (s *Server) startGeneration(req *models.GenerationRequest) {
	job := *req
	s.jobs.Submit(req.ID.String(), func(ctx context.Context, progress services.ProgressCallback) (int, error) {
		candidates, err := s.generation.Process(ctx, &job, progress)
		if err != nil {
			return 0, err
		}
		if len(candidates) == 0 {
			return 0, errNoCandidates
		}
		return len(candidates), nil
	})
	s.logger.Info("generation request queued",
		zap.String("request_id", req.ID.String()),
		zap.String("user_id", req.UserID.String()),
		zap.Int("source_length", len([]rune(req.SourceText))))
}

func (s *Server) handleListGenerationRequests(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requests, err := s.generation.ListRequests(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"generationRequests": requests})
}

func (s *Server) handleGetGenerationRequest(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	req, err := s.generation.GetRequest(c.Request.Context(), userID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}

	var job *GenerationJob
	if snapshot, found := s.jobs.GetJob(id.String()); found {
		job = snapshot
	}
	c.JSON(http.StatusOK, gin.H{"generationRequest": req, "job": job})
}
