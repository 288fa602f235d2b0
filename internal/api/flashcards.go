package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"flashgen/internal/models"
	"flashgen/internal/services"
)

func (s *Server) handleListFlashcards(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	page, err := queryInt(c, "page")
	if err != nil {
		writeError(c, http.StatusBadRequest, "page must be an integer")
		return
	}
	limit, err := queryInt(c, "limit")
	if err != nil {
		writeError(c, http.StatusBadRequest, "limit must be an integer")
		return
	}
	opts := services.ListOptions{
		Page:   page,
		Limit:  limit,
		Source: models.FlashcardSource(strings.ToUpper(strings.TrimSpace(c.Query("source")))),
	}
	if _, present := c.GetQuery("page"); present && page == 0 {
		opts.Page = -1
	}
	if _, present := c.GetQuery("limit"); present && limit == 0 {
		opts.Limit = -1
	}

	result, err := s.flashcards.List(c.Request.Context(), userID, opts)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func queryInt(c *gin.Context, key string) (int, error) {
	raw := strings.TrimSpace(c.Query(key))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}

func (s *Server) handleCreateFlashcard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var in services.FlashcardInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	card, err := s.flashcards.Create(c.Request.Context(), userID, in, models.SourceManual)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, card)
}

func (s *Server) handleGetFlashcard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	card, err := s.flashcards.Get(c.Request.Context(), userID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) handleUpdateFlashcard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var in services.FlashcardInput
	if err := c.ShouldBindJSON(&in); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	card, err := s.flashcards.Update(c.Request.Context(), userID, id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, card)
}

func (s *Server) handleDeleteFlashcard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.flashcards.Delete(c.Request.Context(), userID, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reviewBody struct {
	Rating string `json:"rating"`
}

func (s *Server) handleReviewFlashcard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	var body reviewBody
	if err := c.ShouldBindJSON(&body); err != nil {
		writeError(c, http.StatusBadRequest, "invalid JSON body")
		return
	}
	rating, err := services.ParseRating(body.Rating)
	if err != nil {
		s.respondError(c, err)
		return
	}

	card, log, err := s.flashcards.Review(c.Request.Context(), userID, id, rating)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": card, "review": log})
}

func (s *Server) handleNextCard(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	card, err := s.flashcards.NextDue(c.Request.Context(), userID)
	if errors.Is(err, services.ErrNoDueCards) {
		c.JSON(http.StatusOK, gin.H{"card": nil, "message": "No cards due. Come back later!"})
		return
	}
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"card": card})
}

func (s *Server) handleStudyStats(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	stats, err := s.flashcards.Stats(c.Request.Context(), userID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}
