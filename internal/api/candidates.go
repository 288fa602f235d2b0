package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"flashgen/internal/services"
)

func (s *Server) handleListCandidates(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	requestID, err := parseUUIDv4(c.Query("generationRequestId"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "generationRequestId must be a UUID v4")
		return
	}

	candidates, err := s.candidates.ListByRequest(c.Request.Context(), userID, requestID)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"aiCandidates": candidates})
}

func (s *Server) handleUpdateCandidate(c *gin.Context) {
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

	candidate, err := s.candidates.Update(c.Request.Context(), userID, id, in)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, candidate)
}

func (s *Server) handleDeleteCandidate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	if err := s.candidates.Delete(c.Request.Context(), userID, id); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleAcceptCandidate(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}

	card, err := s.candidates.Accept(c.Request.Context(), userID, id)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"flashcard": card})
}
