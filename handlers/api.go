package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"polls-backend/middleware"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// APIHandler is the JSON mirror of PollHandler.
type APIHandler struct {
	svc service.PollService
}

// NewAPIHandler serves the JSON mirror of the poll pages from svc.
func NewAPIHandler(svc service.PollService) *APIHandler {
	return &APIHandler{svc: svc}
}

// VoteRequest is the body of POST /api/questions/:id/vote.
type VoteRequest struct {
	Choice *uint `json:"choice"`
}

// ListQuestions handles GET /api/questions.
func (h *APIHandler) ListQuestions(c *gin.Context) {
	questions, err := h.svc.Index(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"latest_question_list": questions})
}

// GetQuestion handles GET /api/questions/:id.
func (h *APIHandler) GetQuestion(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.notFound(c)
		return
	}
	q, err := h.svc.Detail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

// GetResults handles GET /api/questions/:id/results.
func (h *APIHandler) GetResults(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.notFound(c)
		return
	}
	r, err := h.svc.Results(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

// Vote handles POST /api/questions/:id/vote and answers with fresh results.
func (h *APIHandler) Vote(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.notFound(c)
		return
	}

	var req VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		req.Choice = nil
	}
	if req.Choice != nil && *req.Choice == 0 {
		req.Choice = nil
	}

	if _, err := h.svc.Vote(c.Request.Context(), id, req.Choice); err != nil {
		h.fail(c, err)
		return
	}

	r, err := h.svc.Results(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, r)
}

func (h *APIHandler) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": service.ErrQuestionNotFound.Error()})
}

func (h *APIHandler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrQuestionNotFound):
		h.notFound(c)
	case errors.Is(err, service.ErrInvalidChoice):
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ChoiceRequiredMessage})
	default:
		slog.Error("api request failed",
			"request_id", middleware.RequestID(c),
			"path", c.Request.URL.Path,
			"error", err)
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}
