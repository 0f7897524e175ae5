package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"polls-backend/middleware"
	"polls-backend/service"

	"github.com/gin-gonic/gin"
)

// PollHandler serves the HTML pages under the polls mount point.
type PollHandler struct {
	svc   service.PollService
	mount string
}

// NewPollHandler builds links relative to mount ("" or "/polls").
func NewPollHandler(svc service.PollService, mount string) *PollHandler {
	return &PollHandler{svc: svc, mount: mount}
}

// Index handles GET {mount}/.
func (h *PollHandler) Index(c *gin.Context) {
	questions, err := h.svc.Index(c.Request.Context())
	if err != nil {
		h.serverError(c, err)
		return
	}
	h.render(c, http.StatusOK, "index.html", gin.H{
		"latest_question_list": questions,
	})
}

// Detail handles GET {mount}/:id/.
func (h *PollHandler) Detail(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.NotFound(c)
		return
	}

	q, err := h.svc.Detail(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "detail.html", gin.H{
		"title":    q.QuestionText,
		"question": q,
	})
}

// Results handles GET {mount}/:id/results/.
func (h *PollHandler) Results(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.NotFound(c)
		return
	}

	r, err := h.svc.Results(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	h.render(c, http.StatusOK, "results.html", gin.H{
		"title":   r.QuestionText,
		"results": r,
	})
}

// Vote handles POST {mount}/:id/vote/ with form field "choice". A missing or
// foreign choice re-renders the detail page with an error and changes nothing.
func (h *PollHandler) Vote(c *gin.Context) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.NotFound(c)
		return
	}

	var choice *uint
	if v, ok := parseID(c.PostForm("choice")); ok {
		choice = &v
	}

	q, err := h.svc.Vote(c.Request.Context(), id, choice)
	switch {
	case errors.Is(err, service.ErrInvalidChoice):
		h.render(c, http.StatusOK, "detail.html", gin.H{
			"title":         q.QuestionText,
			"question":      q,
			"error_message": service.ChoiceRequiredMessage,
		})
	case err != nil:
		h.fail(c, err)
	default:
		c.Redirect(http.StatusFound, ResultsPath(h.mount, q.ID))
	}
}

// NotFound renders the 404 page; also used as the engine's NoRoute handler.
func (h *PollHandler) NotFound(c *gin.Context) {
	h.render(c, http.StatusNotFound, "404.html", gin.H{"title": "Not Found"})
}

func (h *PollHandler) fail(c *gin.Context, err error) {
	if errors.Is(err, service.ErrQuestionNotFound) {
		h.NotFound(c)
		return
	}
	h.serverError(c, err)
}

func (h *PollHandler) serverError(c *gin.Context, err error) {
	slog.Error("request failed",
		"request_id", middleware.RequestID(c),
		"path", c.Request.URL.Path,
		"error", err)
	_ = c.Error(err)
	h.render(c, http.StatusInternalServerError, "500.html", gin.H{"title": "Server Error"})
}

func (h *PollHandler) render(c *gin.Context, code int, name string, data gin.H) {
	data["mount"] = h.mount
	c.HTML(code, name, data)
}

// ResultsPath is the results page URL of a question.
func ResultsPath(mount string, id uint) string {
	return mount + "/" + strconv.FormatUint(uint64(id), 10) + "/results/"
}

// parseID accepts positive decimal ids only.
func parseID(s string) (uint, bool) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}
