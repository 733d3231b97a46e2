package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// GradingService is the grader-facing surface of the engine.
type GradingService interface {
	ListPending(ctx context.Context) ([]model.PendingSession, error)
	SubmitScore(ctx context.Context, graderID string, req model.GradeRequest) (*service.GradeOutcome, error)
	ListResults(ctx context.Context, page, perPage int) ([]model.ResultSummary, int64, error)
	ListCheatEvents(ctx context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error)
	Rescore(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}

// AdminHandler serves grading, results and forensic routes.
type AdminHandler struct {
	grading GradingService
}

// NewAdminHandler creates a new AdminHandler.
func NewAdminHandler(grading GradingService) *AdminHandler {
	return &AdminHandler{grading: grading}
}

// ListPendingEssays godoc
// GET /api/v1/admin/grading/pending
// Lists ungraded essay answers of finished sessions, grouped by session.
func (h *AdminHandler) ListPendingEssays(c *gin.Context) {
	pending, err := h.grading.ListPending(c.Request.Context())
	if err != nil {
		writeServiceError(c, err, 0)
		return
	}
	if pending == nil {
		pending = []model.PendingSession{}
	}
	response.Success(c, http.StatusOK, gin.H{"sessions": pending})
}

// SubmitScore godoc
// POST /api/v1/admin/grading/scores
// Stores a manual essay score and re-scores the session.
func (h *AdminHandler) SubmitScore(c *gin.Context) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}

	var req model.GradeRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.grading.SubmitScore(c.Request.Context(), claims.Subject, req)
	if err != nil {
		writeServiceError(c, err, 0)
		return
	}

	response.Success(c, http.StatusOK, outcome)
}

// ListResults godoc
// GET /api/v1/admin/results?page=&per_page=
// Returns scored sessions, newest first.
func (h *AdminHandler) ListResults(c *gin.Context) {
	page, perPage := pageParams(c)

	results, total, err := h.grading.ListResults(c.Request.Context(), page, perPage)
	if err != nil {
		writeServiceError(c, err, 0)
		return
	}
	if results == nil {
		results = []model.ResultSummary{}
	}

	response.SuccessWithPagination(c, http.StatusOK, gin.H{"results": results}, response.NewPagination(page, perPage, total))
}

// ListCheatEvents godoc
// GET /api/v1/admin/sessions/:id/events
// Returns the anti-cheat log of a session.
func (h *AdminHandler) ListCheatEvents(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	events, err := h.grading.ListCheatEvents(c.Request.Context(), sessionID)
	if err != nil {
		writeServiceError(c, err, 0)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"events": events})
}

// Rescore godoc
// POST /api/v1/admin/sessions/:id/rescore
// Recomputes a finished session's result.
func (h *AdminHandler) Rescore(c *gin.Context) {
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	res, err := h.grading.Rescore(c.Request.Context(), sessionID)
	if err != nil {
		writeServiceError(c, err, 0)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"result": res})
}

// pageParams reads page/per_page with the same bounds the service applies.
func pageParams(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "20"))
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return page, perPage
}
