package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stemsi/exstem-assessment/internal/validator"
)

// SessionService is the lifecycle surface the candidate routes use.
type SessionService interface {
	StartExam(ctx context.Context, candidateID string, filter model.SelectionFilter) (*service.StartedExam, error)
	GetSession(ctx context.Context, candidateID string, sessionID uuid.UUID) (*service.SessionView, error)
	Heartbeat(ctx context.Context, candidateID string, sessionID uuid.UUID) (*service.SessionState, error)
	CheckInProgress(ctx context.Context, candidateID string) (*service.SessionState, error)
	Submit(ctx context.Context, candidateID string, sessionID uuid.UUID) (*service.SubmitResult, error)
	Terminate(ctx context.Context, candidateID string, sessionID uuid.UUID) (*service.SessionState, error)
	GetResult(ctx context.Context, candidateID string, sessionID uuid.UUID) (*service.ResultView, error)
	GetReview(ctx context.Context, candidateID string, sessionID uuid.UUID) (*service.ReviewView, error)
}

// AnswerRecorder records candidate answers.
type AnswerRecorder interface {
	Record(ctx context.Context, candidateID string, sessionID uuid.UUID, req model.SaveAnswerRequest) (*service.AnswerOutcome, error)
}

// CheatRecorder records anti-cheat events.
type CheatRecorder interface {
	RecordEvent(ctx context.Context, candidateID string, sessionID uuid.UUID, req model.CheatEventRequest) (*model.CheatOutcome, error)
}

// ExamHandler serves the candidate exam routes.
type ExamHandler struct {
	sessions SessionService
	answers  AnswerRecorder
	cheats   CheatRecorder
	cfg      config.ExamConfig
}

// NewExamHandler creates a new ExamHandler.
func NewExamHandler(sessions SessionService, answers AnswerRecorder, cheats CheatRecorder, cfg config.ExamConfig) *ExamHandler {
	return &ExamHandler{
		sessions: sessions,
		answers:  answers,
		cheats:   cheats,
		cfg:      cfg,
	}
}

// ClientConfig is what the exam page needs to drive its timers and checks.
type ClientConfig struct {
	IdleTimeoutSeconds       int  `json:"idle_timeout_seconds"`
	HeartbeatIntervalSeconds int  `json:"heartbeat_interval_seconds"`
	WarningThreshold         int  `json:"warning_threshold"`
	EssayMaxChars            int  `json:"essay_max_chars"`
	DefaultDurationMinutes   int  `json:"default_duration_minutes"`
	RevealCorrectness        bool `json:"reveal_correctness"`
}

// GetConfig godoc
// GET /api/v1/exam/config
// Returns the client-side timing and anti-cheat settings.
func (h *ExamHandler) GetConfig(c *gin.Context) {
	response.Success(c, http.StatusOK, ClientConfig{
		IdleTimeoutSeconds:       int(h.cfg.IdleTimeout.Seconds()),
		HeartbeatIntervalSeconds: int(h.cfg.HeartbeatInterval.Seconds()),
		WarningThreshold:         h.cfg.WarningThreshold,
		EssayMaxChars:            h.cfg.EssayMaxChars,
		DefaultDurationMinutes:   h.cfg.DurationMinutes,
		RevealCorrectness:        h.cfg.RevealCorrectness,
	})
}

// StartExam godoc
// POST /api/v1/exam/sessions
// Selects a paper and opens a new session, superseding any active one.
func (h *ExamHandler) StartExam(c *gin.Context) {
	candidateID, ok := h.candidate(c)
	if !ok {
		return
	}

	var req model.StartExamRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	started, err := h.sessions.StartExam(c.Request.Context(), candidateID, req.SelectionFilter)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusCreated, started)
}

// CheckInProgress godoc
// GET /api/v1/exam/sessions/in-progress
// Returns the candidate's running session, or null.
func (h *ExamHandler) CheckInProgress(c *gin.Context) {
	candidateID, ok := h.candidate(c)
	if !ok {
		return
	}

	state, err := h.sessions.CheckInProgress(c.Request.Context(), candidateID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"in_progress": state != nil, "session": state})
}

// GetSession godoc
// GET /api/v1/exam/sessions/:id
// Returns the session with its paper and saved answers, for resuming.
func (h *ExamHandler) GetSession(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	view, err := h.sessions.GetSession(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// Heartbeat godoc
// POST /api/v1/exam/sessions/:id/heartbeat
// Returns the server-computed remaining time and any directive.
func (h *ExamHandler) Heartbeat(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	state, err := h.sessions.Heartbeat(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// SaveAnswer godoc
// POST /api/v1/exam/sessions/:id/answers
// Records one answer, replacing an earlier one for the same question.
func (h *ExamHandler) SaveAnswer(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.SaveAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.answers.Record(c.Request.Context(), candidateID, sessionID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, h.redact(outcome))
}

// RecordEvent godoc
// POST /api/v1/exam/sessions/:id/events
// Logs an anti-cheat event and returns the warning state.
func (h *ExamHandler) RecordEvent(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	var req model.CheatEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	outcome, err := h.cheats.RecordEvent(c.Request.Context(), candidateID, sessionID, req)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, outcome)
}

// Submit godoc
// POST /api/v1/exam/sessions/:id/submit
// Completes the session and returns the result when it is ready.
func (h *ExamHandler) Submit(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	res, err := h.sessions.Submit(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Terminate godoc
// POST /api/v1/exam/sessions/:id/terminate
// Ends the session after a violation the client detected.
func (h *ExamHandler) Terminate(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	state, err := h.sessions.Terminate(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, state)
}

// GetResult godoc
// GET /api/v1/exam/sessions/:id/result
// Returns the scored result of a completed session.
func (h *ExamHandler) GetResult(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	view, err := h.sessions.GetResult(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, view)
}

// GetReview godoc
// GET /api/v1/exam/sessions/:id/review
// Returns the paper with answer keys after completion.
func (h *ExamHandler) GetReview(c *gin.Context) {
	candidateID, sessionID, ok := h.sessionParams(c)
	if !ok {
		return
	}

	review, err := h.sessions.GetReview(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		h.fail(c, err)
		return
	}

	response.Success(c, http.StatusOK, review)
}

// ─── Helpers ────────────────────────────────────────────────────────

func (h *ExamHandler) candidate(c *gin.Context) (string, bool) {
	id := middleware.CandidateID(c)
	if id == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return "", false
	}
	return id, true
}

func (h *ExamHandler) sessionParams(c *gin.Context) (string, uuid.UUID, bool) {
	candidateID, ok := h.candidate(c)
	if !ok {
		return "", uuid.Nil, false
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return "", uuid.Nil, false
	}
	return candidateID, sessionID, true
}

func (h *ExamHandler) fail(c *gin.Context, err error) {
	writeServiceError(c, err, h.cfg.EssayMaxChars)
}

// redact hides per-answer correctness unless the deployment reveals it.
func (h *ExamHandler) redact(o *service.AnswerOutcome) *service.AnswerOutcome {
	if h.cfg.RevealCorrectness || o == nil {
		return o
	}
	out := *o
	out.IsCorrect = nil
	return &out
}
