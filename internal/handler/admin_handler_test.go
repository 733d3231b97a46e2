package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ─── Stubs ──────────────────────────────────────────────────────────

type stubGrading struct {
	graderID   string
	page       int
	perPage    int
	submitErr  error
	rescoreErr error
}

func (s *stubGrading) ListPending(context.Context) ([]model.PendingSession, error) {
	return nil, nil
}

func (s *stubGrading) SubmitScore(_ context.Context, graderID string, req model.GradeRequest) (*service.GradeOutcome, error) {
	s.graderID = graderID
	if s.submitErr != nil {
		return nil, s.submitErr
	}
	return &service.GradeOutcome{SessionID: req.SessionID, QuestionID: req.QuestionID, Score: *req.Score}, nil
}

func (s *stubGrading) ListResults(_ context.Context, page, perPage int) ([]model.ResultSummary, int64, error) {
	s.page, s.perPage = page, perPage
	return []model.ResultSummary{{}}, 45, nil
}

func (s *stubGrading) ListCheatEvents(_ context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error) {
	return []model.CheatEvent{{SessionID: sessionID, EventType: model.CheatEventTabSwitch}}, nil
}

func (s *stubGrading) Rescore(_ context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	if s.rescoreErr != nil {
		return nil, s.rescoreErr
	}
	return &model.ExamResult{SessionID: sessionID, TotalScore: 70}, nil
}

func adminRouter(h *AdminHandler) *gin.Engine {
	r := gin.New()
	g := r.Group("/admin", withClaims("grader-7", service.TokenRoleAdmin, service.ScopeAll))
	g.GET("/grading/pending", h.ListPendingEssays)
	g.POST("/grading/scores", h.SubmitScore)
	g.GET("/results", h.ListResults)
	g.GET("/sessions/:id/events", h.ListCheatEvents)
	g.POST("/sessions/:id/rescore", h.Rescore)
	return r
}

// ─── AdminHandler ───────────────────────────────────────────────────

func TestAdminHandler_ListPendingEssaysEmpty(t *testing.T) {
	r := adminRouter(NewAdminHandler(&stubGrading{}))

	w := do(r, http.MethodGet, "/admin/grading/pending", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sessions":[]}`, string(decode(t, w).Data))
}

func TestAdminHandler_SubmitScore(t *testing.T) {
	grading := &stubGrading{}
	r := adminRouter(NewAdminHandler(grading))

	w := do(r, http.MethodPost, "/admin/grading/scores", gin.H{
		"session_id":  uuid.NewString(),
		"question_id": uuid.NewString(),
		"score":       4,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "grader-7", grading.graderID)

	var out service.GradeOutcome
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &out))
	assert.Equal(t, 4, out.Score)
}

func TestAdminHandler_SubmitScoreErrors(t *testing.T) {
	t.Run("missing score", func(t *testing.T) {
		r := adminRouter(NewAdminHandler(&stubGrading{}))
		w := do(r, http.MethodPost, "/admin/grading/scores", gin.H{
			"session_id":  uuid.NewString(),
			"question_id": uuid.NewString(),
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.ErrValidation, decode(t, w).Error.Code)
	})

	t.Run("out of range", func(t *testing.T) {
		r := adminRouter(NewAdminHandler(&stubGrading{submitErr: service.ErrScoreOutOfRange}))
		w := do(r, http.MethodPost, "/admin/grading/scores", gin.H{
			"session_id":  uuid.NewString(),
			"question_id": uuid.NewString(),
			"score":       99,
		})
		require.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, response.ErrScoreOutOfRange, decode(t, w).Error.Code)
	})
}

func TestAdminHandler_ListResultsPagination(t *testing.T) {
	grading := &stubGrading{}
	r := adminRouter(NewAdminHandler(grading))

	w := do(r, http.MethodGet, "/admin/results?page=2&per_page=500", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, grading.page)
	assert.Equal(t, 20, grading.perPage)

	env := decode(t, w)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 45, env.Pagination.TotalItems)
	assert.Equal(t, 3, env.Pagination.TotalPages)
}

func TestAdminHandler_Rescore(t *testing.T) {
	sid := uuid.New()

	r := adminRouter(NewAdminHandler(&stubGrading{}))
	w := do(r, http.MethodPost, "/admin/sessions/"+sid.String()+"/rescore", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), sid.String())

	r = adminRouter(NewAdminHandler(&stubGrading{rescoreErr: service.ErrSessionInProgress}))
	w = do(r, http.MethodPost, "/admin/sessions/"+sid.String()+"/rescore", nil)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrSessionInProgress, decode(t, w).Error.Code)

	w = do(r, http.MethodPost, "/admin/sessions/bogus/rescore", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAdminHandler_ListCheatEvents(t *testing.T) {
	r := adminRouter(NewAdminHandler(&stubGrading{}))

	w := do(r, http.MethodGet, "/admin/sessions/"+uuid.NewString()+"/events", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, string(decode(t, w).Data), `"tab_switch"`)
}

// ─── MonitorHandler ─────────────────────────────────────────────────

type stubSnapshotter struct {
	snap *service.MonitorSnapshot
}

func (s *stubSnapshotter) Snapshot(context.Context) (*service.MonitorSnapshot, error) {
	return s.snap, nil
}

type stubFeed struct {
	ch       chan string
	filter   *uuid.UUID
	released bool
}

func (f *stubFeed) Subscribe(_ context.Context, sessionID *uuid.UUID) (<-chan string, func()) {
	f.filter = sessionID
	return f.ch, func() { f.released = true }
}

func TestMonitorHandler_StreamsSnapshotAndEvents(t *testing.T) {
	watched, other := uuid.New(), uuid.New()
	snap := &service.MonitorSnapshot{
		Sessions: []model.LiveSession{
			{SessionID: watched, CandidateID: "c-1"},
			{SessionID: other, CandidateID: "c-2"},
		},
		TotalCheats: 3,
	}
	feed := &stubFeed{ch: make(chan string)}
	h := NewMonitorHandler(&stubSnapshotter{snap: snap}, feed, zerolog.Nop())

	r := gin.New()
	r.GET("/monitor", h.MonitorSSE)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest(http.MethodGet, "/monitor?session_id="+watched.String(), nil).WithContext(ctx)
	w := httptest.NewRecorder()

	done := make(chan struct{})
	go func() {
		defer close(done)
		r.ServeHTTP(w, req)
	}()

	// The unbuffered send returns once the handler has taken the event.
	feed.ch <- `{"type":"cheat_event"}`
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("monitor stream did not stop")
	}

	body := w.Body.String()
	assert.Equal(t, "text/event-stream", w.Header().Get("Content-Type"))
	assert.True(t, strings.HasPrefix(body, `data: {"data":{"sessions":[`), body)
	assert.NotContains(t, body, "event:")
	assert.Contains(t, body, `"type":"snapshot"}`+"\n\n")
	assert.Contains(t, body, `"total_in_progress":2`)
	assert.Contains(t, body, watched.String())
	assert.NotContains(t, body, other.String())
	assert.Contains(t, body, "data: {\"type\":\"cheat_event\"}\n\n")
	require.NotNil(t, feed.filter)
	assert.Equal(t, watched, *feed.filter)
	assert.True(t, feed.released)
}

func TestMonitorHandler_InvalidFilter(t *testing.T) {
	h := NewMonitorHandler(&stubSnapshotter{}, &stubFeed{}, zerolog.Nop())
	r := gin.New()
	r.GET("/monitor", h.MonitorSSE)

	w := do(r, http.MethodGet, "/monitor?session_id=nope", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// ─── SystemHandler ──────────────────────────────────────────────────

type stubQueues map[string]int64

func (q stubQueues) QueueDepths(context.Context) (map[string]int64, error) {
	return q, nil
}

func TestSystemHandler_Health(t *testing.T) {
	up := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("refused") }

	t.Run("ok", func(t *testing.T) {
		h := NewSystemHandler(map[string]HealthCheck{"postgres": up, "redis": up}, nil, zerolog.Nop())
		r := gin.New()
		r.GET("/health", h.Health)

		w := do(r, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"status":"ok","checks":{"postgres":"up","redis":"up"}}`, string(decode(t, w).Data))
	})

	t.Run("degraded", func(t *testing.T) {
		h := NewSystemHandler(map[string]HealthCheck{"postgres": up, "redis": down}, nil, zerolog.Nop())
		r := gin.New()
		r.GET("/health", h.Health)

		w := do(r, http.MethodGet, "/health", nil)
		require.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.JSONEq(t, `{"status":"degraded","checks":{"postgres":"up","redis":"down"}}`, string(decode(t, w).Data))
	})
}

func TestSystemHandler_Status(t *testing.T) {
	h := NewSystemHandler(nil, stubQueues{"rescore_sessions_queue": 4}, zerolog.Nop())
	r := gin.New()
	r.GET("/status", h.Status)

	w := do(r, http.MethodGet, "/status", nil)
	require.Equal(t, http.StatusOK, w.Code)

	data := string(decode(t, w).Data)
	assert.Contains(t, data, `"rescore_sessions_queue":4`)
	assert.True(t, strings.Contains(data, `"goroutines"`))
}
