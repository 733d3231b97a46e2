package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/i18n"
	"github.com/stemsi/exstem-assessment/internal/middleware"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/response"
	"github.com/stemsi/exstem-assessment/internal/service"
	ws "github.com/stemsi/exstem-assessment/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler streams one exam session over a WebSocket: answers and events
// go up, server ticks and directives come down.
type WSHandler struct {
	sessions SessionService
	answers  AnswerRecorder
	cheats   CheatRecorder
	cfg      config.ExamConfig
	log      zerolog.Logger
	upgrader websocket.Upgrader
	tick     time.Duration
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(sessions SessionService, answers AnswerRecorder, cheats CheatRecorder, cfg config.ExamConfig, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	tick := cfg.HeartbeatInterval
	if tick <= 0 {
		tick = 30 * time.Second
	}
	return &WSHandler{
		sessions: sessions,
		answers:  answers,
		cheats:   cheats,
		cfg:      cfg,
		log:      log.With().Str("component", "ws_handler").Logger(),
		upgrader: buildUpgrader(allowedOrigins),
		tick:     tick,
	}
}

// stream is the per-connection state.
type stream struct {
	conn        *ws.Conn
	candidateID string
	sessionID   uuid.UUID
	log         zerolog.Logger
	// lctx carries the localizer negotiated at upgrade time.
	lctx context.Context
}

// ExamStream godoc
// WS /ws/v1/exam/sessions/:id/stream?token=
// The session is checked before upgrading; ended sessions get a plain HTTP error.
func (h *WSHandler) ExamStream(c *gin.Context) {
	candidateID := middleware.CandidateID(c)
	if candidateID == "" {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return
	}
	sessionID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return
	}

	state, err := h.sessions.Heartbeat(c.Request.Context(), candidateID, sessionID)
	if err != nil {
		writeServiceError(c, err, h.cfg.EssayMaxChars)
		return
	}
	switch state.Status {
	case model.SessionStatusTerminated:
		writeServiceError(c, service.ErrSessionTerminated, h.cfg.EssayMaxChars)
		return
	case model.SessionStatusCompleted:
		writeServiceError(c, service.ErrSessionNotInProgress, h.cfg.EssayMaxChars)
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}

	s := &stream{
		conn:        ws.NewConn(conn),
		candidateID: candidateID,
		sessionID:   sessionID,
		lctx:        c.Request.Context(),
		log: h.log.With().
			Str("candidate_id", candidateID).
			Str("session_id", sessionID.String()).
			Logger(),
	}
	defer s.conn.Close()

	s.log.Info().Msg("Candidate connected")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go h.tickLoop(ctx, s)

	_ = s.conn.WriteTyped(tickFrom(state))

	for {
		var msg ws.Request
		if err := s.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.log.Warn().Err(err).Msg("Unexpected close")
			} else {
				s.log.Debug().Msg("Connection closed")
			}
			return
		}

		if done := h.dispatch(ctx, s, &msg); done {
			return
		}
	}
}

// dispatch handles one client message. It reports true once the session has
// ended and the final event was sent.
func (h *WSHandler) dispatch(ctx context.Context, s *stream, msg *ws.Request) bool {
	switch msg.Action {
	case ws.ActionAnswer:
		return h.handleAnswer(ctx, s, msg)
	case ws.ActionEvent:
		return h.handleEvent(ctx, s, msg)
	case ws.ActionHeartbeat:
		return h.sendState(ctx, s)
	case ws.ActionSubmit:
		return h.handleSubmit(ctx, s)
	case ws.ActionPing:
		_ = s.conn.WriteTyped(ws.PongResponse{Event: ws.EventPong})
		return false
	default:
		s.log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = s.conn.WriteError(string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return false
	}
}

func (h *WSHandler) handleAnswer(ctx context.Context, s *stream, msg *ws.Request) bool {
	questionID, err := uuid.Parse(msg.QuestionID)
	if err != nil {
		_ = s.conn.WriteError(string(response.ErrInvalidID), response.Message(s.lctx, response.ErrInvalidID))
		return false
	}
	var answer model.AnswerValue
	if err := json.Unmarshal(msg.Answer, &answer); err != nil {
		s.log.Debug().Err(err).Msg("Malformed answer payload")
		_ = s.conn.WriteError(string(response.ErrInvalidPayload), response.Message(s.lctx, response.ErrInvalidPayload))
		return false
	}

	outcome, err := h.answers.Record(ctx, s.candidateID, s.sessionID, model.SaveAnswerRequest{
		QuestionID: questionID,
		Answer:     answer,
	})
	if err != nil {
		return h.writeError(ctx, s, err)
	}

	saved := ws.SavedResponse{Event: ws.EventSaved, QuestionID: outcome.QuestionID}
	if h.cfg.RevealCorrectness {
		saved.IsCorrect = outcome.IsCorrect
	}
	_ = s.conn.WriteTyped(saved)
	return false
}

func (h *WSHandler) handleEvent(ctx context.Context, s *stream, msg *ws.Request) bool {
	outcome, err := h.cheats.RecordEvent(ctx, s.candidateID, s.sessionID, model.CheatEventRequest{
		EventType:  model.CheatEventType(msg.EventType),
		OccurredAt: msg.OccurredAt,
		Metadata:   msg.Metadata,
	})
	if err != nil {
		return h.writeError(ctx, s, err)
	}

	if outcome.Terminated || outcome.Status == model.SessionStatusTerminated {
		_ = s.conn.WriteTyped(ws.TerminatedResponse{
			Event:             ws.EventTerminated,
			Message:           i18n.T(s.lctx, "WarningTerminated"),
			SessionDirectives: outcome.SessionDirectives,
		})
		return true
	}
	if outcome.Status == model.SessionStatusCompleted {
		return h.sendGraded(ctx, s, outcome.SessionDirectives)
	}
	if outcome.Counted {
		_ = s.conn.WriteTyped(ws.WarningResponse{
			Event:        ws.EventWarning,
			Message:      h.warningMessage(s, outcome),
			CheatOutcome: outcome,
		})
	}
	return false
}

func (h *WSHandler) handleSubmit(ctx context.Context, s *stream) bool {
	res, err := h.sessions.Submit(ctx, s.candidateID, s.sessionID)
	if err != nil {
		return h.writeError(ctx, s, err)
	}
	_ = s.conn.WriteTyped(ws.GradedResponse{
		Event:             ws.EventGraded,
		Result:            res.Result,
		AwaitingScore:     res.AwaitingScore,
		SessionDirectives: res.SessionDirectives,
	})
	return true
}

// sendState pushes the current countdown, or the final event when the
// session ended on the server side.
func (h *WSHandler) sendState(ctx context.Context, s *stream) bool {
	state, err := h.sessions.Heartbeat(ctx, s.candidateID, s.sessionID)
	if err != nil {
		return h.writeError(ctx, s, err)
	}
	switch state.Status {
	case model.SessionStatusTerminated:
		_ = s.conn.WriteTyped(tickFrom(state))
		_ = s.conn.WriteTyped(ws.TerminatedResponse{
			Event:             ws.EventTerminated,
			EndReason:         state.EndReason,
			Message:           terminationMessage(s.lctx, state.EndReason),
			SessionDirectives: state.SessionDirectives,
		})
		return true
	case model.SessionStatusCompleted:
		_ = s.conn.WriteTyped(tickFrom(state))
		return h.sendGraded(ctx, s, state.SessionDirectives)
	}
	_ = s.conn.WriteTyped(tickFrom(state))
	return false
}

func (h *WSHandler) sendGraded(ctx context.Context, s *stream, d model.SessionDirectives) bool {
	graded := ws.GradedResponse{Event: ws.EventGraded, SessionDirectives: d}
	if d.ShouldAutoSubmit {
		graded.Message = i18n.T(s.lctx, "TimeExpired")
	}
	view, err := h.sessions.GetResult(ctx, s.candidateID, s.sessionID)
	if err != nil {
		graded.AwaitingScore = true
	} else {
		graded.Result = view.Result
		graded.AwaitingScore = view.Result != nil && view.Result.PendingEssays > 0
	}
	_ = s.conn.WriteTyped(graded)
	return true
}

// tickLoop drives the countdown from the server clock so expiry is noticed
// even when the client stops sending heartbeats.
func (h *WSHandler) tickLoop(ctx context.Context, s *stream) {
	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if h.sendState(ctx, s) {
				_ = s.conn.Close()
				return
			}
		}
	}
}

// writeError reports a failed action. Errors that mean the session is over
// end the stream.
func (h *WSHandler) writeError(ctx context.Context, s *stream, err error) bool {
	if ctx.Err() != nil {
		return true
	}
	_, code := mapServiceError(err)
	msg := response.Message(s.lctx, code)
	if code == response.ErrAnswerTooLong {
		msg = i18n.Td(s.lctx, string(code), map[string]any{"Max": h.cfg.EssayMaxChars})
	}
	if code == response.ErrInternal {
		s.log.Error().Err(err).Msg("Stream action failed")
	}
	_ = s.conn.WriteError(string(code), msg)

	switch {
	case errors.Is(err, service.ErrSessionTerminated):
		_ = s.conn.WriteTyped(ws.TerminatedResponse{
			Event:             ws.EventTerminated,
			SessionDirectives: model.SessionDirectives{ShouldTerminate: true, Redirect: model.RedirectExit},
		})
		return true
	case errors.Is(err, service.ErrSessionNotInProgress):
		return h.sendGraded(ctx, s, model.SessionDirectives{Redirect: model.RedirectResult})
	}
	return false
}

func (h *WSHandler) warningMessage(s *stream, o *model.CheatOutcome) string {
	switch o.WarningLevel {
	case model.WarningFinal:
		return i18n.T(s.lctx, "WarningFinal")
	case model.WarningTerminated:
		return i18n.T(s.lctx, "WarningTerminated")
	default:
		return i18n.Td(s.lctx, "WarningFirst", map[string]any{
			"Count":     o.WarningCount,
			"Threshold": h.cfg.WarningThreshold,
		})
	}
}

func terminationMessage(ctx context.Context, reason *model.EndReason) string {
	if reason != nil && *reason == model.EndReasonSuperseded {
		return i18n.T(ctx, "SessionSuperseded")
	}
	return i18n.T(ctx, "WarningTerminated")
}

func tickFrom(st *service.SessionState) ws.TickResponse {
	return ws.TickResponse{
		Event:             ws.EventTick,
		RemainingSeconds:  st.RemainingSeconds,
		Status:            st.Status,
		WarningCount:      st.WarningCount,
		SessionDirectives: st.SessionDirectives,
	}
}
