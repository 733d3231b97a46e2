package websocket

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionAnswer    Action = "answer"
	ActionEvent     Action = "event"
	ActionHeartbeat Action = "heartbeat"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// Request is every client message. Only the fields of its action are read.
type Request struct {
	Action Action `json:"action"`

	// answer
	QuestionID string          `json:"question_id,omitempty"`
	Answer     json.RawMessage `json:"answer,omitempty"`

	// event
	EventType  string          `json:"event_type,omitempty"`
	OccurredAt *time.Time      `json:"occurred_at,omitempty"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventSaved      Event = "saved"
	EventWarning    Event = "warning"
	EventTick       Event = "tick"
	EventGraded     Event = "graded"
	EventTerminated Event = "terminated"
	EventError      Event = "error"
	EventPong       Event = "pong"
)

type SavedResponse struct {
	Event      Event     `json:"event"`
	QuestionID uuid.UUID `json:"question_id"`
	IsCorrect  *bool     `json:"is_correct,omitempty"`
}

type WarningResponse struct {
	Event   Event  `json:"event"`
	Message string `json:"message,omitempty"`
	*model.CheatOutcome
}

type TickResponse struct {
	Event            Event               `json:"event"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	Status           model.SessionStatus `json:"status"`
	WarningCount     int                 `json:"warning_count"`
	model.SessionDirectives
}

type GradedResponse struct {
	Event         Event             `json:"event"`
	Result        *model.ExamResult `json:"result,omitempty"`
	AwaitingScore bool              `json:"awaiting_score"`
	Message       string            `json:"message,omitempty"`
	model.SessionDirectives
}

type TerminatedResponse struct {
	Event     Event            `json:"event"`
	EndReason *model.EndReason `json:"end_reason,omitempty"`
	Message   string           `json:"message,omitempty"`
	model.SessionDirectives
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event Event `json:"event"`
}
