package model

import (
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
)

// CheatEventType is a browser-observable behavior signal.
type CheatEventType string

const (
	CheatEventTabSwitch   CheatEventType = "tab_switch"
	CheatEventPageBlur    CheatEventType = "page_blur"
	CheatEventIdleTimeout CheatEventType = "idle_timeout"
	CheatEventContextMenu CheatEventType = "context_menu"
	CheatEventCopy        CheatEventType = "copy"
	CheatEventPaste       CheatEventType = "paste"
)

var CheatEventTypes = []CheatEventType{
	CheatEventTabSwitch,
	CheatEventPageBlur,
	CheatEventIdleTimeout,
	CheatEventContextMenu,
	CheatEventCopy,
	CheatEventPaste,
}

func (t CheatEventType) Valid() bool {
	return slices.Contains(CheatEventTypes, t)
}

// Counts reports whether the event type escalates the warning count.
func (t CheatEventType) Counts() bool {
	return t == CheatEventTabSwitch
}

// CheatEvent is an append-only ledger entry.
type CheatEvent struct {
	ID         int64           `json:"id,omitempty"`
	SessionID  uuid.UUID       `json:"session_id"`
	EventType  CheatEventType  `json:"event_type"`
	OccurredAt time.Time       `json:"occurred_at"`
	Metadata   json.RawMessage `json:"metadata,omitempty"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// CheatEventRequest is the payload a client sends to report an event.
type CheatEventRequest struct {
	EventType  CheatEventType  `json:"event_type" binding:"required,cheat_event"`
	OccurredAt *time.Time      `json:"occurred_at"`
	Metadata   json.RawMessage `json:"metadata"`
}

// WarningLevel tells the client how severe the current warning is.
type WarningLevel string

const (
	WarningNone       WarningLevel = ""
	WarningFirst      WarningLevel = "first"
	WarningFinal      WarningLevel = "final"
	WarningTerminated WarningLevel = "terminated"
)

// CheatOutcome is the server's reply to a reported event.
type CheatOutcome struct {
	Logged       bool          `json:"logged"`
	Counted      bool          `json:"counted"`
	WarningCount int           `json:"warning_count"`
	WarningLevel WarningLevel  `json:"warning_level,omitempty"`
	Status       SessionStatus `json:"status"`
	Terminated   bool          `json:"terminated"`
	SessionDirectives
}
