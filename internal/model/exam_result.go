package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamResult is the single scored outcome of a session, replaced on re-score.
type ExamResult struct {
	SessionID      uuid.UUID         `json:"session_id"`
	CandidateID    string            `json:"candidate_id"`
	TotalScore     int               `json:"total_score"`
	AbilityScores  map[Dimension]int `json:"ability_scores"`
	EstimatedLevel string            `json:"estimated_level"`
	PassStatus     bool              `json:"pass_status"`
	PendingEssays  int               `json:"pending_essays"`
	ComputedAt     time.Time         `json:"computed_at"`
}

// ResultSummary is a row of the admin results listing.
type ResultSummary struct {
	ExamResult
	TemplateName string        `json:"template_name"`
	Status       SessionStatus `json:"status"`
	EndReason    *EndReason    `json:"end_reason,omitempty"`
	StartTime    time.Time     `json:"start_time"`
	EndTime      *time.Time    `json:"end_time,omitempty"`
	WarningCount int           `json:"warning_count"`
}

// MonitorEvent is published on the live monitor channels.
type MonitorEvent struct {
	Type         string         `json:"type"`
	SessionID    uuid.UUID      `json:"session_id"`
	CandidateID  string         `json:"candidate_id,omitempty"`
	Status       SessionStatus  `json:"status,omitempty"`
	EventType    CheatEventType `json:"event_type,omitempty"`
	WarningCount int            `json:"warning_count,omitempty"`
	TotalScore   *int           `json:"total_score,omitempty"`
	At           time.Time      `json:"at"`
}

// Monitor event types.
const (
	MonitorSessionStarted = "session_started"
	MonitorSessionEnded   = "session_ended"
	MonitorCheatEvent     = "cheat_event"
	MonitorAnswerSaved    = "answer_saved"
	MonitorScored         = "scored"
)

// LiveSession is one row of the monitor snapshot.
type LiveSession struct {
	SessionID     uuid.UUID `json:"session_id"`
	CandidateID   string    `json:"candidate_id"`
	TemplateName  string    `json:"template_name"`
	StartTime     time.Time `json:"start_time"`
	WarningCount  int       `json:"warning_count"`
	QuestionCount int       `json:"question_count"`
	AnsweredCount int64     `json:"answered_count"`
	CheatCount    int64     `json:"cheat_count"`
}

// RescoreJob is a queued request to recompute a session's result.
type RescoreJob struct {
	SessionID uuid.UUID `json:"session_id"`
	Attempt   int       `json:"attempt"`
}
