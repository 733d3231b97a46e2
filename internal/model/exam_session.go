package model

import (
	"math"
	"slices"
	"time"

	"github.com/google/uuid"
)

// SessionStatus enumerates exam session states.
type SessionStatus string

const (
	SessionStatusInProgress SessionStatus = "in_progress"
	SessionStatusCompleted  SessionStatus = "completed"
	SessionStatusTerminated SessionStatus = "terminated"
)

// IsTerminal reports whether no transition can leave the status.
func (s SessionStatus) IsTerminal() bool {
	return s == SessionStatusCompleted || s == SessionStatusTerminated
}

// EndReason records why a session left in_progress.
type EndReason string

const (
	EndReasonSubmitted   EndReason = "submitted"
	EndReasonTimeExpired EndReason = "time_expired"
	EndReasonCheating    EndReason = "cheating"
	EndReasonSuperseded  EndReason = "superseded"
)

// ExamSession is one candidate attempt. Only the lifecycle controller writes it.
type ExamSession struct {
	ID                uuid.UUID     `json:"id"`
	CandidateID       string        `json:"candidate_id"`
	TemplateID        uuid.UUID     `json:"template_id"`
	Status            SessionStatus `json:"status"`
	EndReason         *EndReason    `json:"end_reason,omitempty"`
	SelectedQuestions []uuid.UUID   `json:"selected_questions"`
	StartTime         time.Time     `json:"start_time"`
	EndTime           *time.Time    `json:"end_time,omitempty"`
	WarningCount      int           `json:"warning_count"`
	DurationSeconds   int           `json:"duration_seconds"`
	Shortfall         int           `json:"shortfall"`
}

// Deadline is the instant the time budget runs out.
func (s *ExamSession) Deadline() time.Time {
	return s.StartTime.Add(time.Duration(s.DurationSeconds) * time.Second)
}

// Remaining returns the time left at now. Zero or less means expired.
func (s *ExamSession) Remaining(now time.Time) time.Duration {
	return s.Deadline().Sub(now)
}

// RemainingSeconds rounds the remaining time up so an active session never reports 0.
func (s *ExamSession) RemainingSeconds(now time.Time) int {
	r := s.Remaining(now)
	if r <= 0 {
		return 0
	}
	return int(math.Ceil(r.Seconds()))
}

// Contains reports whether the question was selected for this session.
func (s *ExamSession) Contains(questionID uuid.UUID) bool {
	return slices.Contains(s.SelectedQuestions, questionID)
}

// Redirect tells the client where to go after a terminal transition.
type Redirect string

const (
	RedirectNone   Redirect = ""
	RedirectResult Redirect = "result"
	RedirectExit   Redirect = "exit"
)

// RedirectFor maps a session status to the client directive.
func RedirectFor(status SessionStatus) Redirect {
	switch status {
	case SessionStatusCompleted:
		return RedirectResult
	case SessionStatusTerminated:
		return RedirectExit
	default:
		return RedirectNone
	}
}

// SessionDirectives are the machine-readable instructions every session
// response carries.
type SessionDirectives struct {
	ShouldAutoSubmit bool     `json:"should_auto_submit"`
	ShouldTerminate  bool     `json:"should_terminate"`
	Redirect         Redirect `json:"redirect,omitempty"`
}

// DirectivesFor derives the directives from a session's current state.
func DirectivesFor(s *ExamSession) SessionDirectives {
	d := SessionDirectives{Redirect: RedirectFor(s.Status)}
	switch s.Status {
	case SessionStatusCompleted:
		d.ShouldAutoSubmit = s.EndReason != nil && *s.EndReason == EndReasonTimeExpired
	case SessionStatusTerminated:
		d.ShouldTerminate = true
	}
	return d
}

// StartExamRequest is the payload for starting a new exam.
type StartExamRequest struct {
	SelectionFilter
}
