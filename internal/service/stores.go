package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// The engine talks to persistence through these interfaces. The repository
// package provides the PostgreSQL and Redis implementations.

type QuestionStore interface {
	ListEligible(ctx context.Context, role, language string) ([]model.Question, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
}

type TemplateStore interface {
	FindActive(ctx context.Context, filter model.SelectionFilter) (*model.ExamTemplate, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamTemplate, error)
}

type SessionStore interface {
	// CreateReplacingActive terminates the candidate's in_progress sessions
	// as superseded and inserts s, serialized per candidate. It returns the
	// ids of the superseded sessions.
	CreateReplacingActive(ctx context.Context, s *model.ExamSession) ([]uuid.UUID, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error)
	GetActiveByCandidate(ctx context.Context, candidateID string) (*model.ExamSession, error)
	// Transition moves the session out of in_progress. It reports false when
	// the session had already left in_progress.
	Transition(ctx context.Context, id uuid.UUID, to model.SessionStatus, reason model.EndReason, at time.Time) (bool, error)
}

type AnswerStore interface {
	// Upsert writes the answer only while the session is in_progress and
	// reports false otherwise.
	Upsert(ctx context.Context, a *model.Answer) (bool, error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error)
	Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.Answer, error)
	SetManualScore(ctx context.Context, sessionID, questionID uuid.UUID, score int, graderID string, at time.Time) error
	ListPendingEssays(ctx context.Context) ([]model.PendingEssay, error)
}

type CheatEventStore interface {
	Append(ctx context.Context, e *model.CheatEvent) error
	// AppendCounted appends the event and increments the session's warning
	// count in one transaction. The increment only applies to in_progress
	// sessions; the returned count is the value after the statement.
	AppendCounted(ctx context.Context, e *model.CheatEvent) (count int, incremented bool, err error)
	ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error)
}

type ResultStore interface {
	Upsert(ctx context.Context, r *model.ExamResult) error
	GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
	List(ctx context.Context, page, perPage int) ([]model.ResultSummary, int64, error)
}

// MonitorStore feeds the admin live view.
type MonitorStore interface {
	ListLive(ctx context.Context, limit int) ([]model.LiveSession, error)
	AnsweredCounts(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	CheatCounts(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error)
}

// ExamCache holds the Redis-backed side channels: the sanitized paper cache,
// the work queues and the live monitor feed.
type ExamCache interface {
	SetPaper(ctx context.Context, sessionID uuid.UUID, paper []model.QuestionForCandidate, ttl time.Duration) error
	GetPaper(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionForCandidate, bool, error)
	EnqueueCheatEvent(ctx context.Context, e *model.CheatEvent) error
	EnqueueRescore(ctx context.Context, sessionID uuid.UUID) error
	Publish(ctx context.Context, ev model.MonitorEvent) error
}

// Scorer computes and persists a session's result.
type Scorer interface {
	Score(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
	ResultOrScore(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}

// Stores bundles the persistence dependencies shared by the services.
type Stores struct {
	Questions   QuestionStore
	Templates   TemplateStore
	Sessions    SessionStore
	Answers     AnswerStore
	CheatEvents CheatEventStore
	Results     ResultStore
}
