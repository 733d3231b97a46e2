package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const sessionColumns = `id, candidate_id, template_id, status, end_reason, selected_questions,
	start_time, end_time, warning_count, duration_seconds, shortfall`

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// CreateReplacingActive supersedes the candidate's in_progress sessions and
// inserts s in one transaction. A transaction-scoped advisory lock on the
// candidate id serializes concurrent starts; the partial unique index backs it up.
func (r *ExamSessionRepository) CreateReplacingActive(ctx context.Context, s *model.ExamSession) ([]uuid.UUID, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, s.CandidateID); err != nil {
		return nil, fmt.Errorf("lock candidate: %w", err)
	}

	rows, err := tx.Query(ctx,
		`UPDATE exam_sessions
		 SET status = $1, end_reason = $2, end_time = $3
		 WHERE candidate_id = $4 AND status = $5
		 RETURNING id`,
		model.SessionStatusTerminated, model.EndReasonSuperseded, s.StartTime,
		s.CandidateID, model.SessionStatusInProgress,
	)
	if err != nil {
		return nil, fmt.Errorf("supersede sessions: %w", err)
	}
	superseded, err := pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
	if err != nil {
		return nil, fmt.Errorf("supersede sessions: %w", err)
	}

	s.Status = model.SessionStatusInProgress
	err = tx.QueryRow(ctx,
		`INSERT INTO exam_sessions (candidate_id, template_id, status, selected_questions, start_time, duration_seconds, shortfall)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 RETURNING id`,
		s.CandidateID, s.TemplateID, s.Status, s.SelectedQuestions, s.StartTime, s.DurationSeconds, s.Shortfall,
	).Scan(&s.ID)
	if err != nil {
		return nil, fmt.Errorf("insert session: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return superseded, nil
}

// GetByID retrieves a session by its UUID.
func (r *ExamSessionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+sessionColumns+` FROM exam_sessions WHERE id = $1`, id)
	return scanSession(row)
}

// GetActiveByCandidate retrieves the candidate's in_progress session.
func (r *ExamSessionRepository) GetActiveByCandidate(ctx context.Context, candidateID string) (*model.ExamSession, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+sessionColumns+`
		 FROM exam_sessions
		 WHERE candidate_id = $1 AND status = $2`,
		candidateID, model.SessionStatusInProgress,
	)
	return scanSession(row)
}

// Transition moves an in_progress session to a terminal status. The guard on
// the prior status makes concurrent callers race safely: exactly one wins.
func (r *ExamSessionRepository) Transition(ctx context.Context, id uuid.UUID, to model.SessionStatus, reason model.EndReason, at time.Time) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions
		 SET status = $1, end_reason = $2, end_time = $3
		 WHERE id = $4 AND status = $5`,
		to, reason, at, id, model.SessionStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func scanSession(row pgx.Row) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := row.Scan(
		&s.ID, &s.CandidateID, &s.TemplateID, &s.Status, &s.EndReason, &s.SelectedQuestions,
		&s.StartTime, &s.EndTime, &s.WarningCount, &s.DurationSeconds, &s.Shortfall,
	)
	if err != nil {
		return nil, err
	}
	return s, nil
}
