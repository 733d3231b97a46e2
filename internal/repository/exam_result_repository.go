package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ExamResultRepository stores one scored result per session.
type ExamResultRepository struct {
	pool *pgxpool.Pool
}

// NewExamResultRepository creates a new ExamResultRepository.
func NewExamResultRepository(pool *pgxpool.Pool) *ExamResultRepository {
	return &ExamResultRepository{pool: pool}
}

// Upsert inserts the result or replaces the session's existing one.
func (r *ExamResultRepository) Upsert(ctx context.Context, res *model.ExamResult) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_results (session_id, candidate_id, total_score, ability_scores, estimated_level, pass_status, pending_essays, computed_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		 ON CONFLICT (session_id) DO UPDATE SET
		     total_score     = EXCLUDED.total_score,
		     ability_scores  = EXCLUDED.ability_scores,
		     estimated_level = EXCLUDED.estimated_level,
		     pass_status     = EXCLUDED.pass_status,
		     pending_essays  = EXCLUDED.pending_essays,
		     computed_at     = EXCLUDED.computed_at`,
		res.SessionID, res.CandidateID, res.TotalScore, res.AbilityScores, res.EstimatedLevel,
		res.PassStatus, res.PendingEssays, res.ComputedAt,
	)
	return err
}

// GetBySession returns the session's result, or pgx.ErrNoRows.
func (r *ExamResultRepository) GetBySession(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	res := &model.ExamResult{}
	err := r.pool.QueryRow(ctx,
		`SELECT session_id, candidate_id, total_score, ability_scores, estimated_level, pass_status, pending_essays, computed_at
		 FROM exam_results WHERE session_id = $1`, sessionID,
	).Scan(&res.SessionID, &res.CandidateID, &res.TotalScore, &res.AbilityScores, &res.EstimatedLevel,
		&res.PassStatus, &res.PendingEssays, &res.ComputedAt)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// List returns a page of results joined with their sessions, newest first.
func (r *ExamResultRepository) List(ctx context.Context, page, perPage int) ([]model.ResultSummary, int64, error) {
	offset := (page - 1) * perPage

	var total int64
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM exam_results`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx,
		`SELECT er.session_id, er.candidate_id, er.total_score, er.ability_scores, er.estimated_level,
		        er.pass_status, er.pending_essays, er.computed_at,
		        t.name, s.status, s.end_reason, s.start_time, s.end_time, s.warning_count
		 FROM exam_results er
		 JOIN exam_sessions s ON s.id = er.session_id
		 JOIN exam_templates t ON t.id = s.template_id
		 ORDER BY er.computed_at DESC
		 LIMIT $1 OFFSET $2`, perPage, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var results []model.ResultSummary
	for rows.Next() {
		var s model.ResultSummary
		if err := rows.Scan(
			&s.SessionID, &s.CandidateID, &s.TotalScore, &s.AbilityScores, &s.EstimatedLevel,
			&s.PassStatus, &s.PendingEssays, &s.ComputedAt,
			&s.TemplateName, &s.Status, &s.EndReason, &s.StartTime, &s.EndTime, &s.WarningCount,
		); err != nil {
			return nil, 0, err
		}
		results = append(results, s)
	}
	return results, total, rows.Err()
}
