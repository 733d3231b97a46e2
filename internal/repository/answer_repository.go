package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const answerColumns = `session_id, question_id, user_answer, is_correct, manual_score, graded_by, graded_at, answered_at`

// AnswerRepository handles candidate answers.
type AnswerRepository struct {
	pool *pgxpool.Pool
}

// NewAnswerRepository creates a new AnswerRepository.
func NewAnswerRepository(pool *pgxpool.Pool) *AnswerRepository {
	return &AnswerRepository{pool: pool}
}

// Upsert writes the answer while its session is in_progress. A resubmitted
// answer clears any manual score. It reports false when the session has ended.
func (r *AnswerRepository) Upsert(ctx context.Context, a *model.Answer) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`INSERT INTO answers (session_id, question_id, user_answer, is_correct, answered_at, updated_at)
		 SELECT $1::uuid, $2::uuid, $3::jsonb, $4::boolean, $5::timestamptz, $5::timestamptz
		 WHERE EXISTS (SELECT 1 FROM exam_sessions WHERE id = $1 AND status = $6)
		 ON CONFLICT (session_id, question_id) DO UPDATE SET
		     user_answer  = EXCLUDED.user_answer,
		     is_correct   = EXCLUDED.is_correct,
		     manual_score = NULL,
		     graded_by    = NULL,
		     graded_at    = NULL,
		     updated_at   = EXCLUDED.updated_at`,
		a.SessionID, a.QuestionID, a.UserAnswer, a.IsCorrect, a.AnsweredAt, model.SessionStatusInProgress,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ListBySession returns every answer of a session.
func (r *AnswerRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.Answer, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE session_id = $1`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []model.Answer
	for rows.Next() {
		a, err := scanAnswer(rows)
		if err != nil {
			return nil, err
		}
		answers = append(answers, *a)
	}
	return answers, rows.Err()
}

// Get returns one answer, or pgx.ErrNoRows.
func (r *AnswerRepository) Get(ctx context.Context, sessionID, questionID uuid.UUID) (*model.Answer, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+answerColumns+` FROM answers WHERE session_id = $1 AND question_id = $2`,
		sessionID, questionID,
	)
	return scanAnswer(row)
}

// SetManualScore records a grader's score. It returns pgx.ErrNoRows when the
// answer does not exist.
func (r *AnswerRepository) SetManualScore(ctx context.Context, sessionID, questionID uuid.UUID, score int, graderID string, at time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE answers
		 SET manual_score = $1, graded_by = $2, graded_at = $3, updated_at = $3
		 WHERE session_id = $4 AND question_id = $5`,
		score, graderID, at, sessionID, questionID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// ListPendingEssays returns ungraded essay answers of scored sessions, oldest
// first. Superseded attempts are never scored and are left out.
func (r *AnswerRepository) ListPendingEssays(ctx context.Context) ([]model.PendingEssay, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT a.session_id, s.candidate_id, a.question_id, q.content, q.ability_dimension,
		        q.weight, q.reference_answer, a.user_answer #>> '{}', a.answered_at
		 FROM answers a
		 JOIN exam_sessions s ON s.id = a.session_id
		 JOIN questions q ON q.id = a.question_id
		 WHERE q.type = 'essay'
		   AND a.manual_score IS NULL
		   AND s.status <> $1
		   AND s.end_reason IS DISTINCT FROM $2
		 ORDER BY s.end_time, a.session_id, a.answered_at`,
		model.SessionStatusInProgress, model.EndReasonSuperseded,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pending []model.PendingEssay
	for rows.Next() {
		var p model.PendingEssay
		if err := rows.Scan(
			&p.SessionID, &p.CandidateID, &p.QuestionID, &p.Content, &p.Dimension,
			&p.Weight, &p.ReferenceAnswer, &p.UserAnswer, &p.AnsweredAt,
		); err != nil {
			return nil, err
		}
		pending = append(pending, p)
	}
	return pending, rows.Err()
}

func scanAnswer(row pgx.Row) (*model.Answer, error) {
	a := &model.Answer{}
	err := row.Scan(
		&a.SessionID, &a.QuestionID, &a.UserAnswer, &a.IsCorrect, &a.ManualScore,
		&a.GradedBy, &a.GradedAt, &a.AnsweredAt,
	)
	if err != nil {
		return nil, err
	}
	return a, nil
}
