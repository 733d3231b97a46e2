package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// MonitorRepository provides the read queries behind the admin live view.
type MonitorRepository struct {
	pool *pgxpool.Pool
}

// NewMonitorRepository creates a new MonitorRepository.
func NewMonitorRepository(pool *pgxpool.Pool) *MonitorRepository {
	return &MonitorRepository{pool: pool}
}

// ListLive returns in_progress sessions, oldest first.
func (r *MonitorRepository) ListLive(ctx context.Context, limit int) ([]model.LiveSession, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT s.id, s.candidate_id, t.name, s.start_time, s.warning_count,
		        jsonb_array_length(s.selected_questions)
		 FROM exam_sessions s
		 JOIN exam_templates t ON t.id = s.template_id
		 WHERE s.status = $1
		 ORDER BY s.start_time
		 LIMIT $2`,
		model.SessionStatusInProgress, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var live []model.LiveSession
	for rows.Next() {
		var l model.LiveSession
		if err := rows.Scan(&l.SessionID, &l.CandidateID, &l.TemplateName, &l.StartTime, &l.WarningCount, &l.QuestionCount); err != nil {
			return nil, err
		}
		live = append(live, l)
	}
	return live, rows.Err()
}

// AnsweredCounts returns the number of answered questions per session.
func (r *MonitorRepository) AnsweredCounts(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.countBySession(ctx,
		`SELECT session_id, COUNT(*)
		 FROM answers
		 WHERE session_id = ANY($1)
		 GROUP BY session_id`, sessionIDs)
}

// CheatCounts returns the number of recorded cheat events per session.
func (r *MonitorRepository) CheatCounts(ctx context.Context, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	return r.countBySession(ctx,
		`SELECT session_id, COUNT(*)
		 FROM cheat_events
		 WHERE session_id = ANY($1)
		 GROUP BY session_id`, sessionIDs)
}

func (r *MonitorRepository) countBySession(ctx context.Context, query string, sessionIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	rows, err := r.pool.Query(ctx, query, sessionIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int64)
	for rows.Next() {
		var id uuid.UUID
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = n
	}
	return counts, rows.Err()
}
