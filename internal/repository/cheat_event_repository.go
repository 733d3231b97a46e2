package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// CheatEventRepository is the append-only anti-cheat ledger.
type CheatEventRepository struct {
	pool *pgxpool.Pool
}

// NewCheatEventRepository creates a new CheatEventRepository.
func NewCheatEventRepository(pool *pgxpool.Pool) *CheatEventRepository {
	return &CheatEventRepository{pool: pool}
}

// Append inserts one event.
func (r *CheatEventRepository) Append(ctx context.Context, e *model.CheatEvent) error {
	return r.pool.QueryRow(ctx,
		`INSERT INTO cheat_events (session_id, event_type, occurred_at, metadata, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.SessionID, e.EventType, e.OccurredAt, nullJSON(e.Metadata), e.RecordedAt,
	).Scan(&e.ID)
}

// AppendCounted inserts the event and bumps the session's warning count in
// one transaction. Only in_progress sessions are incremented; for any other
// status the current count is returned with incremented = false.
func (r *CheatEventRepository) AppendCounted(ctx context.Context, e *model.CheatEvent) (int, bool, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO cheat_events (session_id, event_type, occurred_at, metadata, recorded_at)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id`,
		e.SessionID, e.EventType, e.OccurredAt, nullJSON(e.Metadata), e.RecordedAt,
	).Scan(&e.ID)
	if err != nil {
		return 0, false, fmt.Errorf("insert event: %w", err)
	}

	var count int
	incremented := true
	err = tx.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET warning_count = warning_count + 1
		 WHERE id = $1 AND status = $2
		 RETURNING warning_count`,
		e.SessionID, model.SessionStatusInProgress,
	).Scan(&count)
	if errors.Is(err, pgx.ErrNoRows) {
		incremented = false
		err = tx.QueryRow(ctx, `SELECT warning_count FROM exam_sessions WHERE id = $1`, e.SessionID).Scan(&count)
	}
	if err != nil {
		return 0, false, fmt.Errorf("increment warnings: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, false, fmt.Errorf("commit: %w", err)
	}
	return count, incremented, nil
}

// CopyEvents bulk-inserts a batch with COPY.
func (r *CheatEventRepository) CopyEvents(ctx context.Context, events []model.CheatEvent) (int64, error) {
	return r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"cheat_events"},
		[]string{"session_id", "event_type", "occurred_at", "metadata", "recorded_at"},
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.SessionID, string(e.EventType), e.OccurredAt, nullJSON(e.Metadata), e.RecordedAt}, nil
		}),
	)
}

// ListBySession returns a session's events in the order they happened.
func (r *CheatEventRepository) ListBySession(ctx context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, session_id, event_type, occurred_at, metadata, recorded_at
		 FROM cheat_events
		 WHERE session_id = $1
		 ORDER BY occurred_at, id`, sessionID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []model.CheatEvent
	for rows.Next() {
		var e model.CheatEvent
		var meta []byte
		if err := rows.Scan(&e.ID, &e.SessionID, &e.EventType, &e.OccurredAt, &meta, &e.RecordedAt); err != nil {
			return nil, err
		}
		e.Metadata = meta
		events = append(events, e)
	}
	return events, rows.Err()
}

// nullJSON maps empty metadata to SQL NULL and passes raw JSON through as text.
func nullJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
