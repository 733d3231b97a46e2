package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const questionColumns = `id, content, type, options, correct_answer, ability_dimension, difficulty,
	weight, applicable_roles, applicable_languages, explanation, reference_answer`

// QuestionRepository handles question bank access.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

// ListEligible returns the questions applicable to the role and language.
// Questions without a language list apply to every language.
func (r *QuestionRepository) ListEligible(ctx context.Context, role, language string) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+`
		 FROM questions
		 WHERE applicable_roles @> jsonb_build_array($1::text)
		   AND (applicable_languages IS NULL
		        OR ($2::text <> '' AND applicable_languages @> jsonb_build_array($2::text)))
		 ORDER BY id`, role, language,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// GetByIDs returns the questions with the given ids in no particular order.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1)`, ids,
	)
	if err != nil {
		return nil, err
	}
	return collectQuestions(rows)
}

// GetByID returns one question, or pgx.ErrNoRows.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = $1`, id,
	)
	if err != nil {
		return nil, err
	}
	qs, err := collectQuestions(rows)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, pgx.ErrNoRows
	}
	return &qs[0], nil
}

// Upsert inserts seed questions in one batch. Existing ids are left untouched
// since referenced questions are immutable.
func (r *QuestionRepository) Upsert(ctx context.Context, qs []model.Question) (int64, error) {
	batch := &pgx.Batch{}
	for _, q := range qs {
		opts := q.Options
		if opts == nil {
			opts = []model.Option{}
		}
		batch.Queue(
			`INSERT INTO questions (`+questionColumns+`)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 ON CONFLICT (id) DO NOTHING`,
			q.ID, q.Content, q.Type, opts, q.CorrectAnswer, q.Dimension, q.Difficulty,
			q.Weight, q.ApplicableRoles, q.ApplicableLanguages, q.Explanation, q.ReferenceAnswer,
		)
	}

	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()

	var inserted int64
	for range qs {
		tag, err := results.Exec()
		if err != nil {
			return inserted, err
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// CountByDimension reports how many questions each dimension/difficulty pair holds.
func (r *QuestionRepository) CountByDimension(ctx context.Context) (map[model.Dimension]map[model.Difficulty]int, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT ability_dimension, difficulty, COUNT(*)
		 FROM questions
		 GROUP BY ability_dimension, difficulty`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[model.Dimension]map[model.Difficulty]int)
	for rows.Next() {
		var d model.Dimension
		var diff model.Difficulty
		var n int
		if err := rows.Scan(&d, &diff, &n); err != nil {
			return nil, err
		}
		if counts[d] == nil {
			counts[d] = make(map[model.Difficulty]int)
		}
		counts[d][diff] = n
	}
	return counts, rows.Err()
}

func collectQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(
			&q.ID, &q.Content, &q.Type, &q.Options, &q.CorrectAnswer, &q.Dimension, &q.Difficulty,
			&q.Weight, &q.ApplicableRoles, &q.ApplicableLanguages, &q.Explanation, &q.ReferenceAnswer,
		); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}
