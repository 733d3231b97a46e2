package repository

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const templateColumns = `id, name, description, role, language, framework, duration_minutes,
	passing_score, question_count, min_question_count, easy_per_dimension, medium_per_dimension,
	weighting_scheme, dimension_weights, level_thresholds, is_active`

// ExamTemplateRepository handles exam template data access.
type ExamTemplateRepository struct {
	pool *pgxpool.Pool
}

// NewExamTemplateRepository creates a new ExamTemplateRepository.
func NewExamTemplateRepository(pool *pgxpool.Pool) *ExamTemplateRepository {
	return &ExamTemplateRepository{pool: pool}
}

// FindActive returns the most specific active template for the filter: a
// framework match beats a language match, which beats a role-wide template.
func (r *ExamTemplateRepository) FindActive(ctx context.Context, f model.SelectionFilter) (*model.ExamTemplate, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+templateColumns+`
		 FROM exam_templates
		 WHERE is_active
		   AND role = $1
		   AND (language IS NULL OR language = $2)
		   AND (framework IS NULL OR framework = $3)
		 ORDER BY (framework IS NOT NULL) DESC, (language IS NOT NULL) DESC, created_at
		 LIMIT 1`, f.Role, f.Language, f.Framework,
	)
	return scanTemplate(row)
}

// GetByID retrieves a template by its UUID.
func (r *ExamTemplateRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.ExamTemplate, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+templateColumns+` FROM exam_templates WHERE id = $1`, id)
	return scanTemplate(row)
}

// List returns every template ordered by role and name.
func (r *ExamTemplateRepository) List(ctx context.Context) ([]model.ExamTemplate, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+templateColumns+` FROM exam_templates ORDER BY role, name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var templates []model.ExamTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, err
		}
		templates = append(templates, *t)
	}
	return templates, rows.Err()
}

// Upsert inserts or updates a template keyed by name.
func (r *ExamTemplateRepository) Upsert(ctx context.Context, t *model.ExamTemplate) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return r.pool.QueryRow(ctx,
		`INSERT INTO exam_templates (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		 ON CONFLICT (name) DO UPDATE SET
		     description = EXCLUDED.description,
		     role = EXCLUDED.role,
		     language = EXCLUDED.language,
		     framework = EXCLUDED.framework,
		     duration_minutes = EXCLUDED.duration_minutes,
		     passing_score = EXCLUDED.passing_score,
		     question_count = EXCLUDED.question_count,
		     min_question_count = EXCLUDED.min_question_count,
		     easy_per_dimension = EXCLUDED.easy_per_dimension,
		     medium_per_dimension = EXCLUDED.medium_per_dimension,
		     weighting_scheme = EXCLUDED.weighting_scheme,
		     dimension_weights = EXCLUDED.dimension_weights,
		     level_thresholds = EXCLUDED.level_thresholds,
		     is_active = EXCLUDED.is_active
		 RETURNING id`,
		t.ID, t.Name, t.Description, t.Role, t.Language, t.Framework, t.DurationMinutes,
		t.PassingScore, t.QuestionCount, t.MinQuestionCount, t.EasyPerDimension, t.MediumPerDimension,
		t.WeightingScheme, t.DimensionWeights, t.LevelThresholds, t.IsActive,
	).Scan(&t.ID)
}

func scanTemplate(row pgx.Row) (*model.ExamTemplate, error) {
	t := &model.ExamTemplate{}
	err := row.Scan(
		&t.ID, &t.Name, &t.Description, &t.Role, &t.Language, &t.Framework, &t.DurationMinutes,
		&t.PassingScore, &t.QuestionCount, &t.MinQuestionCount, &t.EasyPerDimension, &t.MediumPerDimension,
		&t.WeightingScheme, &t.DimensionWeights, &t.LevelThresholds, &t.IsActive,
	)
	if err != nil {
		return nil, err
	}
	return t, nil
}
