package repository

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// NewStores builds the PostgreSQL-backed store set the services share.
func NewStores(pool *pgxpool.Pool) service.Stores {
	return service.Stores{
		Questions:   NewQuestionRepository(pool),
		Templates:   NewExamTemplateRepository(pool),
		Sessions:    NewExamSessionRepository(pool),
		Answers:     NewAnswerRepository(pool),
		CheatEvents: NewCheatEventRepository(pool),
		Results:     NewExamResultRepository(pool),
	}
}
