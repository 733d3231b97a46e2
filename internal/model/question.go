package model

import (
	"slices"

	"github.com/google/uuid"
)

type QuestionType string

const (
	QuestionTypeSingle   QuestionType = "single"
	QuestionTypeMultiple QuestionType = "multiple"
	QuestionTypeEssay    QuestionType = "essay"
)

// IsChoice reports whether answers to this type are auto-graded against a key set.
func (t QuestionType) IsChoice() bool {
	return t == QuestionTypeSingle || t == QuestionTypeMultiple
}

// Dimension is an ability dimension a question measures.
type Dimension string

const (
	DimensionCodeDesign   Dimension = "code_design"
	DimensionArchitecture Dimension = "architecture"
	DimensionDatabase     Dimension = "database"
	DimensionDevOps       Dimension = "devops"
	DimensionQATesting    Dimension = "qa_testing"
)

// AllDimensions lists every ability dimension in report order.
var AllDimensions = []Dimension{
	DimensionCodeDesign,
	DimensionArchitecture,
	DimensionDatabase,
	DimensionDevOps,
	DimensionQATesting,
}

func (d Dimension) Valid() bool {
	return slices.Contains(AllDimensions, d)
}

type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// Option is one choice of a single/multiple question. Options keep their
// authored order, so they are stored as a list rather than a map.
type Option struct {
	Key  string `json:"key"`
	Text string `json:"text"`
}

// Question is an immutable question bank entry. A content change produces a
// new ID; rows referenced by sessions are never edited in place.
type Question struct {
	ID                  uuid.UUID    `json:"id"`
	Content             string       `json:"content"`
	Type                QuestionType `json:"type"`
	Options             []Option     `json:"options,omitempty"`
	CorrectAnswer       []string     `json:"correct_answer,omitempty"`
	Dimension           Dimension    `json:"ability_dimension"`
	Difficulty          Difficulty   `json:"difficulty"`
	Weight              int          `json:"weight"`
	ApplicableRoles     []string     `json:"applicable_roles"`
	ApplicableLanguages []string     `json:"applicable_languages"` // nil = any language
	Explanation         string       `json:"explanation,omitempty"`
	ReferenceAnswer     string       `json:"reference_answer,omitempty"`
}

// HasOption reports whether key is one of the question's choice keys.
func (q *Question) HasOption(key string) bool {
	for _, o := range q.Options {
		if o.Key == key {
			return true
		}
	}
	return false
}

// Matches reports whether the question is eligible for the role/language pair.
func (q *Question) Matches(role, language string) bool {
	if !slices.Contains(q.ApplicableRoles, role) {
		return false
	}
	if q.ApplicableLanguages == nil {
		return true
	}
	return language != "" && slices.Contains(q.ApplicableLanguages, language)
}

// Sanitize strips every answer-bearing field.
func (q *Question) Sanitize() QuestionForCandidate {
	opts := make([]Option, len(q.Options))
	copy(opts, q.Options)
	return QuestionForCandidate{
		ID:        q.ID,
		Content:   q.Content,
		Type:      q.Type,
		Options:   opts,
		Dimension: q.Dimension,
	}
}

// QuestionForCandidate is the only question shape that leaves the server
// during an attempt: no correct answer, weight, explanation or reference.
type QuestionForCandidate struct {
	ID        uuid.UUID    `json:"id"`
	Content   string       `json:"content"`
	Type      QuestionType `json:"type"`
	Options   []Option     `json:"options,omitempty"`
	Dimension Dimension    `json:"ability_dimension"`
}

// SanitizeQuestions maps a question list to its candidate-facing form, preserving order.
func SanitizeQuestions(qs []Question) []QuestionForCandidate {
	out := make([]QuestionForCandidate, 0, len(qs))
	for i := range qs {
		out = append(out, qs[i].Sanitize())
	}
	return out
}

// ReviewedQuestion is a question shown after completion with its key and the
// candidate's answer.
type ReviewedQuestion struct {
	Question
	UserAnswer  *AnswerValue `json:"user_answer,omitempty"`
	IsCorrect   *bool        `json:"is_correct"`
	ManualScore *int         `json:"manual_score"`
}
