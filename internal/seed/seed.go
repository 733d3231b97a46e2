// Package seed holds the built-in question bank and exam templates loaded by
// `examctl seed`.
package seed

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

//go:embed data/questions.json data/templates.json
var files embed.FS

// Namespace derives stable ids for seeded rows, so reseeding an unchanged
// bank is a no-op.
var Namespace = uuid.MustParse("5d0c6f1e-8a4b-4c2e-9f57-0b8f3e2a6c41")

// Questions parses and validates the embedded question bank.
func Questions() ([]model.Question, error) {
	data, err := files.ReadFile("data/questions.json")
	if err != nil {
		return nil, err
	}
	return ParseQuestions(data)
}

// ParseQuestions decodes a question bank document. Questions without an id
// get one derived from their content.
func ParseQuestions(data []byte) ([]model.Question, error) {
	var qs []model.Question
	if err := json.Unmarshal(data, &qs); err != nil {
		return nil, fmt.Errorf("decode questions: %w", err)
	}

	seen := make(map[uuid.UUID]int, len(qs))
	for i := range qs {
		q := &qs[i]
		if q.ID == uuid.Nil {
			q.ID = uuid.NewSHA1(Namespace, []byte(q.Content))
		}
		if err := ValidateQuestion(q); err != nil {
			return nil, fmt.Errorf("question %d: %w", i, err)
		}
		if prev, dup := seen[q.ID]; dup {
			return nil, fmt.Errorf("question %d duplicates question %d", i, prev)
		}
		seen[q.ID] = i
	}
	return qs, nil
}

// ValidateQuestion checks a bank entry before it is written.
func ValidateQuestion(q *model.Question) error {
	if q.Content == "" {
		return errors.New("content is empty")
	}
	if !q.Dimension.Valid() {
		return fmt.Errorf("unknown dimension %q", q.Dimension)
	}
	switch q.Difficulty {
	case model.DifficultyEasy, model.DifficultyMedium, model.DifficultyHard:
	default:
		return fmt.Errorf("unknown difficulty %q", q.Difficulty)
	}
	if q.Weight <= 0 {
		return fmt.Errorf("weight %d must be positive", q.Weight)
	}
	if len(q.ApplicableRoles) == 0 {
		return errors.New("no applicable roles")
	}
	for _, r := range q.ApplicableRoles {
		if !slices.Contains(model.Roles, r) {
			return fmt.Errorf("unknown role %q", r)
		}
	}
	for _, l := range q.ApplicableLanguages {
		if !slices.Contains(model.Languages, l) {
			return fmt.Errorf("unknown language %q", l)
		}
	}

	switch q.Type {
	case model.QuestionTypeEssay:
		if len(q.Options) > 0 || len(q.CorrectAnswer) > 0 {
			return errors.New("essay questions carry no options or key")
		}
	case model.QuestionTypeSingle, model.QuestionTypeMultiple:
		if len(q.Options) < 2 {
			return errors.New("choice questions need at least two options")
		}
		if len(q.CorrectAnswer) == 0 {
			return errors.New("correct answer is empty")
		}
		if q.Type == model.QuestionTypeSingle && len(q.CorrectAnswer) != 1 {
			return fmt.Errorf("single choice question has %d correct keys", len(q.CorrectAnswer))
		}
		for _, k := range q.CorrectAnswer {
			if !q.HasOption(k) {
				return fmt.Errorf("correct key %q is not an option", k)
			}
		}
	default:
		return fmt.Errorf("unknown type %q", q.Type)
	}
	return nil
}

// Templates parses and validates the embedded exam templates.
func Templates() ([]model.ExamTemplate, error) {
	data, err := files.ReadFile("data/templates.json")
	if err != nil {
		return nil, err
	}
	return ParseTemplates(data)
}

// ParseTemplates decodes template definitions. A template names either a
// weighting scheme or explicit dimension weights; missing level thresholds
// fall back to the default table.
func ParseTemplates(data []byte) ([]model.ExamTemplate, error) {
	var ts []model.ExamTemplate
	if err := json.Unmarshal(data, &ts); err != nil {
		return nil, fmt.Errorf("decode templates: %w", err)
	}

	for i := range ts {
		t := &ts[i]
		if t.ID == uuid.Nil {
			t.ID = uuid.NewSHA1(Namespace, []byte("template:"+t.Name))
		}
		if len(t.DimensionWeights) == 0 {
			w, ok := model.WeightingSchemes[t.WeightingScheme]
			if !ok {
				return nil, fmt.Errorf("template %q: unknown weighting scheme %q", t.Name, t.WeightingScheme)
			}
			t.DimensionWeights = maps.Clone(w)
		}
		if len(t.LevelThresholds) == 0 {
			t.LevelThresholds = slices.Clone(model.DefaultLevelThresholds)
		}
		if err := t.Validate(); err != nil {
			return nil, err
		}
	}
	return ts, nil
}
