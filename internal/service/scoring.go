package service

import (
	"math"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ScoringConfig is the template-level scoring setup.
type ScoringConfig struct {
	Weights      model.DimensionWeights
	Levels       []model.LevelThreshold
	PassingScore int
}

// ScoringConfigFor resolves a template's scoring setup, falling back to the
// named scheme and then to the given default scheme.
func ScoringConfigFor(t *model.ExamTemplate, defaultScheme string) ScoringConfig {
	weights := t.DimensionWeights
	if len(weights) == 0 {
		weights = model.WeightingSchemes[t.WeightingScheme]
	}
	if len(weights) == 0 {
		weights = model.WeightingSchemes[defaultScheme]
	}
	levels := t.LevelThresholds
	if len(levels) == 0 {
		levels = model.DefaultLevelThresholds
	}
	return ScoringConfig{Weights: weights, Levels: levels, PassingScore: t.PassingScore}
}

// Tally is a dimension's earned and available points.
type Tally struct {
	Score int
	Total int
}

// Normalized returns round(100*score/total), or 0 when the dimension has no points.
func (t Tally) Normalized() int {
	if t.Total <= 0 {
		return 0
	}
	return int(math.Round(100 * float64(t.Score) / float64(t.Total)))
}

// Score is the pure scoring output.
type Score struct {
	TotalScore     int
	AbilityScores  map[model.Dimension]int
	EstimatedLevel string
	PassStatus     bool
	PendingEssays  int
}

// ComputeScore scores every selected question. Unanswered questions keep
// their weight in the denominator; ungraded essays add nothing to the
// numerator until a manual score exists.
func ComputeScore(questions []model.Question, answers []model.Answer, cfg ScoringConfig) Score {
	byQuestion := make(map[uuid.UUID]*model.Answer, len(answers))
	for i := range answers {
		byQuestion[answers[i].QuestionID] = &answers[i]
	}

	tallies := make(map[model.Dimension]Tally, len(model.AllDimensions))
	pending := 0
	for _, q := range questions {
		t := tallies[q.Dimension]
		t.Total += q.Weight
		a := byQuestion[q.ID]
		switch {
		case q.Type == model.QuestionTypeEssay:
			if a != nil && a.ManualScore != nil {
				t.Score += *a.ManualScore
			} else if a != nil {
				pending++
			}
		case a != nil && a.IsCorrect != nil && *a.IsCorrect:
			t.Score += q.Weight
		}
		tallies[q.Dimension] = t
	}

	abilities := make(map[model.Dimension]int, len(model.AllDimensions))
	for _, d := range model.AllDimensions {
		abilities[d] = tallies[d].Normalized()
	}

	// Integer sum of score*percent, rounded half up once at the end.
	weighted := 0
	for _, d := range model.AllDimensions {
		weighted += abilities[d] * cfg.Weights[d]
	}
	total := max(0, min(100, (weighted+50)/100))

	return Score{
		TotalScore:     total,
		AbilityScores:  abilities,
		EstimatedLevel: model.LevelFor(cfg.Levels, total),
		PassStatus:     total >= cfg.PassingScore,
		PendingEssays:  pending,
	}
}

// Grade auto-grades a choice answer by order-independent set equality.
func Grade(q *model.Question, keys []string) bool {
	want := make(map[string]struct{}, len(q.CorrectAnswer))
	for _, k := range q.CorrectAnswer {
		want[k] = struct{}{}
	}
	got := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		got[k] = struct{}{}
	}
	if len(want) != len(got) {
		return false
	}
	for k := range got {
		if _, ok := want[k]; !ok {
			return false
		}
	}
	return true
}
