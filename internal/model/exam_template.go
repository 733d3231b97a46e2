package model

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/google/uuid"
)

// Candidate roles and languages accepted by the selector filter.
var (
	Roles     = []string{"frontend", "backend", "fullstack", "tester"}
	Languages = []string{"typescript", "javascript", "java", "python"}
)

// RoleTester is the only role that may start an exam without a language.
const RoleTester = "tester"

// DimensionWeights maps a dimension to its percentage of the composite score.
// Dimensions missing from the map contribute nothing.
type DimensionWeights map[Dimension]int

// Validate checks that every key is a known dimension and that the weights add up to 100.
func (w DimensionWeights) Validate() error {
	if len(w) == 0 {
		return errors.New("dimension weights are empty")
	}
	sum := 0
	for d, pct := range w {
		if !d.Valid() {
			return fmt.Errorf("unknown dimension %q", d)
		}
		if pct < 0 {
			return fmt.Errorf("negative weight for %q", d)
		}
		sum += pct
	}
	if sum != 100 {
		return fmt.Errorf("dimension weights sum to %d, want 100", sum)
	}
	return nil
}

// WeightingSchemes are the named composite weightings a template can refer to.
var WeightingSchemes = map[string]DimensionWeights{
	"equal_20": {
		DimensionCodeDesign:   20,
		DimensionArchitecture: 20,
		DimensionDatabase:     20,
		DimensionDevOps:       20,
		DimensionQATesting:    20,
	},
	"legacy_25_30_25_20": {
		DimensionCodeDesign:   25,
		DimensionArchitecture: 30,
		DimensionDatabase:     25,
		DimensionDevOps:       20,
	},
}

// LevelThreshold maps a minimum composite score to a level label.
type LevelThreshold struct {
	MinScore int    `json:"min_score"`
	Level    string `json:"level"`
}

// DefaultLevelThresholds is the P5..P9 seniority table.
var DefaultLevelThresholds = []LevelThreshold{
	{MinScore: 91, Level: "P9"},
	{MinScore: 76, Level: "P8"},
	{MinScore: 61, Level: "P7"},
	{MinScore: 41, Level: "P6"},
	{MinScore: 0, Level: "P5"},
}

// LevelFor returns the label of the highest threshold the score reaches.
func LevelFor(thresholds []LevelThreshold, score int) string {
	sorted := slices.Clone(thresholds)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MinScore > sorted[j].MinScore })
	for _, t := range sorted {
		if score >= t.MinScore {
			return t.Level
		}
	}
	if len(sorted) == 0 {
		return ""
	}
	return sorted[len(sorted)-1].Level
}

// ExamTemplate configures one kind of exam: who it targets, how long it runs
// and how it is scored.
type ExamTemplate struct {
	ID                 uuid.UUID        `json:"id"`
	Name               string           `json:"name"`
	Description        string           `json:"description"`
	Role               string           `json:"role"`
	Language           *string          `json:"language,omitempty"`
	Framework          *string          `json:"framework,omitempty"`
	DurationMinutes    int              `json:"duration_minutes"`
	PassingScore       int              `json:"passing_score"`
	QuestionCount      int              `json:"question_count"`
	MinQuestionCount   int              `json:"min_question_count"`
	EasyPerDimension   int              `json:"easy_per_dimension"`
	MediumPerDimension int              `json:"medium_per_dimension"`
	WeightingScheme    string           `json:"weighting_scheme"`
	DimensionWeights   DimensionWeights `json:"dimension_weights"`
	LevelThresholds    []LevelThreshold `json:"level_thresholds"`
	IsActive           bool             `json:"is_active"`
}

// Validate checks the template's internal consistency.
func (t *ExamTemplate) Validate() error {
	if !slices.Contains(Roles, t.Role) {
		return fmt.Errorf("unknown role %q", t.Role)
	}
	if t.Language != nil && !slices.Contains(Languages, *t.Language) {
		return fmt.Errorf("unknown language %q", *t.Language)
	}
	if t.DurationMinutes <= 0 {
		return errors.New("duration must be positive")
	}
	if t.QuestionCount <= 0 || t.MinQuestionCount <= 0 || t.MinQuestionCount > t.QuestionCount {
		return fmt.Errorf("question count %d / minimum %d is inconsistent", t.QuestionCount, t.MinQuestionCount)
	}
	if t.PassingScore < 0 || t.PassingScore > 100 {
		return fmt.Errorf("passing score %d out of range", t.PassingScore)
	}
	if err := t.DimensionWeights.Validate(); err != nil {
		return fmt.Errorf("template %q: %w", t.Name, err)
	}
	return nil
}

// SelectionFilter narrows the question bank for one candidate.
type SelectionFilter struct {
	Role      string `json:"role" binding:"required,exam_role"`
	Language  string `json:"language" binding:"omitempty,exam_language"`
	Framework string `json:"framework" binding:"omitempty,max=64"`
}

// Validate applies the cross-field rule that only testers may omit a language.
func (f SelectionFilter) Validate() error {
	if !slices.Contains(Roles, f.Role) {
		return fmt.Errorf("unknown role %q", f.Role)
	}
	if f.Language == "" {
		if f.Role != RoleTester {
			return fmt.Errorf("language is required for role %q", f.Role)
		}
		return nil
	}
	if !slices.Contains(Languages, f.Language) {
		return fmt.Errorf("unknown language %q", f.Language)
	}
	return nil
}
