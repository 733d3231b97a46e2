package seed

import (
	"math/rand/v2"
	"testing"

	"github.com/google/uuid"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedBankIsValid(t *testing.T) {
	qs, err := Questions()
	require.NoError(t, err)
	require.NotEmpty(t, qs)

	dims := map[model.Dimension]int{}
	essays := 0
	for _, q := range qs {
		assert.NotEqual(t, uuid.Nil, q.ID)
		dims[q.Dimension]++
		if q.Type == model.QuestionTypeEssay {
			essays++
			assert.NotEmpty(t, q.ReferenceAnswer, q.Content)
		}
	}
	for _, d := range model.AllDimensions {
		assert.Positive(t, dims[d], "dimension %s has no questions", d)
	}
	assert.Positive(t, essays)
}

func TestQuestionIDsAreStable(t *testing.T) {
	first, err := Questions()
	require.NoError(t, err)
	second, err := Questions()
	require.NoError(t, err)

	require.Len(t, second, len(first))
	for i := range first {
		assert.Equal(t, first[i].ID, second[i].ID)
	}
	assert.Equal(t, uuid.NewSHA1(Namespace, []byte(first[0].Content)), first[0].ID)
}

func TestEveryTemplateCanBeSelected(t *testing.T) {
	qs, err := Questions()
	require.NoError(t, err)
	ts, err := Templates()
	require.NoError(t, err)
	require.NotEmpty(t, ts)

	selector := service.NewSelector(rand.NewPCG(7, 11))
	for _, tmpl := range ts {
		t.Run(tmpl.Name, func(t *testing.T) {
			filter := model.SelectionFilter{Role: tmpl.Role}
			if tmpl.Language != nil {
				filter.Language = *tmpl.Language
			}
			sel, err := selector.Select(qs, filter, service.PlanFor(&tmpl))
			require.NoError(t, err)
			assert.Len(t, sel.Questions, tmpl.QuestionCount)
			assert.Empty(t, sel.Warnings)
		})
	}
}

func TestTemplatesGetSchemeWeightsAndThresholds(t *testing.T) {
	ts, err := ParseTemplates([]byte(`[{
		"name": "Backend",
		"role": "backend",
		"duration_minutes": 10,
		"passing_score": 60,
		"question_count": 15,
		"min_question_count": 10,
		"weighting_scheme": "legacy_25_30_25_20",
		"is_active": true
	}]`))
	require.NoError(t, err)
	require.Len(t, ts, 1)

	tmpl := ts[0]
	assert.Equal(t, uuid.NewSHA1(Namespace, []byte("template:Backend")), tmpl.ID)
	assert.Equal(t, 30, tmpl.DimensionWeights[model.DimensionArchitecture])
	assert.Equal(t, model.DefaultLevelThresholds, tmpl.LevelThresholds)

	tmpl.DimensionWeights[model.DimensionArchitecture] = 0
	assert.Equal(t, 30, model.WeightingSchemes["legacy_25_30_25_20"][model.DimensionArchitecture])
}

func TestParseTemplatesRejectsUnknownScheme(t *testing.T) {
	_, err := ParseTemplates([]byte(`[{"name":"x","role":"backend","weighting_scheme":"nope"}]`))
	assert.ErrorContains(t, err, "unknown weighting scheme")
}

func TestValidateQuestion(t *testing.T) {
	valid := func() model.Question {
		return model.Question{
			Content:         "Pick one",
			Type:            model.QuestionTypeSingle,
			Options:         []model.Option{{Key: "A", Text: "a"}, {Key: "B", Text: "b"}},
			CorrectAnswer:   []string{"A"},
			Dimension:       model.DimensionDatabase,
			Difficulty:      model.DifficultyEasy,
			Weight:          1,
			ApplicableRoles: []string{"backend"},
		}
	}

	tests := []struct {
		name   string
		mutate func(q *model.Question)
		want   string
	}{
		{"valid", func(q *model.Question) {}, ""},
		{"unknown dimension", func(q *model.Question) { q.Dimension = "ux" }, "unknown dimension"},
		{"unknown difficulty", func(q *model.Question) { q.Difficulty = "expert" }, "unknown difficulty"},
		{"zero weight", func(q *model.Question) { q.Weight = 0 }, "must be positive"},
		{"unknown role", func(q *model.Question) { q.ApplicableRoles = []string{"designer"} }, "unknown role"},
		{"unknown language", func(q *model.Question) { q.ApplicableLanguages = []string{"cobol"} }, "unknown language"},
		{"key not an option", func(q *model.Question) { q.CorrectAnswer = []string{"Z"} }, "not an option"},
		{"single with two keys", func(q *model.Question) { q.CorrectAnswer = []string{"A", "B"} }, "2 correct keys"},
		{"multiple with two keys", func(q *model.Question) {
			q.Type = model.QuestionTypeMultiple
			q.CorrectAnswer = []string{"A", "B"}
		}, ""},
		{"essay with options", func(q *model.Question) { q.Type = model.QuestionTypeEssay }, "no options or key"},
		{"unknown type", func(q *model.Question) { q.Type = "matching" }, "unknown type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q := valid()
			tt.mutate(&q)
			err := ValidateQuestion(&q)
			if tt.want == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.want)
		})
	}
}

func TestParseQuestionsRejectsDuplicates(t *testing.T) {
	doc := `[
		{"content":"Same","type":"essay","ability_dimension":"devops","difficulty":"hard","weight":5,"applicable_roles":["backend"]},
		{"content":"Same","type":"essay","ability_dimension":"devops","difficulty":"hard","weight":5,"applicable_roles":["backend"]}
	]`
	_, err := ParseQuestions([]byte(doc))
	assert.ErrorContains(t, err, "duplicates question 0")
}
