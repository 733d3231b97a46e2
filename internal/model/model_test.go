package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnswerValueJSON(t *testing.T) {
	var text AnswerValue
	require.NoError(t, json.Unmarshal([]byte(`"use an index"`), &text))
	assert.True(t, text.IsText)
	assert.Equal(t, "use an index", text.Text)
	assert.Equal(t, []string{"use an index"}, text.ChoiceKeys())

	var keys AnswerValue
	require.NoError(t, json.Unmarshal([]byte(`["b","a"]`), &keys))
	assert.False(t, keys.IsText)
	assert.Equal(t, []string{"b", "a"}, keys.ChoiceKeys())

	var bad AnswerValue
	assert.Error(t, json.Unmarshal([]byte(`42`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`null`), &bad))

	out, err := json.Marshal(ChoiceAnswer())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(out))
}

func TestSaveAnswerRequestDecodes(t *testing.T) {
	qid := uuid.New()
	var req SaveAnswerRequest
	require.NoError(t, json.Unmarshal([]byte(`{"question_id":"`+qid.String()+`","answer":["a"]}`), &req))
	assert.Equal(t, qid, req.QuestionID)
	assert.Equal(t, []string{"a"}, req.Answer.Keys)
}

func TestQuestionMatches(t *testing.T) {
	anyLang := Question{ApplicableRoles: []string{"backend", "tester"}}
	javaOnly := Question{ApplicableRoles: []string{"backend"}, ApplicableLanguages: []string{"java"}}

	assert.True(t, anyLang.Matches("backend", "python"))
	assert.True(t, anyLang.Matches("tester", ""))
	assert.False(t, anyLang.Matches("frontend", "python"))
	assert.True(t, javaOnly.Matches("backend", "java"))
	assert.False(t, javaOnly.Matches("backend", "python"))
	assert.False(t, javaOnly.Matches("backend", ""))
}

func TestSanitizeDropsAnswerFields(t *testing.T) {
	q := Question{
		ID:              uuid.New(),
		Content:         "Which?",
		Type:            QuestionTypeSingle,
		Options:         []Option{{Key: "a", Text: "A"}, {Key: "b", Text: "B"}},
		CorrectAnswer:   []string{"a"},
		Weight:          1,
		Explanation:     "because",
		ReferenceAnswer: "ref",
	}

	raw, err := json.Marshal(q.Sanitize())
	require.NoError(t, err)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	for _, leaked := range []string{"correct_answer", "weight", "explanation", "reference_answer"} {
		assert.NotContains(t, fields, leaked)
	}
	assert.Equal(t, "Which?", fields["content"])
}

func TestLevelFor(t *testing.T) {
	cases := map[int]string{100: "P9", 91: "P9", 90: "P8", 76: "P8", 75: "P7", 61: "P7", 60: "P6", 41: "P6", 40: "P5", 0: "P5"}
	for score, want := range cases {
		assert.Equal(t, want, LevelFor(DefaultLevelThresholds, score), "score %d", score)
	}
}

func TestDimensionWeightsValidate(t *testing.T) {
	for name, w := range WeightingSchemes {
		assert.NoError(t, w.Validate(), name)
	}
	assert.Error(t, DimensionWeights{DimensionDatabase: 50}.Validate())
	assert.Error(t, DimensionWeights{"networking": 100}.Validate())
}

func TestSelectionFilterValidate(t *testing.T) {
	assert.NoError(t, SelectionFilter{Role: "backend", Language: "java"}.Validate())
	assert.NoError(t, SelectionFilter{Role: "tester"}.Validate())
	assert.Error(t, SelectionFilter{Role: "backend"}.Validate())
	assert.Error(t, SelectionFilter{Role: "designer", Language: "java"}.Validate())
	assert.Error(t, SelectionFilter{Role: "backend", Language: "cobol"}.Validate())
}

func TestSessionRemaining(t *testing.T) {
	start := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	s := &ExamSession{StartTime: start, DurationSeconds: 60}

	assert.Equal(t, 60, s.RemainingSeconds(start))
	assert.Equal(t, 1, s.RemainingSeconds(start.Add(59500*time.Millisecond)))
	assert.Equal(t, 0, s.RemainingSeconds(start.Add(time.Minute)))
	assert.LessOrEqual(t, s.Remaining(start.Add(time.Minute)), time.Duration(0))
}

func TestDirectivesFor(t *testing.T) {
	expired := EndReasonTimeExpired
	cheating := EndReasonCheating

	assert.Equal(t, SessionDirectives{}, DirectivesFor(&ExamSession{Status: SessionStatusInProgress}))
	assert.Equal(t,
		SessionDirectives{ShouldAutoSubmit: true, Redirect: RedirectResult},
		DirectivesFor(&ExamSession{Status: SessionStatusCompleted, EndReason: &expired}))
	assert.Equal(t,
		SessionDirectives{ShouldTerminate: true, Redirect: RedirectExit},
		DirectivesFor(&ExamSession{Status: SessionStatusTerminated, EndReason: &cheating}))
}
