package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// AnswerValue is either a set of choice keys or essay text. On the wire a
// string is text (or a single key) and an array is a key set.
type AnswerValue struct {
	Keys   []string
	Text   string
	IsText bool
}

func ChoiceAnswer(keys ...string) AnswerValue {
	return AnswerValue{Keys: keys}
}

func TextAnswer(text string) AnswerValue {
	return AnswerValue{Text: text, IsText: true}
}

// ChoiceKeys returns the submitted keys, treating a bare string as one key.
func (v AnswerValue) ChoiceKeys() []string {
	if v.IsText {
		if v.Text == "" {
			return nil
		}
		return []string{v.Text}
	}
	return v.Keys
}

func (v AnswerValue) MarshalJSON() ([]byte, error) {
	if v.IsText {
		return json.Marshal(v.Text)
	}
	if v.Keys == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(v.Keys)
}

func (v *AnswerValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return errors.New("answer is required")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*v = TextAnswer(s)
		return nil
	case '[':
		var keys []string
		if err := json.Unmarshal(data, &keys); err != nil {
			return err
		}
		*v = ChoiceAnswer(keys...)
		return nil
	default:
		return errors.New("answer must be a string or an array of option keys")
	}
}

// Answer is one (session, question) response. IsCorrect stays nil for essays;
// ManualScore stays nil until a grader scores the essay.
type Answer struct {
	SessionID   uuid.UUID   `json:"session_id"`
	QuestionID  uuid.UUID   `json:"question_id"`
	UserAnswer  AnswerValue `json:"user_answer"`
	IsCorrect   *bool       `json:"is_correct"`
	ManualScore *int        `json:"manual_score"`
	GradedBy    *string     `json:"graded_by,omitempty"`
	GradedAt    *time.Time  `json:"graded_at,omitempty"`
	AnsweredAt  time.Time   `json:"answered_at"`
}

// SaveAnswerRequest is the payload for recording an answer.
type SaveAnswerRequest struct {
	QuestionID uuid.UUID   `json:"question_id" binding:"required"`
	Answer     AnswerValue `json:"answer"`
}

// GradeRequest is the payload a grader submits for one essay answer.
type GradeRequest struct {
	SessionID  uuid.UUID `json:"session_id" binding:"required"`
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Score      *int      `json:"score" binding:"required,min=0"`
}

// PendingEssay is an essay answer of a finished session still waiting for a grade.
type PendingEssay struct {
	SessionID       uuid.UUID `json:"session_id"`
	CandidateID     string    `json:"candidate_id"`
	QuestionID      uuid.UUID `json:"question_id"`
	Content         string    `json:"content"`
	Dimension       Dimension `json:"ability_dimension"`
	Weight          int       `json:"weight"`
	ReferenceAnswer string    `json:"reference_answer"`
	UserAnswer      string    `json:"user_answer"`
	AnsweredAt      time.Time `json:"answered_at"`
}

// PendingSession groups the ungraded essays of one session.
type PendingSession struct {
	SessionID   uuid.UUID      `json:"session_id"`
	CandidateID string         `json:"candidate_id"`
	Essays      []PendingEssay `json:"essays"`
}
