package service

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// AnswerService validates and persists candidate answers.
type AnswerService struct {
	sessions *ExamSessionService
	stores   Stores
	cache    ExamCache
	cfg      config.ExamConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewAnswerService creates a new AnswerService.
func NewAnswerService(sessions *ExamSessionService, stores Stores, cache ExamCache, cfg config.ExamConfig, m *metrics.Metrics, log zerolog.Logger) *AnswerService {
	return &AnswerService{
		sessions: sessions,
		stores:   stores,
		cache:    cache,
		cfg:      cfg,
		metrics:  m,
		log:      log.With().Str("component", "answer_service").Logger(),
		now:      time.Now,
	}
}

// AnswerOutcome is the reply to a recorded answer. IsCorrect is only set for
// choice questions.
type AnswerOutcome struct {
	Accepted   bool      `json:"accepted"`
	QuestionID uuid.UUID `json:"question_id"`
	IsCorrect  *bool     `json:"is_correct,omitempty"`
}

// Record stores the candidate's answer for one question of their active
// session, replacing any earlier answer.
func (s *AnswerService) Record(ctx context.Context, candidateID string, sessionID uuid.UUID, req model.SaveAnswerRequest) (*AnswerOutcome, error) {
	sess, err := s.sessions.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.SessionStatusTerminated:
		return nil, ErrSessionTerminated
	case model.SessionStatusCompleted:
		return nil, ErrSessionNotInProgress
	}
	if !sess.Contains(req.QuestionID) {
		return nil, ErrQuestionNotInSession
	}

	q, err := s.stores.Questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	answer := &model.Answer{
		SessionID:  sess.ID,
		QuestionID: q.ID,
		AnsweredAt: s.now().UTC(),
	}
	if q.Type == model.QuestionTypeEssay {
		if !req.Answer.IsText {
			return nil, fmt.Errorf("%w: essay answers are text", ErrInvalidAnswer)
		}
		if utf8.RuneCountInString(req.Answer.Text) > s.cfg.EssayMaxChars {
			return nil, ErrAnswerTooLong
		}
		answer.UserAnswer = req.Answer
	} else {
		keys, err := validateKeys(q, req.Answer.ChoiceKeys())
		if err != nil {
			return nil, err
		}
		correct := Grade(q, keys)
		answer.UserAnswer = model.ChoiceAnswer(keys...)
		answer.IsCorrect = &correct
	}

	ok, err := s.stores.Answers.Upsert(ctx, answer)
	if err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	if !ok {
		// The session ended between the check above and the write.
		return nil, s.endedError(ctx, sess.ID)
	}

	s.metrics.AnswersRecorded.WithLabelValues(string(q.Type)).Inc()
	_ = s.cache.Publish(ctx, model.MonitorEvent{
		Type:        model.MonitorAnswerSaved,
		SessionID:   sess.ID,
		CandidateID: sess.CandidateID,
		Status:      sess.Status,
		At:          answer.AnsweredAt,
	})

	return &AnswerOutcome{Accepted: true, QuestionID: q.ID, IsCorrect: answer.IsCorrect}, nil
}

// validateKeys checks the submitted keys against the question's options and
// removes duplicates.
func validateKeys(q *model.Question, keys []string) ([]string, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: select at least one option", ErrInvalidAnswer)
	}
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if !q.HasOption(k) {
			return nil, fmt.Errorf("%w: unknown option %q", ErrInvalidAnswer, k)
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	if q.Type == model.QuestionTypeSingle && len(out) != 1 {
		return nil, fmt.Errorf("%w: single choice takes exactly one option", ErrInvalidAnswer)
	}
	return out, nil
}

func (s *AnswerService) endedError(ctx context.Context, sessionID uuid.UUID) error {
	sess, err := s.sessions.load(ctx, sessionID)
	if err == nil && sess.Status == model.SessionStatusTerminated {
		return ErrSessionTerminated
	}
	return ErrSessionNotInProgress
}
