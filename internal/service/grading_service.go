package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// GradingService is the admin surface: manual essay grading, result listing
// and the forensic event log.
type GradingService struct {
	stores Stores
	cache  ExamCache
	scorer Scorer
	log    zerolog.Logger
	now    func() time.Time
}

// NewGradingService creates a new GradingService.
func NewGradingService(stores Stores, cache ExamCache, scorer Scorer, log zerolog.Logger) *GradingService {
	return &GradingService{
		stores: stores,
		cache:  cache,
		scorer: scorer,
		log:    log.With().Str("component", "grading_service").Logger(),
		now:    time.Now,
	}
}

// GradeOutcome is returned after a manual score is stored. Result is nil when
// re-scoring failed and was queued for retry.
type GradeOutcome struct {
	SessionID     uuid.UUID         `json:"session_id"`
	QuestionID    uuid.UUID         `json:"question_id"`
	Score         int               `json:"score"`
	Result        *model.ExamResult `json:"result,omitempty"`
	AwaitingScore bool              `json:"awaiting_score"`
}

// ListPending returns ungraded essays of finished sessions, grouped by session
// in the order they were answered.
func (s *GradingService) ListPending(ctx context.Context) ([]model.PendingSession, error) {
	essays, err := s.stores.Answers.ListPendingEssays(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending essays: %w", err)
	}

	groups := make([]model.PendingSession, 0)
	index := make(map[uuid.UUID]int)
	for _, e := range essays {
		i, ok := index[e.SessionID]
		if !ok {
			i = len(groups)
			index[e.SessionID] = i
			groups = append(groups, model.PendingSession{SessionID: e.SessionID, CandidateID: e.CandidateID})
		}
		groups[i].Essays = append(groups[i].Essays, e)
	}
	return groups, nil
}

// SubmitScore stores a grader's score for one essay answer and re-runs scoring
// for the session.
func (s *GradingService) SubmitScore(ctx context.Context, graderID string, req model.GradeRequest) (*GradeOutcome, error) {
	if req.Score == nil {
		return nil, ErrScoreOutOfRange
	}
	score := *req.Score

	sess, err := s.stores.Sessions.GetByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	if !sess.Status.IsTerminal() {
		return nil, ErrSessionInProgress
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
	if q.Type != model.QuestionTypeEssay {
		return nil, ErrNotEssay
	}
	if score < 0 || score > q.Weight {
		return nil, fmt.Errorf("%w: max %d", ErrScoreOutOfRange, q.Weight)
	}

	if err := s.stores.Answers.SetManualScore(ctx, sess.ID, q.ID, score, graderID, s.now().UTC()); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAnswerNotFound
		}
		return nil, fmt.Errorf("set manual score: %w", err)
	}
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("question_id", q.ID.String()).
		Str("grader_id", graderID).
		Int("score", score).
		Msg("Essay graded")

	out := &GradeOutcome{SessionID: sess.ID, QuestionID: q.ID, Score: score}
	res, err := s.scorer.Score(ctx, sess.ID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Re-scoring after grade failed")
		if qerr := s.cache.EnqueueRescore(ctx, sess.ID); qerr != nil {
			s.log.Error().Err(qerr).Str("session_id", sess.ID.String()).Msg("Failed to queue rescore")
		}
		out.AwaitingScore = true
		return out, nil
	}
	out.Result = res
	return out, nil
}

// ListResults returns a page of results with their session details.
func (s *GradingService) ListResults(ctx context.Context, page, perPage int) ([]model.ResultSummary, int64, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	results, total, err := s.stores.Results.List(ctx, page, perPage)
	if err != nil {
		return nil, 0, fmt.Errorf("list results: %w", err)
	}
	return results, total, nil
}

// ListCheatEvents returns the full event log of a session.
func (s *GradingService) ListCheatEvents(ctx context.Context, sessionID uuid.UUID) ([]model.CheatEvent, error) {
	if _, err := s.stores.Sessions.GetByID(ctx, sessionID); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	events, err := s.stores.CheatEvents.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list cheat events: %w", err)
	}
	if events == nil {
		events = []model.CheatEvent{}
	}
	return events, nil
}

// Rescore recomputes a finished session's result on demand.
func (s *GradingService) Rescore(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	return s.scorer.Score(ctx, sessionID)
}
