package service

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ScoringService re-reads a finished session and upserts its result.
// Every run starts from current answers, so calls may repeat in any order.
type ScoringService struct {
	stores  Stores
	cache   ExamCache
	cfg     config.ExamConfig
	metrics *metrics.Metrics
	log     zerolog.Logger
	now     func() time.Time
}

// NewScoringService creates a new ScoringService.
func NewScoringService(stores Stores, cache ExamCache, cfg config.ExamConfig, m *metrics.Metrics, log zerolog.Logger) *ScoringService {
	return &ScoringService{
		stores:  stores,
		cache:   cache,
		cfg:     cfg,
		metrics: m,
		log:     log.With().Str("component", "scoring_service").Logger(),
		now:     time.Now,
	}
}

// Score computes and stores the result of a completed or terminated session.
func (s *ScoringService) Score(ctx context.Context, sessionID uuid.UUID) (result *model.ExamResult, err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		s.metrics.ScoringRuns.WithLabelValues(outcome).Inc()
		s.metrics.ScoringDuration.Observe(time.Since(start).Seconds())
	}()

	sess, err := s.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("load session: %w", err)
	}
	if !sess.Status.IsTerminal() {
		return nil, ErrSessionInProgress
	}

	tmpl, err := s.stores.Templates.GetByID(ctx, sess.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("load template: %w", err)
	}

	questions, err := s.stores.Questions.GetByIDs(ctx, sess.SelectedQuestions)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if len(questions) != len(sess.SelectedQuestions) {
		return nil, fmt.Errorf("load questions: %w: have %d of %d", ErrQuestionNotFound, len(questions), len(sess.SelectedQuestions))
	}

	answers, err := s.stores.Answers.ListBySession(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}

	score := ComputeScore(questions, answers, ScoringConfigFor(tmpl, s.cfg.WeightingScheme))
	result = &model.ExamResult{
		SessionID:      sess.ID,
		CandidateID:    sess.CandidateID,
		TotalScore:     score.TotalScore,
		AbilityScores:  score.AbilityScores,
		EstimatedLevel: score.EstimatedLevel,
		PassStatus:     score.PassStatus,
		PendingEssays:  score.PendingEssays,
		ComputedAt:     s.now().UTC(),
	}
	prev, err := s.stores.Results.GetBySession(ctx, sessionID)
	switch {
	case err == nil && sameScore(prev, result):
		result.ComputedAt = prev.ComputedAt
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		return nil, fmt.Errorf("load previous result: %w", err)
	}
	if err := s.stores.Results.Upsert(ctx, result); err != nil {
		return nil, fmt.Errorf("upsert result: %w", err)
	}

	s.log.Info().
		Str("session_id", sessionID.String()).
		Int("total_score", result.TotalScore).
		Str("level", result.EstimatedLevel).
		Int("pending_essays", result.PendingEssays).
		Msg("Session scored")

	total := result.TotalScore
	_ = s.cache.Publish(ctx, model.MonitorEvent{
		Type:        model.MonitorScored,
		SessionID:   sess.ID,
		CandidateID: sess.CandidateID,
		Status:      sess.Status,
		TotalScore:  &total,
		At:          result.ComputedAt,
	})
	return result, nil
}

// sameScore reports whether two results agree on everything but ComputedAt.
// A rescore that changes nothing keeps the stored timestamp, so repeated runs
// write identical rows.
func sameScore(a, b *model.ExamResult) bool {
	return a.TotalScore == b.TotalScore &&
		a.EstimatedLevel == b.EstimatedLevel &&
		a.PassStatus == b.PassStatus &&
		a.PendingEssays == b.PendingEssays &&
		maps.Equal(a.AbilityScores, b.AbilityScores)
}

// ResultOrScore returns the stored result, computing it when it is missing.
// This is the retry path for scoring runs that failed after completion.
func (s *ScoringService) ResultOrScore(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error) {
	res, err := s.stores.Results.GetBySession(ctx, sessionID)
	if err == nil {
		return res, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("get result: %w", err)
	}
	return s.Score(ctx, sessionID)
}
