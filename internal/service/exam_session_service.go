package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ExamSessionService owns the session state machine. It is the only writer
// of session status: in_progress → completed | terminated.
type ExamSessionService struct {
	stores   Stores
	cache    ExamCache
	scorer   Scorer
	selector *Selector
	cfg      config.ExamConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	stores Stores,
	cache ExamCache,
	scorer Scorer,
	selector *Selector,
	cfg config.ExamConfig,
	m *metrics.Metrics,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		stores:   stores,
		cache:    cache,
		scorer:   scorer,
		selector: selector,
		cfg:      cfg,
		metrics:  m,
		log:      log.With().Str("component", "exam_session_service").Logger(),
		now:      time.Now,
	}
}

// StartedExam is returned when a new attempt begins.
type StartedExam struct {
	SessionID        uuid.UUID                    `json:"session_id"`
	TemplateName     string                       `json:"template_name"`
	StartTime        time.Time                    `json:"start_time"`
	DurationSeconds  int                          `json:"duration_seconds"`
	RemainingSeconds int                          `json:"remaining_seconds"`
	Questions        []model.QuestionForCandidate `json:"questions"`
	Shortfall        int                          `json:"shortfall"`
	Warnings         []string                     `json:"warnings,omitempty"`
	Superseded       []uuid.UUID                  `json:"superseded_sessions,omitempty"`
}

// SessionState is the countdown and directive view shared by heartbeat,
// terminate and the in-progress lookup.
type SessionState struct {
	SessionID        uuid.UUID           `json:"session_id"`
	Status           model.SessionStatus `json:"status"`
	EndReason        *model.EndReason    `json:"end_reason,omitempty"`
	StartTime        time.Time           `json:"start_time"`
	RemainingSeconds int                 `json:"remaining_seconds"`
	WarningCount     int                 `json:"warning_count"`
	model.SessionDirectives
}

// SessionView is the full resume payload of a session.
type SessionView struct {
	SessionState
	DurationSeconds int                             `json:"duration_seconds"`
	Questions       []model.QuestionForCandidate    `json:"questions,omitempty"`
	Answers         map[uuid.UUID]model.AnswerValue `json:"answers,omitempty"`
}

// SubmitResult is the outcome of an explicit submit.
type SubmitResult struct {
	SessionState
	Result        *model.ExamResult `json:"result,omitempty"`
	AwaitingScore bool              `json:"awaiting_score"`
}

// ResultView is the candidate-facing result page.
type ResultView struct {
	Result           *model.ExamResult   `json:"result"`
	Status           model.SessionStatus `json:"status"`
	EndReason        *model.EndReason    `json:"end_reason,omitempty"`
	TemplateName     string              `json:"template_name"`
	QuestionCount    int                 `json:"question_count"`
	TimeTakenMinutes int                 `json:"time_taken_minutes"`
}

// ReviewView lists every question of a completed session with its key.
type ReviewView struct {
	SessionID uuid.UUID                `json:"session_id"`
	Questions []model.ReviewedQuestion `json:"questions"`
}

// ─── Creation ───────────────────────────────────────────────────────

// StartExam selects a paper for the filter and opens a new session. Any
// in_progress session of the candidate is terminated as superseded in the
// same transaction.
func (s *ExamSessionService) StartExam(ctx context.Context, candidateID string, filter model.SelectionFilter) (*StartedExam, error) {
	if err := filter.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidFilter, err)
	}

	tmpl, err := s.stores.Templates.FindActive(ctx, filter)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTemplateNotFound
		}
		return nil, fmt.Errorf("find template: %w", err)
	}
	tmpl = s.withDefaults(tmpl)

	pool, err := s.stores.Questions.ListEligible(ctx, filter.Role, filter.Language)
	if err != nil {
		return nil, fmt.Errorf("list eligible questions: %w", err)
	}

	sel, err := s.selector.Select(pool, filter, PlanFor(tmpl))
	if err != nil {
		if errors.Is(err, ErrDuplicateSelection) {
			s.log.Error().Err(err).Str("template", tmpl.Name).Msg("Selector produced duplicate questions")
		}
		return nil, err
	}
	if len(sel.Warnings) > 0 {
		s.log.Warn().
			Str("candidate_id", candidateID).
			Str("template", tmpl.Name).
			Strs("warnings", sel.Warnings).
			Int("shortfall", sel.Shortfall).
			Msg("Question bank thin for filter")
	}
	if sel.Shortfall > 0 {
		s.metrics.SelectionShortfall.Inc()
	}

	now := s.now().UTC()
	sess := &model.ExamSession{
		CandidateID:       candidateID,
		TemplateID:        tmpl.ID,
		SelectedQuestions: sel.IDs(),
		StartTime:         now,
		DurationSeconds:   tmpl.DurationMinutes * 60,
		Shortfall:         sel.Shortfall,
	}
	superseded, err := s.stores.Sessions.CreateReplacingActive(ctx, sess)
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	for _, id := range superseded {
		s.metrics.SessionTransitions.WithLabelValues(string(model.SessionStatusTerminated), string(model.EndReasonSuperseded)).Inc()
		s.publish(ctx, model.MonitorEvent{Type: model.MonitorSessionEnded, SessionID: id, CandidateID: candidateID, Status: model.SessionStatusTerminated, At: now})
		s.log.Info().Str("session_id", id.String()).Str("candidate_id", candidateID).Msg("Session superseded by new attempt")
	}

	paper := model.SanitizeQuestions(sel.Questions)
	if err := s.cache.SetPaper(ctx, sess.ID, paper, s.paperTTL(sess)); err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Failed to cache paper")
	}

	s.metrics.SessionsStarted.Inc()
	s.publish(ctx, model.MonitorEvent{Type: model.MonitorSessionStarted, SessionID: sess.ID, CandidateID: candidateID, Status: sess.Status, At: now})
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("candidate_id", candidateID).
		Int("questions", len(paper)).
		Msg("Exam session started")

	return &StartedExam{
		SessionID:        sess.ID,
		TemplateName:     tmpl.Name,
		StartTime:        sess.StartTime,
		DurationSeconds:  sess.DurationSeconds,
		RemainingSeconds: sess.RemainingSeconds(now),
		Questions:        paper,
		Shortfall:        sel.Shortfall,
		Warnings:         sel.Warnings,
		Superseded:       superseded,
	}, nil
}

// ─── Touchpoints ────────────────────────────────────────────────────

// Resolve loads a session owned by the candidate and applies the expiry and
// warning-threshold checks before returning it.
func (s *ExamSessionService) Resolve(ctx context.Context, candidateID string, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.load(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.CandidateID != candidateID {
		return nil, ErrNotSessionOwner
	}
	return s.enforce(ctx, sess)
}

// GetSession returns the resume payload. The paper and saved answers are only
// included while the session is in progress.
func (s *ExamSessionService) GetSession(ctx context.Context, candidateID string, sessionID uuid.UUID) (*SessionView, error) {
	sess, err := s.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{SessionState: s.state(sess), DurationSeconds: sess.DurationSeconds}
	if sess.Status != model.SessionStatusInProgress {
		return view, nil
	}

	if view.Questions, err = s.paper(ctx, sess); err != nil {
		return nil, err
	}
	answers, err := s.stores.Answers.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	view.Answers = make(map[uuid.UUID]model.AnswerValue, len(answers))
	for _, a := range answers {
		view.Answers[a.QuestionID] = a.UserAnswer
	}
	return view, nil
}

// Heartbeat recomputes the remaining time on the server clock. Expiry and
// the warning threshold are enforced as a side effect.
func (s *ExamSessionService) Heartbeat(ctx context.Context, candidateID string, sessionID uuid.UUID) (*SessionState, error) {
	sess, err := s.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	st := s.state(sess)
	return &st, nil
}

// CheckInProgress returns the candidate's active session, or nil when none is running.
func (s *ExamSessionService) CheckInProgress(ctx context.Context, candidateID string) (*SessionState, error) {
	sess, err := s.stores.Sessions.GetActiveByCandidate(ctx, candidateID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get active session: %w", err)
	}
	if sess, err = s.enforce(ctx, sess); err != nil {
		return nil, err
	}
	if sess.Status != model.SessionStatusInProgress {
		return nil, nil
	}
	st := s.state(sess)
	return &st, nil
}

// ─── Terminal transitions ───────────────────────────────────────────

// Submit completes the session and returns its result. Submitting a completed
// session again returns the stored result; a terminated session is rejected.
func (s *ExamSessionService) Submit(ctx context.Context, candidateID string, sessionID uuid.UUID) (*SubmitResult, error) {
	sess, err := s.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionStatusInProgress {
		if sess, err = s.transition(ctx, sess, model.SessionStatusCompleted, model.EndReasonSubmitted); err != nil {
			return nil, err
		}
	}
	if sess.Status == model.SessionStatusTerminated {
		return nil, ErrSessionTerminated
	}

	out := &SubmitResult{SessionState: s.state(sess)}
	res, err := s.scorer.ResultOrScore(ctx, sess.ID)
	if err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Result unavailable after submit")
		s.enqueueRescore(ctx, sess.ID)
		out.AwaitingScore = true
		return out, nil
	}
	out.Result = res
	out.AwaitingScore = res.PendingEssays > 0
	return out, nil
}

// Terminate ends the session at the client's request after it detected a
// violation on its side. Terminal sessions are returned unchanged.
func (s *ExamSessionService) Terminate(ctx context.Context, candidateID string, sessionID uuid.UUID) (*SessionState, error) {
	sess, err := s.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	if sess.Status == model.SessionStatusInProgress {
		if sess, err = s.transition(ctx, sess, model.SessionStatusTerminated, model.EndReasonCheating); err != nil {
			return nil, err
		}
	}
	st := s.state(sess)
	return &st, nil
}

// ─── Results ────────────────────────────────────────────────────────

// GetResult returns the result of a completed session, scoring it first when
// an earlier scoring run failed.
func (s *ExamSessionService) GetResult(ctx context.Context, candidateID string, sessionID uuid.UUID) (*ResultView, error) {
	sess, err := s.completedSession(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}

	res, err := s.scorer.ResultOrScore(ctx, sess.ID)
	if err != nil {
		s.enqueueRescore(ctx, sess.ID)
		return nil, fmt.Errorf("%w: %v", ErrResultNotReady, err)
	}

	view := &ResultView{
		Result:        res,
		Status:        sess.Status,
		EndReason:     sess.EndReason,
		QuestionCount: len(sess.SelectedQuestions),
	}
	if tmpl, err := s.stores.Templates.GetByID(ctx, sess.TemplateID); err == nil {
		view.TemplateName = tmpl.Name
	}
	if sess.EndTime != nil {
		view.TimeTakenMinutes = int(math.Ceil(sess.EndTime.Sub(sess.StartTime).Minutes()))
	}
	return view, nil
}

// GetReview returns the questions of a completed session with their keys and
// the candidate's answers, in paper order.
func (s *ExamSessionService) GetReview(ctx context.Context, candidateID string, sessionID uuid.UUID) (*ReviewView, error) {
	sess, err := s.completedSession(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}

	questions, err := s.orderedQuestions(ctx, sess)
	if err != nil {
		return nil, err
	}
	answers, err := s.stores.Answers.ListBySession(ctx, sess.ID)
	if err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	byQuestion := make(map[uuid.UUID]model.Answer, len(answers))
	for _, a := range answers {
		byQuestion[a.QuestionID] = a
	}

	review := &ReviewView{SessionID: sess.ID, Questions: make([]model.ReviewedQuestion, 0, len(questions))}
	for _, q := range questions {
		rq := model.ReviewedQuestion{Question: q}
		if a, ok := byQuestion[q.ID]; ok {
			ua := a.UserAnswer
			rq.UserAnswer = &ua
			rq.IsCorrect = a.IsCorrect
			rq.ManualScore = a.ManualScore
		}
		review.Questions = append(review.Questions, rq)
	}
	return review, nil
}

// ─── Internals ──────────────────────────────────────────────────────

func (s *ExamSessionService) load(ctx context.Context, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.stores.Sessions.GetByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

func (s *ExamSessionService) completedSession(ctx context.Context, candidateID string, sessionID uuid.UUID) (*model.ExamSession, error) {
	sess, err := s.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}
	switch sess.Status {
	case model.SessionStatusInProgress:
		return nil, ErrSessionInProgress
	case model.SessionStatusTerminated:
		return nil, ErrSessionTerminated
	}
	return sess, nil
}

// enforce applies the checks every touchpoint repeats: a session at the
// warning threshold is terminated, a session past its deadline is completed.
func (s *ExamSessionService) enforce(ctx context.Context, sess *model.ExamSession) (*model.ExamSession, error) {
	if sess.Status != model.SessionStatusInProgress {
		return sess, nil
	}
	if sess.WarningCount >= s.cfg.WarningThreshold {
		return s.transition(ctx, sess, model.SessionStatusTerminated, model.EndReasonCheating)
	}
	if sess.Remaining(s.now()) <= 0 {
		return s.transition(ctx, sess, model.SessionStatusCompleted, model.EndReasonTimeExpired)
	}
	return sess, nil
}

// transition performs the conditional status update. A caller that loses the
// race gets the winner's terminal state back instead of an error.
func (s *ExamSessionService) transition(ctx context.Context, sess *model.ExamSession, to model.SessionStatus, reason model.EndReason) (*model.ExamSession, error) {
	at := s.now().UTC()
	if reason == model.EndReasonTimeExpired {
		at = sess.Deadline().UTC()
	}

	won, err := s.stores.Sessions.Transition(ctx, sess.ID, to, reason, at)
	if err != nil {
		return nil, fmt.Errorf("transition session: %w", err)
	}
	if !won {
		return s.load(ctx, sess.ID)
	}

	updated := *sess
	updated.Status = to
	updated.EndReason = &reason
	updated.EndTime = &at

	s.metrics.SessionTransitions.WithLabelValues(string(to), string(reason)).Inc()
	s.log.Info().
		Str("session_id", sess.ID.String()).
		Str("candidate_id", sess.CandidateID).
		Str("status", string(to)).
		Str("reason", string(reason)).
		Msg("Session ended")
	s.publish(ctx, model.MonitorEvent{
		Type:         model.MonitorSessionEnded,
		SessionID:    sess.ID,
		CandidateID:  sess.CandidateID,
		Status:       to,
		WarningCount: sess.WarningCount,
		At:           at,
	})

	// The transition is already durable; a scoring failure only queues a retry.
	if _, err := s.scorer.Score(ctx, sess.ID); err != nil {
		s.log.Error().Err(err).Str("session_id", sess.ID.String()).Msg("Scoring after session end failed")
		s.enqueueRescore(ctx, sess.ID)
	}
	return &updated, nil
}

func (s *ExamSessionService) state(sess *model.ExamSession) SessionState {
	st := SessionState{
		SessionID:         sess.ID,
		Status:            sess.Status,
		EndReason:         sess.EndReason,
		StartTime:         sess.StartTime,
		WarningCount:      sess.WarningCount,
		SessionDirectives: model.DirectivesFor(sess),
	}
	if sess.Status == model.SessionStatusInProgress {
		st.RemainingSeconds = sess.RemainingSeconds(s.now())
	}
	return st
}

// paper returns the sanitized questions, rebuilding the cache entry on a miss.
func (s *ExamSessionService) paper(ctx context.Context, sess *model.ExamSession) ([]model.QuestionForCandidate, error) {
	cached, ok, err := s.cache.GetPaper(ctx, sess.ID)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sess.ID.String()).Msg("Paper cache read failed, using database")
	}
	if ok {
		return cached, nil
	}

	questions, err := s.orderedQuestions(ctx, sess)
	if err != nil {
		return nil, err
	}
	paper := model.SanitizeQuestions(questions)
	_ = s.cache.SetPaper(ctx, sess.ID, paper, s.paperTTL(sess))
	return paper, nil
}

func (s *ExamSessionService) orderedQuestions(ctx context.Context, sess *model.ExamSession) ([]model.Question, error) {
	qs, err := s.stores.Questions.GetByIDs(ctx, sess.SelectedQuestions)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	byID := make(map[uuid.UUID]model.Question, len(qs))
	for _, q := range qs {
		byID[q.ID] = q
	}
	ordered := make([]model.Question, 0, len(sess.SelectedQuestions))
	for _, id := range sess.SelectedQuestions {
		q, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrQuestionNotFound, id)
		}
		ordered = append(ordered, q)
	}
	return ordered, nil
}

func (s *ExamSessionService) paperTTL(sess *model.ExamSession) time.Duration {
	return time.Duration(sess.DurationSeconds)*time.Second + s.cfg.PaperCacheGrace
}

// withDefaults fills template fields left at zero from the engine config.
func (s *ExamSessionService) withDefaults(t *model.ExamTemplate) *model.ExamTemplate {
	out := *t
	if out.DurationMinutes <= 0 {
		out.DurationMinutes = s.cfg.DurationMinutes
	}
	if out.QuestionCount <= 0 {
		out.QuestionCount = s.cfg.QuestionCount
	}
	if out.MinQuestionCount <= 0 {
		out.MinQuestionCount = s.cfg.MinQuestionCount
	}
	if out.EasyPerDimension <= 0 && out.MediumPerDimension <= 0 {
		out.EasyPerDimension = s.cfg.EasyPerDimension
		out.MediumPerDimension = s.cfg.MediumPerDimension
	}
	return &out
}

func (s *ExamSessionService) enqueueRescore(ctx context.Context, sessionID uuid.UUID) {
	if err := s.cache.EnqueueRescore(ctx, sessionID); err != nil {
		s.log.Error().Err(err).Str("session_id", sessionID.String()).Msg("Failed to queue rescore")
	}
}

func (s *ExamSessionService) publish(ctx context.Context, ev model.MonitorEvent) {
	if err := s.cache.Publish(ctx, ev); err != nil {
		s.log.Debug().Err(err).Str("type", ev.Type).Msg("Monitor publish failed")
	}
}
