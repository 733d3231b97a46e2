package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// AntiCheatService keeps the cheat event ledger and escalates tab switches
// into warnings and, at the threshold, termination.
type AntiCheatService struct {
	sessions *ExamSessionService
	stores   Stores
	cache    ExamCache
	cfg      config.ExamConfig
	metrics  *metrics.Metrics
	log      zerolog.Logger
	now      func() time.Time
}

// NewAntiCheatService creates a new AntiCheatService.
func NewAntiCheatService(sessions *ExamSessionService, stores Stores, cache ExamCache, cfg config.ExamConfig, m *metrics.Metrics, log zerolog.Logger) *AntiCheatService {
	return &AntiCheatService{
		sessions: sessions,
		stores:   stores,
		cache:    cache,
		cfg:      cfg,
		metrics:  m,
		log:      log.With().Str("component", "anticheat_service").Logger(),
		now:      time.Now,
	}
}

// RecordEvent logs a reported event. Only tab switches against an
// in_progress session move the warning count.
func (s *AntiCheatService) RecordEvent(ctx context.Context, candidateID string, sessionID uuid.UUID, req model.CheatEventRequest) (*model.CheatOutcome, error) {
	if !req.EventType.Valid() {
		return nil, ErrUnknownCheatEvent
	}

	sess, err := s.sessions.Resolve(ctx, candidateID, sessionID)
	if err != nil {
		return nil, err
	}

	event := s.newEvent(sess.ID, req)
	s.metrics.CheatEvents.WithLabelValues(string(event.EventType)).Inc()

	if sess.Status.IsTerminal() {
		// Late events are kept for review but change nothing.
		if err := s.stores.CheatEvents.Append(ctx, event); err != nil {
			return nil, fmt.Errorf("append cheat event: %w", err)
		}
		return s.outcome(sess, false), nil
	}

	if !req.EventType.Counts() {
		s.ingest(ctx, event)
		s.publish(ctx, sess, event, sess.WarningCount)
		return s.outcome(sess, false), nil
	}

	count, incremented, err := s.stores.CheatEvents.AppendCounted(ctx, event)
	if err != nil {
		return nil, fmt.Errorf("append counted event: %w", err)
	}
	if !incremented {
		// The session ended between Resolve and the increment.
		latest, err := s.sessions.load(ctx, sess.ID)
		if err != nil {
			return nil, err
		}
		return s.outcome(latest, false), nil
	}

	sess.WarningCount = count
	s.publish(ctx, sess, event, count)
	s.log.Warn().
		Str("session_id", sess.ID.String()).
		Str("candidate_id", sess.CandidateID).
		Int("warning_count", count).
		Msg("Tab switch counted")

	if count >= s.cfg.WarningThreshold {
		if sess, err = s.sessions.transition(ctx, sess, model.SessionStatusTerminated, model.EndReasonCheating); err != nil {
			return nil, err
		}
	}
	return s.outcome(sess, true), nil
}

// WarningLevelFor maps a warning count to the severity shown to the candidate.
func WarningLevelFor(count, threshold int) model.WarningLevel {
	switch {
	case count <= 0:
		return model.WarningNone
	case count >= threshold:
		return model.WarningTerminated
	case count == threshold-1:
		return model.WarningFinal
	default:
		return model.WarningFirst
	}
}

func (s *AntiCheatService) outcome(sess *model.ExamSession, counted bool) *model.CheatOutcome {
	out := &model.CheatOutcome{
		Logged:            true,
		Counted:           counted,
		WarningCount:      sess.WarningCount,
		Status:            sess.Status,
		Terminated:        sess.Status == model.SessionStatusTerminated,
		SessionDirectives: model.DirectivesFor(sess),
	}
	if counted || out.Terminated {
		out.WarningLevel = WarningLevelFor(sess.WarningCount, s.cfg.WarningThreshold)
		if out.Terminated {
			out.WarningLevel = model.WarningTerminated
		}
	}
	return out
}

func (s *AntiCheatService) newEvent(sessionID uuid.UUID, req model.CheatEventRequest) *model.CheatEvent {
	now := s.now().UTC()
	occurred := now
	if req.OccurredAt != nil && req.OccurredAt.Before(now) {
		occurred = req.OccurredAt.UTC()
	}
	return &model.CheatEvent{
		SessionID:  sessionID,
		EventType:  req.EventType,
		OccurredAt: occurred,
		Metadata:   req.Metadata,
		RecordedAt: now,
	}
}

// ingest queues an uncounted event for the batch writer, writing it directly
// when the queue is unavailable.
func (s *AntiCheatService) ingest(ctx context.Context, e *model.CheatEvent) {
	err := s.cache.EnqueueCheatEvent(ctx, e)
	if err == nil {
		return
	}
	s.log.Warn().Err(err).Str("session_id", e.SessionID.String()).Msg("Cheat queue unavailable, writing directly")
	if err := s.stores.CheatEvents.Append(ctx, e); err != nil {
		s.log.Error().Err(err).Str("session_id", e.SessionID.String()).Str("type", string(e.EventType)).Msg("Failed to persist cheat event")
	}
}

func (s *AntiCheatService) publish(ctx context.Context, sess *model.ExamSession, e *model.CheatEvent, count int) {
	_ = s.cache.Publish(ctx, model.MonitorEvent{
		Type:         model.MonitorCheatEvent,
		SessionID:    sess.ID,
		CandidateID:  sess.CandidateID,
		Status:       sess.Status,
		EventType:    e.EventType,
		WarningCount: count,
		At:           e.OccurredAt,
	})
}
