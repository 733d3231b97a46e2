package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
	"github.com/stemsi/exstem-assessment/internal/service"
)

// SessionScorer recomputes one session's result.
type SessionScorer interface {
	Score(ctx context.Context, sessionID uuid.UUID) (*model.ExamResult, error)
}

// ScoringWorker retries scoring runs that failed when a session ended.
type ScoringWorker struct {
	queue       Queue
	scorer      SessionScorer
	metrics     *metrics.Metrics
	log         zerolog.Logger
	maxAttempts int

	pollTimeout  time.Duration
	errorBackoff time.Duration
	retryBackoff time.Duration
}

// NewScoringWorker creates a new ScoringWorker. Jobs are dropped after
// maxAttempts failed runs.
func NewScoringWorker(queue Queue, scorer SessionScorer, maxAttempts int, m *metrics.Metrics, log zerolog.Logger) *ScoringWorker {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &ScoringWorker{
		queue:        queue,
		scorer:       scorer,
		metrics:      m,
		log:          log.With().Str("component", "scoring_worker").Logger(),
		maxAttempts:  maxAttempts,
		pollTimeout:  PollTimeout,
		errorBackoff: 3 * time.Second,
		retryBackoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled.
func (w *ScoringWorker) Start(ctx context.Context) {
	w.log.Info().Int("max_attempts", w.maxAttempts).Msg("ScoringWorker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("ScoringWorker stopped")
			return
		default:
		}

		raw, ok, err := w.queue.Pop(ctx, w.pollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Dur("backoff", w.errorBackoff).Msg("Queue error, backing off")
			sleep(ctx, w.errorBackoff)
			continue
		}
		if !ok {
			continue
		}

		var job model.RescoreJob
		if err := json.Unmarshal([]byte(raw), &job); err != nil || job.SessionID == uuid.Nil {
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed rescore job")
			continue
		}
		w.process(ctx, job)
	}
}

func (w *ScoringWorker) process(ctx context.Context, job model.RescoreJob) {
	log := w.log.With().Str("session_id", job.SessionID.String()).Int("attempt", job.Attempt).Logger()

	_, err := w.scorer.Score(ctx, job.SessionID)
	switch {
	case err == nil:
		w.metrics.WorkerFlushes.WithLabelValues("scoring", "scored").Inc()
		log.Info().Msg("Rescore succeeded")
		return
	case errors.Is(err, service.ErrSessionNotFound), errors.Is(err, service.ErrSessionInProgress):
		// Nothing to score yet or ever; the session's own end will enqueue again.
		w.metrics.WorkerFlushes.WithLabelValues("scoring", "skipped").Inc()
		log.Warn().Err(err).Msg("Rescore skipped")
		return
	case ctx.Err() != nil:
		// Interrupted by shutdown, the attempt does not count.
		w.retry(context.Background(), job)
		return
	}

	if job.Attempt >= w.maxAttempts {
		w.metrics.WorkerFlushes.WithLabelValues("scoring", "abandoned").Inc()
		log.Error().Err(err).Msg("Rescore abandoned after max attempts")
		return
	}

	log.Warn().Err(err).Msg("Rescore failed, requeueing")
	w.metrics.WorkerFlushes.WithLabelValues("scoring", "requeue").Inc()
	job.Attempt++
	w.retry(ctx, job)
	sleep(ctx, w.retryBackoff)
}

func (w *ScoringWorker) retry(ctx context.Context, job model.RescoreJob) {
	pushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
	defer cancel()

	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := w.queue.Push(pushCtx, string(data)); err != nil {
		w.log.Error().Err(err).Str("session_id", job.SessionID.String()).Msg("CRITICAL: Failed to requeue rescore job")
	}
}
