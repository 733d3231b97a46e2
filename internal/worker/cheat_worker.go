package worker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-assessment/internal/metrics"
	"github.com/stemsi/exstem-assessment/internal/model"
)

const (
	BatchSize    = 50
	BatchTimeout = 2 * time.Second
	PollTimeout  = 1 * time.Second // Must be >= 1s to satisfy Redis

	shutdownFlushTimeout = 5 * time.Second
)

// CheatEventWriter persists queued cheat events.
type CheatEventWriter interface {
	CopyEvents(ctx context.Context, events []model.CheatEvent) (int64, error)
	Append(ctx context.Context, e *model.CheatEvent) error
}

// CheatWorker drains uncounted cheat events into the ledger in batches.
type CheatWorker struct {
	queue   Queue
	store   CheatEventWriter
	metrics *metrics.Metrics
	log     zerolog.Logger

	batchSize      int
	batchTimeout   time.Duration
	pollTimeout    time.Duration
	errorBackoff   time.Duration
	requeueBackoff time.Duration
}

// NewCheatWorker creates a new CheatWorker.
func NewCheatWorker(queue Queue, store CheatEventWriter, m *metrics.Metrics, log zerolog.Logger) *CheatWorker {
	return &CheatWorker{
		queue:          queue,
		store:          store,
		metrics:        m,
		log:            log.With().Str("component", "cheat_worker").Logger(),
		batchSize:      BatchSize,
		batchTimeout:   BatchTimeout,
		pollTimeout:    PollTimeout,
		errorBackoff:   3 * time.Second,
		requeueBackoff: 2 * time.Second,
	}
}

// Start runs until ctx is cancelled, then flushes what it holds.
func (w *CheatWorker) Start(ctx context.Context) {
	w.log.Info().Msg("CheatWorker started")

	buffer := make([]model.CheatEvent, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		select {
		case <-ctx.Done():
			w.shutdown(buffer)
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

		var e model.CheatEvent
		if err := json.Unmarshal([]byte(raw), &e); err != nil {
			// Malformed payloads can never succeed.
			w.log.Error().Err(err).Str("data", raw).Msg("Discarding malformed cheat event")
			continue
		}
		buffer = append(buffer, e)
	}
}

// flushSafe tries COPY, then row inserts, then puts failed rows back.
func (w *CheatWorker) flushSafe(ctx context.Context, batch []model.CheatEvent) {
	_, err := w.store.CopyEvents(ctx, batch)
	if err == nil {
		w.metrics.WorkerFlushes.WithLabelValues("cheat", "copy").Inc()
		w.log.Debug().Int("count", len(batch)).Msg("Cheat events flushed")
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.CheatEvent
	for i := range batch {
		e := batch[i]
		if err := w.store.Append(ctx, &e); err != nil {
			w.log.Error().Err(err).Str("session_id", e.SessionID.String()).Msg("Insert failed, requeueing")
			failed = append(failed, e)
		}
	}

	if len(failed) == 0 {
		w.metrics.WorkerFlushes.WithLabelValues("cheat", "fallback").Inc()
		return
	}
	w.metrics.WorkerFlushes.WithLabelValues("cheat", "requeue").Inc()
	w.requeue(ctx, failed)
}

func (w *CheatWorker) requeue(ctx context.Context, events []model.CheatEvent) {
	items := make([]string, 0, len(events))
	for i := range events {
		data, err := json.Marshal(&events[i])
		if err != nil {
			continue
		}
		items = append(items, string(data))
	}

	if err := w.queue.Push(ctx, items...); err != nil {
		w.log.Error().Err(err).Int("count", len(items)).Msg("CRITICAL: Failed to requeue cheat events. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed cheat events")
	sleep(ctx, w.requeueBackoff)
}

func (w *CheatWorker) shutdown(buffer []model.CheatEvent) {
	w.log.Info().Int("pending", len(buffer)).Msg("CheatWorker stopping, flushing remaining buffer")
	if len(buffer) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
	defer cancel()
	w.flushSafe(ctx, buffer)
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
