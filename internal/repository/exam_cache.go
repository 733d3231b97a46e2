package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stemsi/exstem-assessment/internal/config"
	"github.com/stemsi/exstem-assessment/internal/model"
)

// ExamCache is the Redis side of the engine: the sanitized paper cache, the
// worker queues and the monitor PubSub channels.
type ExamCache struct {
	rdb *redis.Client
}

// NewExamCache creates a new ExamCache.
func NewExamCache(rdb *redis.Client) *ExamCache {
	return &ExamCache{rdb: rdb}
}

// SetPaper caches a session's sanitized paper until ttl elapses.
func (c *ExamCache) SetPaper(ctx context.Context, sessionID uuid.UUID, paper []model.QuestionForCandidate, ttl time.Duration) error {
	data, err := json.Marshal(paper)
	if err != nil {
		return fmt.Errorf("marshal paper: %w", err)
	}
	return c.rdb.Set(ctx, config.CacheKey.SessionPaperKey(sessionID.String()), data, ttl).Err()
}

// GetPaper returns the cached paper. A miss is reported with ok = false.
func (c *ExamCache) GetPaper(ctx context.Context, sessionID uuid.UUID) ([]model.QuestionForCandidate, bool, error) {
	data, err := c.rdb.Get(ctx, config.CacheKey.SessionPaperKey(sessionID.String())).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var paper []model.QuestionForCandidate
	if err := json.Unmarshal(data, &paper); err != nil {
		// A corrupt entry behaves like a miss and gets rebuilt.
		return nil, false, nil
	}
	return paper, true, nil
}

// EnqueueCheatEvent pushes an uncounted event for the batch writer.
func (c *ExamCache) EnqueueCheatEvent(ctx context.Context, e *model.CheatEvent) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal cheat event: %w", err)
	}
	return c.rdb.RPush(ctx, config.WorkerKey.CheatEventsQueue, data).Err()
}

// EnqueueRescore schedules a first scoring retry for the session.
func (c *ExamCache) EnqueueRescore(ctx context.Context, sessionID uuid.UUID) error {
	return c.EnqueueRescoreJob(ctx, model.RescoreJob{SessionID: sessionID, Attempt: 1})
}

// EnqueueRescoreJob pushes a rescore job carrying its attempt number.
func (c *ExamCache) EnqueueRescoreJob(ctx context.Context, job model.RescoreJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshal rescore job: %w", err)
	}
	return c.rdb.RPush(ctx, config.WorkerKey.RescoreQueue, data).Err()
}

// Publish fans the event out to the session channel and the global monitor
// channel in one round trip.
func (c *ExamCache) Publish(ctx context.Context, ev model.MonitorEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal monitor event: %w", err)
	}
	pipe := c.rdb.Pipeline()
	pipe.Publish(ctx, config.CacheKey.SessionMonitorChannel(ev.SessionID.String()), data)
	pipe.Publish(ctx, config.CacheKey.MonitorChannel(), data)
	_, err = pipe.Exec(ctx)
	return err
}

// Subscribe streams raw monitor payloads. With a nil sessionID it listens on
// the global channel, otherwise on that session's channel.
func (c *ExamCache) Subscribe(ctx context.Context, sessionID *uuid.UUID) (<-chan string, func()) {
	channel := config.CacheKey.MonitorChannel()
	if sessionID != nil {
		channel = config.CacheKey.SessionMonitorChannel(sessionID.String())
	}
	pubsub := c.rdb.Subscribe(ctx, channel)
	ch := pubsub.Channel()

	out := make(chan string)
	done := make(chan struct{})
	go func() {
		defer close(out)
		for {
			select {
			case <-done:
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			close(done)
			_ = pubsub.Close()
		})
	}
}

// QueueDepths returns the backlog of each worker queue.
func (c *ExamCache) QueueDepths(ctx context.Context) (map[string]int64, error) {
	queues := []string{config.WorkerKey.CheatEventsQueue, config.WorkerKey.RescoreQueue}

	pipe := c.rdb.Pipeline()
	cmds := make([]*redis.IntCmd, len(queues))
	for i, q := range queues {
		cmds[i] = pipe.LLen(ctx, q)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, err
	}

	depths := make(map[string]int64, len(queues))
	for i, q := range queues {
		depths[q] = cmds[i].Val()
	}
	return depths, nil
}
