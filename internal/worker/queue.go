package worker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue is a FIFO list the workers drain.
type Queue interface {
	// Pop blocks up to timeout. ok is false when nothing arrived in time.
	Pop(ctx context.Context, timeout time.Duration) (item string, ok bool, err error)
	Push(ctx context.Context, items ...string) error
}

// RedisQueue is a Redis list consumed with BLPOP.
type RedisQueue struct {
	rdb *redis.Client
	key string
}

// NewRedisQueue creates a queue over the list at key.
func NewRedisQueue(rdb *redis.Client, key string) *RedisQueue {
	return &RedisQueue{rdb: rdb, key: key}
}

// Pop waits for the next item. Redis rejects BLPOP timeouts below one second.
func (q *RedisQueue) Pop(ctx context.Context, timeout time.Duration) (string, bool, error) {
	result, err := q.rdb.BLPop(ctx, timeout, q.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(result) < 2 {
		return "", false, nil
	}
	return result[1], true, nil
}

// Push appends the items in one pipeline.
func (q *RedisQueue) Push(ctx context.Context, items ...string) error {
	if len(items) == 0 {
		return nil
	}
	pipe := q.rdb.Pipeline()
	for _, it := range items {
		pipe.RPush(ctx, q.key, it)
	}
	_, err := pipe.Exec(ctx)
	return err
}
