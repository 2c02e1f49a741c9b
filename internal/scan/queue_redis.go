package scan

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"manifestgate/pkg/sentinel"
)

// RedisQueue backs the scan queue with a Redis list so multiple nodes share
// one backlog. Capacity is enforced at enqueue time against LLEN.
type RedisQueue struct {
	client   *redis.Client
	key      string
	capacity int64
}

func NewRedisQueue(client *redis.Client, key string, capacity int64) *RedisQueue {
	if key == "" {
		key = "manifestgate:scan:queue"
	}
	return &RedisQueue{client: client, key: key, capacity: capacity}
}

func (q *RedisQueue) Enqueue(ctx context.Context, ticketID string) error {
	if q.capacity > 0 {
		depth, err := q.client.LLen(ctx, q.key).Result()
		if err != nil {
			return fmt.Errorf("scan queue depth: %w", err)
		}
		if depth >= q.capacity {
			return sentinel.ErrQueueFull
		}
	}
	if err := q.client.LPush(ctx, q.key, ticketID).Err(); err != nil {
		return fmt.Errorf("scan queue push: %w", err)
	}
	return nil
}

// Dequeue blocks in short intervals so context cancellation is honored
// between polls.
func (q *RedisQueue) Dequeue(ctx context.Context) (string, error) {
	for {
		values, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", fmt.Errorf("scan queue pop: %w", err)
		}
		// BRPOP returns [key, value].
		return values[1], nil
	}
}
