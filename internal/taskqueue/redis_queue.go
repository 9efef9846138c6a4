package taskqueue

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisQueue is a Queue backed by a Redis list: LPUSH to enqueue, BRPOP
// to dequeue. Tasks are gob-encoded. FIFO per list; Priority and
// NotBefore are not enforced by this backend.
type RedisQueue struct {
	client *redis.Client
	key    string
}

var _ Queue = (*RedisQueue)(nil)

// NewRedisQueue creates a RedisQueue on the given list key.
// An empty key defaults to "flowgraph:tasks".
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "flowgraph:tasks"
	}
	return &RedisQueue{client: client, key: key}
}

func (q *RedisQueue) Enqueue(ctx context.Context, t Task) error {
	if t.EnqueuedAt.IsZero() {
		t.EnqueuedAt = time.Now()
	}
	data, err := encodeTask(t)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

func (q *RedisQueue) Dequeue(ctx context.Context) (*Task, error) {
	for {
		// A finite block timeout keeps us responsive to ctx cancellation.
		res, err := q.client.BRPop(ctx, time.Second, q.key).Result()
		if errors.Is(err, redis.Nil) {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			default:
				continue
			}
		}
		if err != nil {
			return nil, err
		}
		// BRPOP returns [key, value].
		if len(res) != 2 {
			continue
		}
		return decodeTask([]byte(res[1]))
	}
}

func (q *RedisQueue) Len() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}
