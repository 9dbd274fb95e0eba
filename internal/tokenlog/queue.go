package tokenlog

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
)

// Queue decouples token-log ingestion from persistence. Forensic logging is
// fire-and-forget and must never sit on the scan request path.
type Queue interface {
	Publish(ctx context.Context, e Entry) error
	Consume(ctx context.Context) (<-chan Entry, error)
}

// InMemory is a minimal channel-backed queue for dev/testing.
type InMemory struct {
	ch chan Entry
}

// NewInMemory creates a bounded in-memory queue.
func NewInMemory(size int) *InMemory {
	return &InMemory{ch: make(chan Entry, size)}
}

// Publish enqueues an entry.
func (q *InMemory) Publish(ctx context.Context, e Entry) error {
	select {
	case q.ch <- e:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Consume returns a channel for workers.
func (q *InMemory) Consume(ctx context.Context) (<-chan Entry, error) {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for {
			select {
			case e := <-q.ch:
				out <- e
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// RedisQueue implements a Redis list-backed queue of JSON entries.
type RedisQueue struct {
	client *redis.Client
	key    string
}

// NewRedisQueue builds a queue using LPUSH/BRPOP semantics.
func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	if key == "" {
		key = "checkin:tokenlogs"
	}
	return &RedisQueue{client: client, key: key}
}

// Publish enqueues an entry.
func (q *RedisQueue) Publish(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return q.client.LPush(ctx, q.key, data).Err()
}

// Consume streams entries using BRPOP. Entries that fail to decode are dropped.
func (q *RedisQueue) Consume(ctx context.Context) (<-chan Entry, error) {
	out := make(chan Entry)
	go func() {
		defer close(out)
		for {
			res, err := q.client.BRPop(ctx, 5*time.Second, q.key).Result()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				if ctx.Err() != nil {
					return
				}
				continue
			}
			if len(res) == 2 {
				var e Entry
				if err := json.Unmarshal([]byte(res[1]), &e); err == nil {
					out <- e
				}
			}
		}
	}()
	return out, nil
}
