package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// Redis is a Queue backed by a Redis list (LPUSH / BRPOP). Jobs survive a
// process restart as long as Redis does.
type Redis struct {
	client *redis.Client
	key    string
}

// NewRedis builds a Redis-backed queue and verifies connectivity.
func NewRedis(ctx context.Context, addr, password string, db int, key string) (*Redis, error) {
	if key == "" {
		key = "nexo:inbound"
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("queue: redis ping: %w", err)
	}
	return &Redis{client: client, key: key}, nil
}

// Enqueue pushes a job onto the list head.
func (r *Redis) Enqueue(ctx context.Context, j Job) error {
	b, err := j.Encode()
	if err != nil {
		return fmt.Errorf("queue: encode job: %w", err)
	}
	if err := r.client.LPush(ctx, r.key, b).Err(); err != nil {
		return fmt.Errorf("queue: lpush: %w", err)
	}
	return nil
}

// Dequeue blocks on the list tail. Poison entries (undecodable payloads) are
// logged and skipped rather than wedging the worker.
func (r *Redis) Dequeue(ctx context.Context) (Job, error) {
	for {
		res, err := r.client.BRPop(ctx, 5*time.Second, r.key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return Job{}, err
			}
			return Job{}, fmt.Errorf("queue: brpop: %w", err)
		}
		// BRPop returns [key, value].
		if len(res) != 2 {
			continue
		}
		j, derr := DecodeJob([]byte(res[1]))
		if derr != nil {
			log.Warn().Err(derr).Msg("dropping undecodable queue entry")
			continue
		}
		return j, nil
	}
}

// Close releases the Redis connection.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Len reports the queue depth, for diagnostics and tests.
func (r *Redis) Len(ctx context.Context) (int64, error) {
	return r.client.LLen(ctx, r.key).Result()
}
