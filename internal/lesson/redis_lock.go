package lesson

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const lockKeyPrefix = "lesson:turn:"

// RedisLock is a TurnLock shared by every replica using the same Redis.
// The key expires after ttl so a crashed holder cannot wedge a session.
type RedisLock struct {
	client *redis.Client
	ttl    time.Duration
}

var _ TurnLock = (*RedisLock)(nil)

// NewRedisLock creates a RedisLock. ttl should exceed the LLM timeout.
func NewRedisLock(client *redis.Client, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, ttl: ttl}
}

// Acquire sets the session key with NX. The release func deletes the key
// only while it still holds this caller's token.
func (l *RedisLock) Acquire(ctx context.Context, sessionID string) (func(), error) {
	key := lockKeyPrefix + sessionID
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire turn lock: %w", err)
	}
	if !ok {
		return nil, ErrTurnInProgress
	}

	return func() {
		// Release on a fresh context: the request may already be canceled.
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := l.release(releaseCtx, key, token); err != nil {
			logger.WarnContext(ctx, "failed to release turn lock", "session_id", sessionID, "error", err)
		}
	}, nil
}

func (l *RedisLock) release(ctx context.Context, key, token string) error {
	err := l.client.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		if current != token {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		// Key changed between GET and DEL; it is no longer ours.
		return nil
	}
	return err
}
