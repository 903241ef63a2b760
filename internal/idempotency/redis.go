// Package idempotency remembers responses to POST /api/checkout by
// Idempotency-Key so a retried request replays the first order instead of
// failing on the now empty cart.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/andreasstove999/ecommerce-system/checkout-engine-go/internal/apperr"
)

const (
	pendingMarker = "pending"
	// lockTTL bounds how long a crashed request can hold a key.
	lockTTL = time.Minute
)

// ErrInFlight means another request with the same key has not finished.
var ErrInFlight = apperr.Describe(apperr.ErrConflict, "a request with this Idempotency-Key is still in progress")

type Response struct {
	Status int             `json:"status"`
	Body   json.RawMessage `json:"body"`
}

type Store interface {
	// Reserve claims key for scope. A nil Response means the caller owns the
	// key and must Complete or Release it.
	Reserve(ctx context.Context, scope, key string) (*Response, error)
	Complete(ctx context.Context, scope, key string, resp Response) error
	Release(ctx context.Context, scope, key string) error
}

type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}
}

func (s *RedisStore) Reserve(ctx context.Context, scope, key string) (*Response, error) {
	k := storeKey(scope, key)
	ok, err := s.client.SetNX(ctx, k, pendingMarker, lockTTL).Result()
	if err != nil {
		return nil, apperr.Retryable("idempotency store unavailable", fmt.Errorf("redis setnx failed: %w", err))
	}
	if ok {
		return nil, nil
	}

	data, err := s.client.Get(ctx, k).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInFlight
	}
	if err != nil {
		return nil, apperr.Retryable("idempotency store unavailable", fmt.Errorf("redis get failed: %w", err))
	}
	if string(data) == pendingMarker {
		return nil, ErrInFlight
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal stored response failed: %w", err)
	}
	return &resp, nil
}

func (s *RedisStore) Complete(ctx context.Context, scope, key string, resp Response) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("marshal response failed: %w", err)
	}
	if err := s.client.Set(ctx, storeKey(scope, key), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (s *RedisStore) Release(ctx context.Context, scope, key string) error {
	if err := s.client.Del(ctx, storeKey(scope, key)).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func storeKey(scope, key string) string {
	return fmt.Sprintf("idem:%s:%s", scope, key)
}
