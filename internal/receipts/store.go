// Package receipts keeps recent broadcast results in Redis so callers can
// look up how a fan-out went after the 202 response. Receipts expire; this
// is observability, not delivery tracking.
package receipts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tinywideclouds/gasp-push-gateway/pkg/push"
)

// ErrNotFound is returned when a receipt has expired or never existed.
var ErrNotFound = errors.New("broadcast receipt not found")

type Store struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewStore connects to Redis and fails fast if the connection is bad.
func NewStore(addr, password string, db int, ttl time.Duration) (*Store, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Store{rdb: rdb, ttl: ttl}, nil
}

func (s *Store) Save(ctx context.Context, result push.BroadcastResult) error {
	b, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("marshal receipt: %w", err)
	}
	return s.rdb.Set(ctx, s.key(result.ID), b, s.ttl).Err()
}

func (s *Store) Get(ctx context.Context, id string) (push.BroadcastResult, error) {
	var result push.BroadcastResult
	b, err := s.rdb.Get(ctx, s.key(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return result, ErrNotFound
	}
	if err != nil {
		return result, err
	}
	if err := json.Unmarshal(b, &result); err != nil {
		return result, fmt.Errorf("unmarshal receipt: %w", err)
	}
	return result, nil
}

func (s *Store) Close() error {
	return s.rdb.Close()
}

func (s *Store) key(id string) string {
	return "gasp:broadcast:" + id
}
