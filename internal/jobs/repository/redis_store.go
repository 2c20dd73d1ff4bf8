package repository

import (
	"context"
	"errors"
	"fmt"

	"shopfloor_backend/internal/jobs/domain"

	"github.com/redis/go-redis/v9"
)

// DefaultRedisKey holds the snapshot document when no key is configured.
const DefaultRedisKey = "shopfloor:jobs:snapshot"

// RedisStore keeps the snapshot document under a single key.
type RedisStore struct {
	client *redis.Client
	key    string
}

// NewRedisStore wraps client. The store owns the client and closes it.
func NewRedisStore(client *redis.Client, key string) *RedisStore {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisStore{client: client, key: key}
}

func (s *RedisStore) Name() string { return "redis" }

func (s *RedisStore) Load(ctx context.Context) ([]*domain.Job, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return []*domain.Job{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot key %s: %w", s.key, err)
	}
	return decodeSnapshot(data)
}

func (s *RedisStore) Save(ctx context.Context, jobs []*domain.Job) error {
	data, err := encodeSnapshot(jobs)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("write snapshot key %s: %w", s.key, err)
	}
	return nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

var _ Store = (*RedisStore)(nil)
