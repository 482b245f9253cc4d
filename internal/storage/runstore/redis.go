package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"clinical-notes-service/internal/models"
)

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	TTL       time.Duration
}

// RedisStore keeps results as JSON values with an expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects and pings Redis.
func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewRedisStoreWithClient(client, cfg.KeyPrefix, cfg.TTL), nil
}

// NewRedisStoreWithClient wraps an existing client.
func NewRedisStoreWithClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	if prefix == "" {
		prefix = "clinical-notes:run:"
	}
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

// Name identifies the store as a result sink.
func (s *RedisStore) Name() string {
	return "redis-runstore"
}

// RecordResult saves result.
func (s *RedisStore) RecordResult(ctx context.Context, result *models.PipelineResult) error {
	return s.Save(ctx, result)
}

// Save writes result under its run ID.
func (s *RedisStore) Save(ctx context.Context, result *models.PipelineResult) error {
	if result == nil || result.RunID == "" {
		return errors.New("result without run id")
	}
	data, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode result: %w", err)
	}
	return s.client.Set(ctx, s.key(result.RunID), data, s.ttl).Err()
}

// Get loads the result of runID.
func (s *RedisStore) Get(ctx context.Context, runID string) (*models.PipelineResult, error) {
	data, err := s.client.Get(ctx, s.key(runID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var result models.PipelineResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(runID string) string {
	return s.prefix + runID
}
