// Package session persists chart sessions so they survive an API restart.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"orgchart/api/internal/orgchart"
)

const DefaultTTL = 12 * time.Hour

var ErrNotFound = errors.New("chart session not found or expired")

// record is the JSON stored for each chart.
type record struct {
	State   orgchart.State `json:"state"`
	SavedAt time.Time      `json:"saved_at"`
}

// RedisStore keeps chart state in Redis with a sliding expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore creates a new Redis-backed chart store
func NewRedisStore(redisURL string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewRedisStoreWithClient(client, ttl), nil
}

// NewRedisStoreWithClient creates a store from an existing Redis client
func NewRedisStoreWithClient(client *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisStore{
		client: client,
		prefix: "chart:",
		ttl:    ttl,
	}
}

func (s *RedisStore) key(chartID string) string {
	return s.prefix + chartID
}

// Save stores the chart state and restarts its expiry.
func (s *RedisStore) Save(ctx context.Context, chartID string, state orgchart.State) error {
	data, err := json.Marshal(record{State: state, SavedAt: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal chart state: %w", err)
	}
	if err := s.client.Set(ctx, s.key(chartID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save chart %s: %w", chartID, err)
	}
	return nil
}

// Load returns the saved state and extends its expiry.
func (s *RedisStore) Load(ctx context.Context, chartID string) (orgchart.State, error) {
	key := s.key(chartID)
	data, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return orgchart.State{}, ErrNotFound
	}
	if err != nil {
		return orgchart.State{}, fmt.Errorf("load chart %s: %w", chartID, err)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return orgchart.State{}, fmt.Errorf("unmarshal chart %s: %w", chartID, err)
	}

	if err := s.client.Expire(ctx, key, s.ttl).Err(); err != nil {
		return orgchart.State{}, fmt.Errorf("touch chart %s: %w", chartID, err)
	}
	return rec.State, nil
}

func (s *RedisStore) Delete(ctx context.Context, chartID string) error {
	if err := s.client.Del(ctx, s.key(chartID)).Err(); err != nil {
		return fmt.Errorf("delete chart %s: %w", chartID, err)
	}
	return nil
}

// Close closes the Redis connection
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
