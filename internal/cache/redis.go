// Package cache keeps the latest flushed snapshot of every device in Redis.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"tiltmon/internal/tracker"
)

// ErrNotFound is returned by GetLatest when no snapshot is cached for a label.
var ErrNotFound = errors.New("no cached snapshot")

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to Redis and verifies the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     4,
		MinIdleConns: 1,
		MaxRetries:   3,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisCache{client: client, ttl: ttl}, nil
}

func snapshotKey(label string) string {
	return "tilt:latest:" + strings.ToLower(label)
}

// StoreSnapshot overwrites the cached snapshot of s.Label.
func (r *RedisCache) StoreSnapshot(ctx context.Context, s tracker.Snapshot) error {
	if s.Label == "" {
		return fmt.Errorf("store snapshot: device %d has no label", s.DeviceID)
	}
	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return r.client.Set(ctx, snapshotKey(s.Label), data, r.ttl).Err()
}

// GetLatest returns the cached snapshot of label.
func (r *RedisCache) GetLatest(ctx context.Context, label string) (tracker.Snapshot, error) {
	data, err := r.client.Get(ctx, snapshotKey(label)).Bytes()
	if errors.Is(err, redis.Nil) {
		return tracker.Snapshot{}, fmt.Errorf("%w for %s", ErrNotFound, label)
	}
	if err != nil {
		return tracker.Snapshot{}, err
	}
	var s tracker.Snapshot
	if err := json.Unmarshal(data, &s); err != nil {
		return tracker.Snapshot{}, fmt.Errorf("decode cached snapshot: %w", err)
	}
	return s, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
