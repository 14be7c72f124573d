// Package runlog keeps the most recent sync run reports in Redis so operators
// can pull them without grepping server logs.
package runlog

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	defaultKey  = "agencydesk:sync:runs"
	maxRetained = 50
)

type Store struct {
	client *redis.Client
	key    string
}

// NewStore connects to Redis and verifies the connection.
func NewStore(redisURL string) (*Store, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Store{client: client, key: defaultKey}, nil
}

// NewStoreWithClient creates a store from an existing Redis client.
func NewStoreWithClient(client *redis.Client) *Store {
	return &Store{client: client, key: defaultKey}
}

// Append records a completed run report at the head of the list, trimming the
// list to the retention cap.
func (s *Store) Append(ctx context.Context, report any) error {
	encoded, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal run report: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.LPush(ctx, s.key, encoded)
	pipe.LTrim(ctx, s.key, 0, maxRetained-1)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append run report: %w", err)
	}
	return nil
}

// Recent returns up to limit reports, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]json.RawMessage, error) {
	if limit <= 0 || limit > maxRetained {
		limit = maxRetained
	}
	entries, err := s.client.LRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("list run reports: %w", err)
	}
	reports := make([]json.RawMessage, 0, len(entries))
	for _, entry := range entries {
		reports = append(reports, json.RawMessage(entry))
	}
	return reports, nil
}

// Close closes the Redis connection.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks if Redis is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}
