// Package redis provides a Redis-backed RecordingStore for deployments where
// recordings must outlive the traced process or be shared across nodes.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/tjfontaine/callscope/internal/core/domain"
	"github.com/tjfontaine/callscope/internal/core/ports"
	"github.com/tjfontaine/callscope/internal/storage"
)

// Config holds Redis connection configuration.
type Config struct {
	// Addr is the Redis server address (host:port).
	Addr string
	// Password is the Redis password (optional).
	Password string
	// DB is the Redis database number.
	DB int
	// Prefix is the key prefix for all recording keys (default: "callscope:").
	Prefix string
	// TTL is the recording expiry duration (0 = never expire).
	TTL time.Duration
	// PoolSize is the connection pool size (default: 10).
	PoolSize int
}

// Store is a Redis implementation of RecordingStore
type Store struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

var _ storage.RecordingStore = (*Store)(nil)

// New creates a new Redis store and verifies the connection.
func New(cfg Config) (*Store, error) {
	if cfg.Addr == "" {
		return nil, errors.New("redis address is required")
	}

	poolSize := cfg.PoolSize
	if poolSize <= 0 {
		poolSize = 10
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: poolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewFromClient(client, cfg.Prefix, cfg.TTL), nil
}

// NewFromClient creates a store from an existing client. Useful for testing
// with miniredis.
func NewFromClient(client *redis.Client, prefix string, ttl time.Duration) *Store {
	if prefix == "" {
		prefix = "callscope:"
	}
	return &Store{
		client: client,
		prefix: prefix,
		ttl:    ttl,
	}
}

// Key helpers
func (s *Store) dataKey(id string) string {
	return s.prefix + "recording:" + id
}

func (s *Store) summaryKey(id string) string {
	return s.prefix + "summary:" + id
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

func (s *Store) SaveRecording(ctx context.Context, rec *domain.Recording) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal recording: %w", err)
	}
	summary, err := json.Marshal(ports.Summarize(rec))
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	pipe := s.client.Pipeline()
	pipe.Set(ctx, s.dataKey(rec.ID), data, s.ttl)
	pipe.Set(ctx, s.summaryKey(rec.ID), summary, s.ttl)
	// Score by creation time so listings come back newest first.
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(rec.CreatedAt.UnixNano()),
		Member: rec.ID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save recording: %w", err)
	}

	return nil
}

func (s *Store) GetRecording(ctx context.Context, id string) (*domain.Recording, error) {
	data, err := s.client.Get(ctx, s.dataKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
		}
		return nil, fmt.Errorf("get recording: %w", err)
	}

	var rec domain.Recording
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal recording: %w", err)
	}

	return &rec, nil
}

func (s *Store) ListRecordings(ctx context.Context, opts storage.ListOptions) ([]*storage.RecordingSummary, error) {
	limit := opts.Limit
	if limit == 0 {
		limit = 100 // default limit
	}
	start := int64(opts.Offset)
	stop := start + int64(limit) - 1

	ids, err := s.client.ZRevRange(ctx, s.indexKey(), start, stop).Result()
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}

	summaries := make([]*storage.RecordingSummary, 0, len(ids))
	for _, id := range ids {
		data, err := s.client.Get(ctx, s.summaryKey(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			// Recording expired out from under its index entry.
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("get summary %s: %w", id, err)
		}

		var sum storage.RecordingSummary
		if err := json.Unmarshal(data, &sum); err != nil {
			return nil, fmt.Errorf("unmarshal summary %s: %w", id, err)
		}
		summaries = append(summaries, &sum)
	}

	return summaries, nil
}

func (s *Store) DeleteRecording(ctx context.Context, id string) error {
	deleted, err := s.client.Del(ctx, s.dataKey(id), s.summaryKey(id)).Result()
	if err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if err := s.client.ZRem(ctx, s.indexKey(), id).Err(); err != nil {
		return fmt.Errorf("remove index entry: %w", err)
	}
	if deleted == 0 {
		return fmt.Errorf("recording %s: %w", id, storage.ErrNotFound)
	}

	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}
