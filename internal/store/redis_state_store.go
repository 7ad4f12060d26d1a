package store

import (
	"context"
	"fmt"
	"time"

	"github.com/devrev/kvring/internal/model"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RedisStateStore keeps the cluster state as one JSON document
type RedisStateStore struct {
	client *redis.Client
	key    string
	logger *zap.Logger
}

// NewRedisStateStore creates a new Redis state store
func NewRedisStateStore(host string, port int, password string, db int, key string, logger *zap.Logger) (*RedisStateStore, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisStateStore(client, key, logger), nil
}

func newRedisStateStore(client *redis.Client, key string, logger *zap.Logger) *RedisStateStore {
	if key == "" {
		key = "kvring:cluster"
	}
	return &RedisStateStore{
		client: client,
		key:    key,
		logger: logger,
	}
}

// Load retrieves the saved state
func (s *RedisStateStore) Load(ctx context.Context) (*model.ClusterState, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if err == redis.Nil {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster state: %w", err)
	}
	return decodeState(data)
}

// Save replaces the saved state
func (s *RedisStateStore) Save(ctx context.Context, state *model.ClusterState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, s.key, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to save cluster state: %w", err)
	}
	s.logger.Debug("Cluster state saved", zap.String("key", s.key), zap.Int("bytes", len(data)))
	return nil
}

// Ping checks the Redis connection
func (s *RedisStateStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close closes the Redis client
func (s *RedisStateStore) Close() error {
	return s.client.Close()
}
