package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/devrev/kvring/internal/model"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

const createStateTable = `
	CREATE TABLE IF NOT EXISTS cluster_state (
		name         TEXT PRIMARY KEY,
		state        JSONB NOT NULL,
		ring_version BIGINT NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL
	)
`

// PostgresStateStore keeps the cluster state in a single row
type PostgresStateStore struct {
	pool   *pgxpool.Pool
	name   string
	logger *zap.Logger
}

// NewPostgresStateStore creates a new PostgreSQL state store and ensures
// its table exists
func NewPostgresStateStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	name string,
	logger *zap.Logger,
) (*PostgresStateStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := pool.Exec(ctx, createStateTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create cluster_state table: %w", err)
	}

	if name == "" {
		name = "kvring:cluster"
	}
	return &PostgresStateStore{
		pool:   pool,
		name:   name,
		logger: logger,
	}, nil
}

// Load retrieves the saved state
func (s *PostgresStateStore) Load(ctx context.Context) (*model.ClusterState, error) {
	query := `
		SELECT state
		FROM cluster_state
		WHERE name = $1
	`

	var data []byte
	err := s.pool.QueryRow(ctx, query, s.name).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cluster state: %w", err)
	}
	return decodeState(data)
}

// Save upserts the state row
func (s *PostgresStateStore) Save(ctx context.Context, state *model.ClusterState) error {
	data, err := encodeState(state)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO cluster_state (name, state, ring_version, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE
		SET state = EXCLUDED.state,
			ring_version = EXCLUDED.ring_version,
			updated_at = EXCLUDED.updated_at
	`

	_, err = s.pool.Exec(ctx, query,
		s.name,
		data,
		int64(state.RingVersion),
		state.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save cluster state: %w", err)
	}

	s.logger.Debug("Cluster state saved",
		zap.String("name", s.name),
		zap.Uint64("ring_version", state.RingVersion))
	return nil
}

// Ping checks the database connection
func (s *PostgresStateStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresStateStore) Close() error {
	s.pool.Close()
	return nil
}
