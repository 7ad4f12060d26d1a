package store

import (
	"fmt"

	"github.com/devrev/kvring/internal/config"
	"go.uber.org/zap"
)

// New opens the state store selected by cfg.Backend
func New(cfg config.StateConfig, logger *zap.Logger) (StateStore, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStateStore(), nil
	case "redis":
		return NewRedisStateStore(
			cfg.Redis.Host,
			cfg.Redis.Port,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Key,
			logger,
		)
	case "postgres":
		return NewPostgresStateStore(
			cfg.Database.Host,
			cfg.Database.Port,
			cfg.Database.Database,
			cfg.Database.User,
			cfg.Database.Password,
			cfg.Database.MaxConnections,
			cfg.Database.MinConnections,
			cfg.Key,
			logger,
		)
	default:
		return nil, fmt.Errorf("unknown state backend %q", cfg.Backend)
	}
}
