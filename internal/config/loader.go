package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// LoadController loads controller configuration from file and environment variables
func LoadController(configPath string) (*ControllerConfig, error) {
	cfg := DefaultControllerConfig()

	if err := readInto(configPath, cfg); err != nil {
		return nil, err
	}

	applyControllerOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// LoadNode loads node configuration from file and environment variables
func LoadNode(configPath string) (*NodeConfig, error) {
	cfg := DefaultNodeConfig()

	if err := readInto(configPath, cfg); err != nil {
		return nil, err
	}

	applyNodeOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// readInto unmarshals the YAML file over the defaults already in out.
// A missing file leaves the defaults untouched.
func readInto(configPath string, out interface{}) error {
	if configPath == "" {
		return nil
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, statErr := os.Stat(configPath); os.IsNotExist(statErr) {
			fmt.Fprintf(os.Stderr, "Warning: config file %s not found, using defaults and environment variables\n", configPath)
			return nil
		}
		return fmt.Errorf("failed to read config %s: %w", configPath, err)
	}

	if err := v.Unmarshal(out); err != nil {
		return fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return nil
}

// applyControllerOverrides applies environment variable overrides to config
func applyControllerOverrides(cfg *ControllerConfig) {
	applyServerOverrides(&cfg.Server)

	if path := os.Getenv("KVRING_INVENTORY_PATH"); path != "" {
		cfg.Cluster.InventoryPath = path
	}
	if mode := os.Getenv("KVRING_PROVISION_MODE"); mode != "" {
		cfg.Provision.Mode = mode
	}
	if backend := os.Getenv("KVRING_STATE_BACKEND"); backend != "" {
		cfg.State.Backend = backend
	}

	// Redis configuration
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		cfg.State.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if p, err := strconv.Atoi(redisPort); err == nil {
			cfg.State.Redis.Port = p
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		cfg.State.Redis.Password = redisPassword
	}

	// Database configuration
	if dbHost := os.Getenv("DATABASE_HOST"); dbHost != "" {
		cfg.State.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DATABASE_PORT"); dbPort != "" {
		if p, err := strconv.Atoi(dbPort); err == nil {
			cfg.State.Database.Port = p
		}
	}
	if dbName := os.Getenv("DATABASE_NAME"); dbName != "" {
		cfg.State.Database.Database = dbName
	}
	if dbUser := os.Getenv("DATABASE_USER"); dbUser != "" {
		cfg.State.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DATABASE_PASSWORD"); dbPassword != "" {
		cfg.State.Database.Password = dbPassword
	}

	applyLoggingOverrides(&cfg.Logging)
}

// applyNodeOverrides applies environment variable overrides to config
func applyNodeOverrides(cfg *NodeConfig) {
	applyServerOverrides(&cfg.Server)

	if addr := os.Getenv("KVRING_CONTROLLER_ADDRESS"); addr != "" {
		cfg.Controller.Address = addr
	}
	if engine := os.Getenv("KVRING_STORAGE_ENGINE"); engine != "" {
		cfg.Storage.Engine = engine
	}
	if dir := os.Getenv("KVRING_DATA_DIR"); dir != "" {
		cfg.Storage.DataDir = dir
	}
	if interval := os.Getenv("KVRING_HEARTBEAT_INTERVAL"); interval != "" {
		if d, err := time.ParseDuration(interval); err == nil {
			cfg.Heartbeat.Interval = d
		}
	}

	applyLoggingOverrides(&cfg.Logging)
}

func applyServerOverrides(s *ServerConfig) {
	if host := os.Getenv("SERVER_HOST"); host != "" {
		s.Host = host
	}
	if port := os.Getenv("SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			s.Port = p
		}
	}
}

func applyLoggingOverrides(l *LoggingConfig) {
	if logLevel := os.Getenv("LOG_LEVEL"); logLevel != "" {
		l.Level = logLevel
	}
}
