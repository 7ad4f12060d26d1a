package config

import (
	"errors"
	"fmt"
	"time"
)

// ControllerConfig represents the cluster controller configuration
type ControllerConfig struct {
	Server    ServerConfig    `mapstructure:"server"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Provision ProvisionConfig `mapstructure:"provision"`
	State     StateConfig     `mapstructure:"state"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// NodeConfig represents the storage node configuration
type NodeConfig struct {
	Server      ServerConfig      `mapstructure:"server"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Controller  ControllerClient  `mapstructure:"controller"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Heartbeat   HeartbeatConfig   `mapstructure:"heartbeat"`
	Replication ReplicationConfig `mapstructure:"replication"`
	Integrity   IntegrityConfig   `mapstructure:"integrity"`
	Transfer    TransferConfig    `mapstructure:"transfer"`
	Logging     LoggingConfig     `mapstructure:"logging"`
}

// ServerConfig represents gRPC server configuration.
// Host is the advertised address; BindHost defaults to all interfaces.
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	BindHost        string        `mapstructure:"bind_host"`
	Port            int           `mapstructure:"port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// HTTPConfig represents the health and metrics HTTP server
type HTTPConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// ClusterConfig represents cluster membership settings
type ClusterConfig struct {
	InventoryPath        string        `mapstructure:"inventory_path"`
	DefaultCacheSize     int           `mapstructure:"default_cache_size"`
	DefaultCacheStrategy string        `mapstructure:"default_cache_strategy"`
	RPCTimeout           time.Duration `mapstructure:"rpc_timeout"`
	ReadyTimeout         time.Duration `mapstructure:"ready_timeout"`
	ReadyPollInterval    time.Duration `mapstructure:"ready_poll_interval"`
}

// ProvisionConfig represents how idle machines are started
type ProvisionConfig struct {
	Mode        string        `mapstructure:"mode"`
	Command     string        `mapstructure:"command"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// StateConfig represents the controller state store
type StateConfig struct {
	Backend  string         `mapstructure:"backend"`
	Key      string         `mapstructure:"key"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Database DatabaseConfig `mapstructure:"database"`
}

// RedisConfig represents Redis state store configuration
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// DatabaseConfig represents PostgreSQL state store configuration
type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
	MinConnections int    `mapstructure:"min_connections"`
}

// ControllerClient represents how a node reaches the controller
type ControllerClient struct {
	Address string        `mapstructure:"address"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig represents the node-local storage engine
type StorageConfig struct {
	Engine  string `mapstructure:"engine"`
	DataDir string `mapstructure:"data_dir"`
}

// HeartbeatConfig represents successor failure detection
type HeartbeatConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	Timeout          time.Duration `mapstructure:"timeout"`
	FailureThreshold int           `mapstructure:"failure_threshold"`
}

// ReplicationConfig represents asynchronous backup replication
type ReplicationConfig struct {
	Workers   int           `mapstructure:"workers"`
	QueueSize int           `mapstructure:"queue_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// IntegrityConfig represents replica-side write confirmation
type IntegrityConfig struct {
	ConfirmWrites bool          `mapstructure:"confirm_writes"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

// TransferConfig represents bulk range transfers between nodes
type TransferConfig struct {
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Validate validates the controller configuration
func (c *ControllerConfig) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if c.Cluster.InventoryPath == "" {
		return errors.New("cluster.inventory_path is required")
	}
	if c.Cluster.DefaultCacheSize <= 0 {
		return errors.New("cluster.default_cache_size must be positive")
	}
	if !IsValidCacheStrategy(c.Cluster.DefaultCacheStrategy) {
		return fmt.Errorf("cluster.default_cache_strategy must be one of: FIFO, LRU, LFU")
	}
	if c.Cluster.RPCTimeout <= 0 {
		return errors.New("cluster.rpc_timeout must be positive")
	}
	switch c.Provision.Mode {
	case "static":
	case "exec":
		if c.Provision.Command == "" {
			return errors.New("provision.command is required in exec mode")
		}
	default:
		return errors.New("provision.mode must be one of: static, exec")
	}
	switch c.State.Backend {
	case "memory":
	case "redis":
		if c.State.Redis.Host == "" {
			return errors.New("state.redis.host is required")
		}
	case "postgres":
		if c.State.Database.Host == "" || c.State.Database.Database == "" || c.State.Database.User == "" {
			return errors.New("state.database host, database and user are required")
		}
	default:
		return errors.New("state.backend must be one of: memory, redis, postgres")
	}
	return c.Logging.validate()
}

// Validate validates the node configuration
func (c *NodeConfig) Validate() error {
	if err := c.Server.validate(); err != nil {
		return err
	}
	if c.HTTP.Enabled && (c.HTTP.Port <= 0 || c.HTTP.Port > 65535) {
		return errors.New("http.port must be between 1 and 65535")
	}
	if c.Controller.Address == "" {
		return errors.New("controller.address is required")
	}
	switch c.Storage.Engine {
	case "memory":
	case "pebble":
		if c.Storage.DataDir == "" {
			return errors.New("storage.data_dir is required for the pebble engine")
		}
	default:
		return errors.New("storage.engine must be one of: memory, pebble")
	}
	if c.Heartbeat.Interval <= 0 {
		return errors.New("heartbeat.interval must be positive")
	}
	if c.Heartbeat.Timeout <= 0 {
		c.Heartbeat.Timeout = c.Heartbeat.Interval
	}
	if c.Heartbeat.FailureThreshold <= 0 {
		c.Heartbeat.FailureThreshold = 1
	}
	if c.Replication.Workers <= 0 {
		return errors.New("replication.workers must be positive")
	}
	if c.Transfer.BatchSize <= 0 {
		return errors.New("transfer.batch_size must be positive")
	}
	return c.Logging.validate()
}

func (s *ServerConfig) validate() error {
	if s.Host == "" {
		return errors.New("server.host is required")
	}
	if s.Port <= 0 || s.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}
	return nil
}

func (l *LoggingConfig) validate() error {
	if l.Level == "" {
		l.Level = "info"
	}
	if l.Format == "" {
		l.Format = "json"
	}
	if l.Format != "json" && l.Format != "console" {
		return errors.New("logging.format must be one of: json, console")
	}
	return nil
}

// IsValidCacheStrategy reports whether s names a supported cache policy
func IsValidCacheStrategy(s string) bool {
	switch s {
	case "FIFO", "LRU", "LFU":
		return true
	}
	return false
}

// DefaultControllerConfig returns the default controller configuration
func DefaultControllerConfig() *ControllerConfig {
	return &ControllerConfig{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            40000,
			ShutdownTimeout: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: true,
			Port:    9090,
		},
		Cluster: ClusterConfig{
			InventoryPath:        "./nodes.yaml",
			DefaultCacheSize:     100,
			DefaultCacheStrategy: "LRU",
			RPCTimeout:           5 * time.Second,
			ReadyTimeout:         30 * time.Second,
			ReadyPollInterval:    500 * time.Millisecond,
		},
		Provision: ProvisionConfig{
			Mode:        "static",
			Command:     "ssh -n {{.Address}} SERVER_HOST={{.Address}} SERVER_PORT={{.Port}} nohup kvnode &",
			SettleDelay: 5 * time.Second,
		},
		State: StateConfig{
			Backend: "memory",
			Key:     "kvring:cluster",
			Redis: RedisConfig{
				Host: "localhost",
				Port: 6379,
			},
			Database: DatabaseConfig{
				Host:           "localhost",
				Port:           5432,
				Database:       "kvring",
				User:           "kvring",
				MaxConnections: 4,
				MinConnections: 1,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// DefaultNodeConfig returns the default node configuration
func DefaultNodeConfig() *NodeConfig {
	return &NodeConfig{
		Server: ServerConfig{
			Host:            "127.0.0.1",
			Port:            50000,
			ShutdownTimeout: 10 * time.Second,
		},
		HTTP: HTTPConfig{
			Enabled: false,
			Port:    9100,
		},
		Controller: ControllerClient{
			Address: "127.0.0.1:40000",
			Timeout: 5 * time.Second,
		},
		Storage: StorageConfig{
			Engine:  "memory",
			DataDir: "./data",
		},
		Heartbeat: HeartbeatConfig{
			Interval:         5 * time.Second,
			Timeout:          5 * time.Second,
			FailureThreshold: 1,
		},
		Replication: ReplicationConfig{
			Workers:   4,
			QueueSize: 1024,
			Timeout:   5 * time.Second,
		},
		Integrity: IntegrityConfig{
			ConfirmWrites: true,
			Timeout:       5 * time.Second,
		},
		Transfer: TransferConfig{
			BatchSize: 256,
			Timeout:   30 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}
