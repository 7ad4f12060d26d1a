package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/devrev/kvring/internal/client"
	"github.com/devrev/kvring/internal/config"
	"github.com/devrev/kvring/internal/handler"
	"github.com/devrev/kvring/internal/health"
	"github.com/devrev/kvring/internal/httpserver"
	"github.com/devrev/kvring/internal/logging"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/node"
	"github.com/devrev/kvring/internal/ring"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

func main() {
	boot := logging.Bootstrap()

	// Load configuration
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "./node.yaml"
	}

	cfg, err := config.LoadNode(configPath)
	if err != nil {
		boot.Fatal("Failed to load config", zap.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		boot.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	self := ring.NodeID{Address: cfg.Server.Host, Port: cfg.Server.Port}
	logger.Info("Configuration loaded",
		zap.String("node", self.String()),
		zap.String("engine", cfg.Storage.Engine),
		zap.String("controller", cfg.Controller.Address))

	engine, err := openEngine(cfg.Storage, self, logger)
	if err != nil {
		logger.Fatal("Failed to open storage engine", zap.Error(err))
	}
	defer engine.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewNodeMetrics(registry)

	peers := client.NewNodeClient(cfg.Replication.Timeout, cfg.Transfer.Timeout, logger)
	defer peers.Close()

	controllerLink, err := client.NewControllerClient(cfg.Controller.Address, self, cfg.Controller.Timeout, logger)
	if err != nil {
		logger.Fatal("Failed to create controller client", zap.Error(err))
	}
	defer controllerLink.Close()

	// shutdown is closed when the controller asks the node to exit
	shutdown := make(chan struct{})

	agent := node.NewAgent(node.Options{
		Self:       self,
		Engine:     engine,
		Peers:      peers,
		Controller: controllerLink,
		Config:     cfg,
		Metrics:    m,
		Logger:     logger,
		OnShutdown: func() { close(shutdown) },
	})

	grpcServer := grpc.NewServer(
		grpc.MaxRecvMsgSize(16*1024*1024),
		grpc.MaxSendMsgSize(16*1024*1024),
	)
	rpc.RegisterNodeAgentServer(grpcServer, handler.NewNodeHandler(agent, logger))

	var httpServer *httpserver.Server
	if cfg.HTTP.Enabled {
		checker := health.NewHealthChecker(logger)
		checker.Register("agent", agent.Ready)
		httpServer = httpserver.New(cfg.HTTP.Port, checker, registry, logger)
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindHost, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("Failed to listen", zap.Error(err))
	}

	logger.Info("Starting gRPC server", zap.String("address", addr))

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- grpcServer.Serve(listener)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("Server error", zap.Error(err))
	case sig := <-sigChan:
		logger.Info("Received signal", zap.String("signal", sig.String()))
		agent.Shutdown()
	case <-shutdown:
		logger.Info("Shutdown requested by controller")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if httpServer != nil {
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown failed", zap.Error(err))
		}
	}

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("Node stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}
}

// openEngine opens the configured backend. Pebble data lives in a
// per-node directory so several nodes can share one host.
func openEngine(cfg config.StorageConfig, self ring.NodeID, logger *zap.Logger) (storage.Engine, error) {
	switch cfg.Engine {
	case "", "memory":
		return storage.NewMemoryEngine(), nil
	case "pebble":
		dir := filepath.Join(cfg.DataDir, fmt.Sprintf("%s_%d", self.Address, self.Port))
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
		return storage.NewPebbleEngine(dir, logger)
	default:
		return nil, fmt.Errorf("unknown storage engine %q", cfg.Engine)
	}
}
