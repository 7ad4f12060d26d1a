package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/devrev/kvring/internal/client"
	"github.com/devrev/kvring/internal/config"
	"github.com/devrev/kvring/internal/controller"
	"github.com/devrev/kvring/internal/handler"
	"github.com/devrev/kvring/internal/health"
	"github.com/devrev/kvring/internal/httpserver"
	"github.com/devrev/kvring/internal/logging"
	"github.com/devrev/kvring/internal/metrics"
	"github.com/devrev/kvring/internal/provision"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/devrev/kvring/internal/store"
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
		configPath = "./controller.yaml"
	}

	cfg, err := config.LoadController(configPath)
	if err != nil {
		boot.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		boot.Fatal("Failed to initialize logger", zap.Error(err))
	}
	defer logger.Sync()

	logger.Info("Starting kvring controller",
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.String("inventory", cfg.Cluster.InventoryPath),
		zap.String("state_backend", cfg.State.Backend))

	inventory, err := config.LoadInventory(cfg.Cluster.InventoryPath)
	if err != nil {
		logger.Fatal("Failed to load inventory", zap.Error(err))
	}
	logger.Info("Inventory loaded", zap.Int("machines", len(inventory.Nodes)))

	stateStore, err := store.New(cfg.State, logger)
	if err != nil {
		logger.Fatal("Failed to initialize state store", zap.Error(err))
	}
	defer stateStore.Close()

	launcher, err := provision.New(cfg.Provision, logger)
	if err != nil {
		logger.Fatal("Failed to initialize launcher", zap.Error(err))
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.NewControllerMetrics(registry)

	nodes := client.NewNodeClient(cfg.Cluster.RPCTimeout, 0, logger)
	defer nodes.Close()

	ctrl := controller.New(controller.Deps{
		Config:    cfg.Cluster,
		Inventory: inventory.NodeIDs(),
		Nodes:     nodes,
		Launcher:  launcher,
		State:     stateStore,
		Metrics:   m,
		Logger:    logger,
	})

	restoreCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := ctrl.Restore(restoreCtx); err != nil {
		logger.Fatal("Failed to restore cluster state", zap.Error(err))
	}
	cancel()

	grpcServer := grpc.NewServer()
	rpc.RegisterControllerServer(grpcServer, handler.NewControllerHandler(ctrl, logger))

	var httpServer *httpserver.Server
	if cfg.HTTP.Enabled {
		checker := health.NewHealthChecker(logger)
		checker.Register("state_store", ctrl.Ready)
		httpServer = httpserver.New(cfg.HTTP.Port, checker, registry, logger)
		ctrl.RegisterRoutes(httpServer.Router())
		go func() {
			if err := httpServer.Start(); err != nil {
				logger.Error("HTTP server failed", zap.Error(err))
			}
		}()
	}

	addr := fmt.Sprintf("%s:%d", cfg.Server.BindHost, cfg.Server.Port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Fatal("Failed to create listener", zap.Error(err))
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
	}

	logger.Info("Shutting down gracefully")

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
		ctrl.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		logger.Info("Server stopped gracefully")
	case <-shutdownCtx.Done():
		logger.Warn("Shutdown timeout exceeded, forcing stop")
		grpcServer.Stop()
	}
}
