package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/devrev/kvring/internal/client"
	"github.com/devrev/kvring/internal/ring"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	controllerAddr string
	timeout        time.Duration
	verbose        bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kvadmin",
		Short: "Administer a kvring cluster",
		Long: `kvadmin talks to the kvring controller to change cluster membership
and to the storage nodes to read and write keys.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&controllerAddr, "controller", "127.0.0.1:40000", "Controller gRPC address")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Deadline for each command")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log RPC activity to stderr")

	rootCmd.AddCommand(
		initCmd(),
		addCmd(),
		removeCmd(),
		simpleCmd("shutdown", "Stop every node and empty the ring", (*client.ControllerClient).Shutdown),
		simpleCmd("start", "Open every node to client traffic", (*client.ControllerClient).Start),
		simpleCmd("stop", "Close every node to client traffic", (*client.ControllerClient).Stop),
		ringCmd(),
		putCmd(),
		getCmd(),
		deleteCmd(),
		watchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newLogger() *zap.Logger {
	if !verbose {
		return zap.NewNop()
	}
	logger, err := zap.NewDevelopment()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// withController runs fn with a connection to the controller
func withController(fn func(ctx context.Context, c *client.ControllerClient) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	c, err := client.NewControllerClient(controllerAddr, ring.NodeID{}, timeout, newLogger())
	if err != nil {
		return err
	}
	defer c.Close()

	return fn(ctx, c)
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}
