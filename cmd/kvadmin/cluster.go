package main

import (
	"context"
	"fmt"

	"github.com/devrev/kvring/internal/client"
	"github.com/spf13/cobra"
)

func initCmd() *cobra.Command {
	var (
		size      int
		cacheSize int
		strategy  string
	)
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Start a cluster of --size nodes",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, c *client.ControllerClient) error {
				resp, err := c.Initialize(ctx, size, cacheSize, strategy)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().IntVar(&size, "size", 3, "Number of nodes")
	cmd.Flags().IntVar(&cacheSize, "cache-size", 0, "Per-node cache entries (0 keeps the controller default)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Cache strategy: LRU, LFU or FIFO")
	return cmd
}

func addCmd() *cobra.Command {
	var (
		cacheSize int
		strategy  string
	)
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add one idle machine to the ring",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, c *client.ControllerClient) error {
				resp, err := c.AddNode(ctx, cacheSize, strategy)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().IntVar(&cacheSize, "cache-size", 0, "Cache entries for the new node")
	cmd.Flags().StringVar(&strategy, "strategy", "", "Cache strategy for the new node")
	return cmd
}

func removeCmd() *cobra.Command {
	var (
		index int
		node  string
	)
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a node by --index into the inventory or by --node host:port",
		RunE: func(cmd *cobra.Command, args []string) error {
			if node == "" && !cmd.Flags().Changed("index") {
				return fmt.Errorf("one of --index or --node is required")
			}
			return withController(func(ctx context.Context, c *client.ControllerClient) error {
				resp, err := c.RemoveNode(ctx, index, node)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
	cmd.Flags().IntVar(&index, "index", 0, "Inventory index of the node")
	cmd.Flags().StringVar(&node, "node", "", "Node key as host:port")
	return cmd
}

func ringCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ring",
		Short: "Print the ring and membership",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, c *client.ControllerClient) error {
				resp, err := c.GetCluster(ctx)
				if err != nil {
					return err
				}
				return printJSON(resp)
			})
		},
	}
}

func simpleCmd(use, short string, call func(*client.ControllerClient, context.Context) error) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withController(func(ctx context.Context, c *client.ControllerClient) error {
				if err := call(c, ctx); err != nil {
					return err
				}
				fmt.Println("ok")
				return nil
			})
		},
	}
}
