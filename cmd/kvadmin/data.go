package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/devrev/kvring/internal/client"
	"github.com/devrev/kvring/internal/rpc"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"google.golang.org/grpc"
)

var verifyReads bool

// withKV runs fn with a KV client that learns the ring from the controller
func withKV(callback *client.CallbackServer, callbackAddr string, fn func(ctx context.Context, kv *client.KVClient) error) error {
	logger := newLogger()
	return withController(func(ctx context.Context, c *client.ControllerClient) error {
		nodes := client.NewNodeClient(timeout, timeout, logger)
		defer nodes.Close()

		kv, err := client.NewKVClient(client.KVOptions{
			Nodes:           nodes,
			Seed:            c,
			Callback:        callback,
			CallbackAddress: callbackAddr,
			VerifyReads:     verifyReads,
			Logger:          logger,
		})
		if err != nil {
			return err
		}
		return fn(ctx, kv)
	})
}

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Write a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(nil, "", func(ctx context.Context, kv *client.KVClient) error {
				status, err := kv.Put(ctx, args[0], args[1])
				if err != nil {
					return err
				}
				fmt.Println(status)
				return nil
			})
		},
	}
}

func getCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <key>",
		Short: "Read a key from one of its replicas",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(nil, "", func(ctx context.Context, kv *client.KVClient) error {
				value, found, err := kv.Get(ctx, args[0])
				if err != nil {
					return err
				}
				if !found {
					fmt.Println(rpc.StatusGetError)
					return nil
				}
				fmt.Println(value)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&verifyReads, "verify", false, "Confirm the value with a second replica")
	return cmd
}

func deleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withKV(nil, "", func(ctx context.Context, kv *client.KVClient) error {
				status, err := kv.Delete(ctx, args[0])
				if err != nil {
					return err
				}
				fmt.Println(status)
				return nil
			})
		},
	}
}

func watchCmd() *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "watch <key>",
		Short: "Subscribe to a key and print changes until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := args[0]
			logger := newLogger()

			callbacks, err := client.NewCallbackServer(0, func(n rpc.Notification) {
				if n.Deleted {
					fmt.Printf("%s deleted\n", n.Key)
					return
				}
				fmt.Printf("%s = %s\n", n.Key, n.Value)
			}, logger)
			if err != nil {
				return err
			}

			lis, err := net.Listen("tcp", listen)
			if err != nil {
				return fmt.Errorf("failed to listen on %s: %w", listen, err)
			}
			srv := grpc.NewServer()
			rpc.RegisterClientCallbackServer(srv, callbacks)
			go func() {
				if err := srv.Serve(lis); err != nil {
					logger.Error("Callback server failed", zap.Error(err))
				}
			}()
			defer srv.Stop()

			address := lis.Addr().String()
			if err := withKV(callbacks, address, func(ctx context.Context, kv *client.KVClient) error {
				return kv.Subscribe(ctx, key)
			}); err != nil {
				return err
			}
			fmt.Printf("watching %s from %s\n", key, address)

			sigChan := make(chan os.Signal, 1)
			signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
			<-sigChan

			return withKV(callbacks, address, func(ctx context.Context, kv *client.KVClient) error {
				return kv.Unsubscribe(ctx, key)
			})
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:0", "Address the callback server listens on")
	return cmd
}
