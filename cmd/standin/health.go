// ABOUTME: Health probe command for the HTTP and gRPC health endpoints
// ABOUTME: Exits non-zero when the daemon or the agent session is not serving

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/standin/internal/server"
)

var errNotServing = errors.New("not serving")

func newHealthCmd(opts *globalOptions) *cobra.Command {
	var (
		useGRPC  bool
		grpcAddr string
		timeout  time.Duration
	)
	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe the daemon's health endpoints",
		Long:  "Checks /health and /health/ready over HTTP, or the standin.Session service of the gRPC health protocol with --grpc.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			if useGRPC {
				addr := grpcAddr
				if addr == "" {
					if cfg, _, err := opts.loadConfig(); err == nil {
						addr = cfg.Server.GRPCAddr
					}
				}
				if addr == "" {
					addr = "127.0.0.1:50051"
				}
				status, err := checkGRPC(ctx, addr)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", server.SessionHealthService, status)
				if status != healthpb.HealthCheckResponse_SERVING {
					return errNotServing
				}
				return nil
			}

			client := opts.client()
			code, body, err := client.getText(ctx, "/health")
			if err != nil {
				return err
			}
			if code != http.StatusOK {
				return fmt.Errorf("daemon: %w (HTTP %d)", errNotServing, code)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "daemon: %s\n", strings.TrimSpace(body))

			code, body, err = client.getText(ctx, "/health/ready")
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "agent:  %s\n", strings.TrimSpace(body))
			if code != http.StatusOK {
				return fmt.Errorf("agent: %w (HTTP %d)", errNotServing, code)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&useGRPC, "grpc", false, "use the gRPC health protocol")
	cmd.Flags().StringVar(&grpcAddr, "grpc-addr", "", "gRPC address (default server.grpc_addr from the config)")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}

// checkGRPC asks the gRPC health service about the agent session.
func checkGRPC(ctx context.Context, addr string) (healthpb.HealthCheckResponse_ServingStatus, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("dialing %s: %w", addr, err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: server.SessionHealthService})
	if err != nil {
		return healthpb.HealthCheckResponse_UNKNOWN, fmt.Errorf("health check: %w", err)
	}
	return resp.GetStatus(), nil
}
