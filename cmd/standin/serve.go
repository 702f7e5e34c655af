// ABOUTME: serve command: loads config, prints the banner and runs the daemon
// ABOUTME: Everything shuts down when the signal context is cancelled

package main

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/standin/internal/app"
)

func newServeCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the standin daemon",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, path, err := opts.loadConfig()
			if err != nil {
				return err
			}

			cyan := color.New(color.FgCyan)
			gray := color.New(color.FgHiBlack)
			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)
			out := cmd.OutOrStdout()

			cyan.Fprint(out, banner)
			gray.Fprintf(out, "    version: %s\n\n", version)

			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Config:    %s\n", path)
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Database:  %s\n", cfg.Database.Path)
			if cfg.Tailscale.Enabled {
				green.Fprint(out, "    ▶ ")
				fmt.Fprint(out, "Tailscale: ")
				cyan.Fprint(out, cfg.Tailscale.Hostname)
				if cfg.Tailscale.Ephemeral {
					gray.Fprint(out, " (ephemeral)")
				}
				fmt.Fprintln(out)
			} else {
				green.Fprint(out, "    ▶ ")
				fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
				green.Fprint(out, "    ▶ ")
				fmt.Fprintf(out, "gRPC:      %s\n", cfg.Server.GRPCAddr)
			}
			green.Fprint(out, "    ▶ ")
			fmt.Fprintf(out, "Protocol:  %s\n", cfg.Protocol.Driver)
			if cfg.Rotation.Enabled {
				green.Fprint(out, "    ▶ ")
				fmt.Fprint(out, "Rotation:  ")
				yellow.Fprintln(out, strings.Join(cfg.Rotation.Identities, ", "))
			}
			if cfg.Auth.JWTSecret == "" {
				yellow.Fprintln(out, "    ! API auth disabled (no auth.jwt_secret)")
			}
			fmt.Fprintln(out)

			logger := setupLogger(cfg.Logging)
			logger.Info("starting standin",
				"config", path,
				"http_addr", cfg.Server.HTTPAddr,
				"grpc_addr", cfg.Server.GRPCAddr,
			)

			a, err := app.New(cfg, path, logger)
			if err != nil {
				return fmt.Errorf("creating app: %w", err)
			}
			return a.Run(cmd.Context())
		},
	}
}
