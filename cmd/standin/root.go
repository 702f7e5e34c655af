// ABOUTME: Root command and flags shared by the daemon and client subcommands
// ABOUTME: Resolves the config file, API address and bearer token

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/2389/standin/internal/config"
)

// EnvToken supplies the bearer token for client commands.
const EnvToken = "STANDIN_TOKEN"

const defaultAddr = "127.0.0.1:8080"

type globalOptions struct {
	configPath string
	addr       string
	token      string
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	rootCmd := &cobra.Command{
		Use:           "standin",
		Short:         "standin keeps an agent present on a game server",
		Long:          "standin runs a single agent session on a game server, reconnects it when it drops, and can rotate the session through a pool of identities when the agent goes quiet.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return config.LoadDotEnv(".env")
		},
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $"+config.EnvConfigPath+" or ~/.config/standin/standin.yaml)")
	rootCmd.PersistentFlags().StringVar(&opts.addr, "addr", "", "API address for client commands (default server.http_addr from the config)")
	rootCmd.PersistentFlags().StringVar(&opts.token, "token", "", "bearer token for client commands (default $"+EnvToken+")")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newStartCmd(opts),
		newStopCmd(opts),
		newRestartCmd(opts),
		newStatusCmd(opts),
		newRotationCmd(opts),
		newHealthCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "standin %s\n", version)
		},
	}
}

// loadConfig loads the resolved config file.
func (o *globalOptions) loadConfig() (*config.Config, string, error) {
	path := config.ResolvePath(o.configPath)
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}

// baseURL picks the API address: --addr, then the config file, then the default.
func (o *globalOptions) baseURL() string {
	addr := o.addr
	if addr == "" {
		if cfg, _, err := o.loadConfig(); err == nil && cfg.Server.HTTPAddr != "" {
			addr = cfg.Server.HTTPAddr
		}
	}
	if addr == "" {
		addr = defaultAddr
	}
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	if !strings.Contains(addr, "://") {
		addr = "http://" + addr
	}
	return strings.TrimRight(addr, "/")
}

func (o *globalOptions) client() *apiClient {
	token := o.token
	if token == "" {
		token = os.Getenv(EnvToken)
	}
	return newAPIClient(o.baseURL(), token)
}
