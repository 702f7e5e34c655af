// ABOUTME: Client commands controlling the agent session
// ABOUTME: start, stop, restart and status against the running daemon

package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/standin/internal/server"
	"github.com/2389/standin/internal/session"
)

func newStartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the agent session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sess session.Session
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/session/start", nil, &sess); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Started %s on %s (%s)\n", sess.Identity, sess.ServerName, sess.Status)
			return nil
		},
	}
}

func newStopCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the agent session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/session/stop", nil, nil); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "Stopped")
			return nil
		},
	}
}

func newRestartCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "restart",
		Short: "Restart the agent session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var sess session.Session
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/session/restart", nil, &sess); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Restarted %s on %s (%s)\n", sess.Identity, sess.ServerName, sess.Status)
			return nil
		},
	}
}

func newStatusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent session status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st server.SessionStatusResponse
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/session/status", nil, &st); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if asJSON {
				return printJSON(out, st)
			}

			if !st.Running || st.Session == nil {
				_, _ = fmt.Fprintln(out, color.HiBlackString("offline"))
			} else {
				state := string(st.Session.Status)
				if st.Session.Status == session.StatusOnline {
					state = color.GreenString(state)
				} else {
					state = color.YellowString(state)
				}
				uptime := (time.Duration(st.UptimeSeconds) * time.Second).Round(time.Second)
				_, _ = fmt.Fprintf(out, "%s  %s on %s  up %s\n", state, st.Session.Identity, st.Session.ServerName, uptime)
			}
			if st.Stats != nil {
				_, _ = fmt.Fprintf(out, "chat messages: %d  reconnects: %d\n", st.Stats.ChatMessageCount, st.Stats.ReconnectCount)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}
