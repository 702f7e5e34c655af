// ABOUTME: Client commands for identity rotation
// ABOUTME: enable (with an optional TOML pool file), disable, settings and status

package main

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/standin/internal/rotation"
	"github.com/2389/standin/internal/server"
)

var errEmptyPoolFile = errors.New("pool file lists no identities")

// poolFile is the TOML layout accepted by "rotation enable --file".
// Either form may be used, or both:
//
//	identities = ["alpha", "bravo"]
//
//	[[identity]]
//	name = "charlie"
type poolFile struct {
	Identities []string `toml:"identities"`
	Identity   []struct {
		Name string `toml:"name"`
	} `toml:"identity"`
}

// loadPoolFile reads identity names from a TOML file. Unknown keys are
// rejected so a typo does not silently shrink the pool.
func loadPoolFile(path string) ([]string, error) {
	var pf poolFile
	md, err := toml.DecodeFile(path, &pf)
	if err != nil {
		return nil, fmt.Errorf("reading pool file: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("pool file %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}

	names := append([]string(nil), pf.Identities...)
	for _, id := range pf.Identity {
		names = append(names, id.Name)
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%s: %w", path, errEmptyPoolFile)
	}
	return names, nil
}

func newRotationCmd(opts *globalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rotation",
		Short: "Control identity rotation",
	}
	cmd.AddCommand(
		newRotationEnableCmd(opts),
		newRotationDisableCmd(opts),
		newRotationSettingsCmd(opts),
		newRotationStatusCmd(opts),
	)
	return cmd
}

func newRotationEnableCmd(opts *globalOptions) *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "enable [identity...]",
		Short: "Start rotating through a pool of identities",
		Example: `  standin rotation enable alpha bravo charlie
  standin rotation enable --file pool.toml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			identities := args
			if file != "" {
				fromFile, err := loadPoolFile(file)
				if err != nil {
					return err
				}
				identities = append(fromFile, args...)
			}
			if len(identities) == 0 {
				return errors.New("give identities as arguments or with --file")
			}

			var st rotation.Status
			req := server.EnableRotationRequest{Identities: identities}
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/rotation/enable", req, &st); err != nil {
				return err
			}
			printRotationStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "TOML file listing identities")
	return cmd
}

func newRotationDisableCmd(opts *globalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Stop rotating; the current session keeps running",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st rotation.Status
			if err := opts.client().do(cmd.Context(), http.MethodPost, "/api/rotation/disable", nil, &st); err != nil {
				return err
			}
			printRotationStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
}

// settingsFlags maps flag names to the JSON keys of the settings endpoint.
var settingsFlags = []struct {
	flag string
	key  string
	help string
}{
	{"offline-timeout", "offline_timeout", "time without a heartbeat before rotating"},
	{"delay", "delay", "base pause between identities"},
	{"delay-variation", "delay_variation", "random spread around the delay"},
	{"active-time", "active_time", "base time an identity stays connected"},
	{"active-time-variation", "active_time_variation", "random spread around the active time"},
}

func newRotationSettingsCmd(opts *globalOptions) *cobra.Command {
	values := make(map[string]*time.Duration, len(settingsFlags))
	cmd := &cobra.Command{
		Use:   "settings",
		Short: "Update rotation timings",
		RunE: func(cmd *cobra.Command, _ []string) error {
			patch := make(map[string]string)
			for _, f := range settingsFlags {
				if cmd.Flags().Changed(f.flag) {
					patch[f.key] = values[f.flag].String()
				}
			}
			if len(patch) == 0 {
				return errors.New("no settings given")
			}

			var settings rotation.Settings
			if err := opts.client().do(cmd.Context(), http.MethodPut, "/api/rotation/settings", patch, &settings); err != nil {
				return err
			}
			printSettings(cmd.OutOrStdout(), settings)
			return nil
		},
	}
	for _, f := range settingsFlags {
		values[f.flag] = cmd.Flags().Duration(f.flag, 0, f.help)
	}
	return cmd
}

func newRotationStatusCmd(opts *globalOptions) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the rotation state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var st rotation.Status
			if err := opts.client().do(cmd.Context(), http.MethodGet, "/api/rotation/status", nil, &st); err != nil {
				return err
			}
			if asJSON {
				return printJSON(cmd.OutOrStdout(), st)
			}
			printRotationStatus(cmd.OutOrStdout(), st)
			return nil
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print raw JSON")
	return cmd
}

func printRotationStatus(w io.Writer, st rotation.Status) {
	enabled := color.HiBlackString("disabled")
	if st.Enabled {
		enabled = color.GreenString("enabled")
	}
	_, _ = fmt.Fprintf(w, "rotation: %s  state: %s\n", enabled, st.State)
	if st.CurrentIdentity != "" {
		_, _ = fmt.Fprintf(w, "current:  %s\n", st.CurrentIdentity)
	}
	if len(st.Pool) > 0 {
		_, _ = fmt.Fprintf(w, "pool:     %s\n", strings.Join(st.Pool, ", "))
	}
	if len(st.RecentlyUsed) > 0 {
		_, _ = fmt.Fprintf(w, "recent:   %s\n", strings.Join(st.RecentlyUsed, ", "))
	}
	if st.ConsecutiveFailures > 0 {
		_, _ = fmt.Fprintln(w, color.YellowString("failures: %d", st.ConsecutiveFailures))
	}
	if st.LastHeartbeat != nil {
		_, _ = fmt.Fprintf(w, "heartbeat: %s\n", st.LastHeartbeat.Format(time.RFC3339))
	}
}

func printSettings(w io.Writer, s rotation.Settings) {
	_, _ = fmt.Fprintf(w, "offline timeout: %s\n", s.OfflineTimeout)
	_, _ = fmt.Fprintf(w, "delay:           %s ± %s\n", s.Delay, s.DelayVariation)
	_, _ = fmt.Fprintf(w, "active time:     %s ± %s\n", s.ActiveTime, s.ActiveTimeVariation)
}
