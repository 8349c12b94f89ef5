package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tabshelf/internal/app"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func newCloudCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cloud",
		Short: "Manage cloud sync",
	}
	cmd.AddCommand(newCloudEnableCmd(s), newCloudDisableCmd(s), newCloudStatusCmd(s))
	return cmd
}

func newCloudEnableCmd(s *state) *cobra.Command {
	var (
		creds    types.RemoteCredentials
		name     string
		activate bool
	)
	cmd := &cobra.Command{
		Use:   "enable",
		Short: "Connect a remote store and register its configuration",
		Long: "Verify the remote store, save the credentials and register a cloud\n" +
			"configuration for the user id. An empty remote record is seeded from the\n" +
			"default configuration. URL schemes: http(s) for a PostgREST endpoint,\n" +
			"postgres for a direct database connection.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				cfg, err := a.Data.AddCloudConfig(cmd.Context(), name, creds)
				if err != nil {
					return err
				}
				if activate {
					if _, err := a.Data.SwitchConfig(cmd.Context(), cfg.ConfigID); err != nil {
						return err
					}
					cfg = a.Data.CurrentConfig()
				}
				return s.emit(cfg, func(w io.Writer) {
					fmt.Fprintf(w, "Cloud config %s (%s) added\n", cfg.ConfigID, cfg.DisplayName)
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&creds.URL, "url", "", "remote store URL (required)")
	f.StringVar(&creds.AnonKey, "key", "", "API key")
	f.StringVar(&creds.UserID, "user", "", "remote user id (required)")
	f.StringVar(&name, "name", "", "display name")
	f.BoolVar(&activate, "switch", false, "make the cloud config active")
	_ = cmd.MarkFlagRequired("url")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}

func newCloudDisableCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "disable",
		Short: "Fold cloud data into the default configuration and stop syncing",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				if err := a.Data.DisableCloudSync(cmd.Context()); err != nil {
					return err
				}
				fmt.Fprintln(s.stdout, "Cloud sync disabled; active configuration is default")
				return nil
			})
		},
	}
}

type cloudStatus struct {
	Enabled bool   `json:"enabled"`
	URL     string `json:"url"`
	UserID  string `json:"userId"`
	Key     string `json:"key"`
	Active  string `json:"active"`
}

func newCloudStatusCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the cloud sync settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				rs := a.Data.RemoteSettings()
				st := cloudStatus{
					Enabled: rs.Enabled,
					URL:     rs.URL,
					UserID:  rs.UserID,
					Key:     maskKey(rs.AnonKey),
					Active:  a.Data.CurrentConfig().ConfigID,
				}
				return s.emit(st, func(w io.Writer) {
					fmt.Fprintf(w, "enabled: %t\nurl:     %s\nuser:    %s\nkey:     %s\nactive:  %s\n",
						st.Enabled, st.URL, st.UserID, st.Key, st.Active)
				})
			})
		},
	}
}

// maskKey keeps the last four characters of an API key.
func maskKey(k string) string {
	if len(k) <= 4 {
		return strings.Repeat("*", len(k))
	}
	return strings.Repeat("*", len(k)-4) + k[len(k)-4:]
}
