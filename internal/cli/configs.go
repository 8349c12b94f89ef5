package cli

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tabshelf/internal/app"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func newConfigCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configurations (profiles)",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List configurations, default first",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					cfgs := a.Data.GetAllConfigs()
					return s.emit(cfgs, func(w io.Writer) { writeConfigs(w, cfgs) })
				})
			},
		},
		&cobra.Command{
			Use:   "current",
			Short: "Show the active configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					cfg := a.Data.CurrentConfig()
					return s.emit(cfg, func(w io.Writer) { writeConfigs(w, []types.UserConfig{cfg}) })
				})
			},
		},
		&cobra.Command{
			Use:   "switch <id>",
			Short: "Make a configuration active",
			Long: "Switch the active configuration. An id missing from the registry is\n" +
				"recovered when the default id, a cached entry or the remote store vouches for it.",
			Args: cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					data, err := a.Data.SwitchConfig(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					return s.emit(a.Data.CurrentConfig(), func(w io.Writer) {
						fmt.Fprintf(w, "Switched to %s (%d categories)\n", args[0], len(data.Categories))
					})
				})
			},
		},
		&cobra.Command{
			Use:   "delete <id>",
			Short: "Delete a configuration that is neither default nor active",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					if err := a.Data.DeleteConfig(cmd.Context(), args[0]); err != nil {
						return err
					}
					fmt.Fprintf(s.stdout, "Deleted %s\n", args[0])
					return nil
				})
			},
		},
		newPaginationCmd(s),
	)
	return cmd
}

func newPaginationCmd(s *state) *cobra.Command {
	var (
		enable, disable bool
		perPage         int
	)
	cmd := &cobra.Command{
		Use:   "pagination",
		Short: "Show or change shortcut pagination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if enable && disable {
				return failUser(fmt.Errorf("--enable and --disable are mutually exclusive"))
			}
			return s.withApp(cmd.Context(), func(a *app.App) error {
				p := a.Data.AppData().PaginationSettings
				changed := enable || disable || cmd.Flags().Changed("per-page")
				if enable || disable {
					p.Enabled = enable
				}
				if cmd.Flags().Changed("per-page") {
					p.ShortcutsPerPage = perPage
				}
				if changed {
					if err := a.Data.SetPagination(cmd.Context(), p); err != nil {
						return err
					}
				}
				return s.emit(p, func(w io.Writer) {
					fmt.Fprintf(w, "enabled: %t\nshortcuts per page: %d\n", p.Enabled, p.ShortcutsPerPage)
				})
			})
		},
	}
	cmd.Flags().BoolVar(&enable, "enable", false, "enable pagination")
	cmd.Flags().BoolVar(&disable, "disable", false, "disable pagination")
	cmd.Flags().IntVar(&perPage, "per-page", 0, "shortcuts per page")
	return cmd
}

func writeConfigs(w io.Writer, cfgs []types.UserConfig) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ACTIVE\tID\tNAME\tKIND\tLOCATION")
	for _, c := range cfgs {
		mark := ""
		if c.IsActive {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", mark, c.ConfigID, c.DisplayName, c.Kind(), location(c))
	}
	tw.Flush()
}

func location(c types.UserConfig) string {
	switch loc := c.Location.(type) {
	case types.LocalLocation:
		return string(loc.Area) + ":" + loc.Key
	case types.RemoteLocation:
		return "remote:" + loc.UserID
	default:
		return ""
	}
}
