package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tabshelf/internal/app"
	"github.com/mesh-intelligence/tabshelf/internal/paths"
)

func newInitCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize tabshelf storage",
		Long: "Create the configuration file and the storage database, then load the\n" +
			"configuration registry (migrating pre-profile data when present).",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				out := map[string]string{
					"config":   paths.ConfigFile(s.configDir),
					"database": a.Backend.Path(),
					"active":   a.Data.CurrentConfig().ConfigID,
				}
				return s.emit(out, func(w io.Writer) {
					fmt.Fprintf(w, "tabshelf initialized\nconfig:   %s\ndatabase: %s\n", out["config"], out["database"])
				})
			})
		},
	}
}
