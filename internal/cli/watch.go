package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tabshelf/internal/app"
)

func newWatchCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Reload when another process changes the stored data",
		Long:  "Watch the storage database and reload the registry and active data after\nexternal writes, until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := s.settings()
			if err != nil {
				return failSys(err)
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return s.withApp(ctx, func(a *app.App) error {
				fmt.Fprintf(s.stdout, "Watching %s\n", a.Backend.Path())
				return a.Watch(ctx, st.WatchDebounce)
			})
		},
	}
}
