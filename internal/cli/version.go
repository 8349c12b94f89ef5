package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func newVersionCmd(s *state) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the tabshelf version",
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.emit(map[string]string{"version": Version, "module": modulePath}, func(w io.Writer) {
				fmt.Fprintf(w, "tabshelf v%s\nmodule: %s\n", Version, modulePath)
			})
		},
	}
}
