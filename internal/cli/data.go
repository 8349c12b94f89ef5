package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tabshelf/internal/app"
	"github.com/mesh-intelligence/tabshelf/internal/savecoord"
)

func newDataCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "data",
		Short: "Read and write the active configuration's data",
	}
	cmd.AddCommand(newDataShowCmd(s), newDataSaveCmd(s))
	return cmd
}

func newDataShowCmd(s *state) *cobra.Command {
	var refresh bool
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the active configuration's data",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				data, err := a.Data.LoadCurrentConfigData(cmd.Context(), refresh)
				if err != nil {
					return err
				}
				return s.emit(data, nil)
			})
		},
	}
	cmd.Flags().BoolVar(&refresh, "refresh", false, "bypass the cache and read the backend")
	return cmd
}

func newDataSaveCmd(s *state) *cobra.Command {
	var (
		source, priority, strategy string
		noValidate                 bool
	)
	cmd := &cobra.Command{
		Use:   "save <json|-|@file>",
		Short: "Save a payload through the save coordinator",
		Long: "Validate, merge and persist a JSON payload for the active configuration.\n" +
			"The source decides which fields a smart merge updates:\n" +
			"  " + strings.Join([]string{
			savecoord.SourceCategoryManager, savecoord.SourceShortcutManager,
			savecoord.SourceSettingsManager, savecoord.SourceThemeManager,
		}, ", ") + "\n" +
			"Any other source merges every field present in the payload.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := savecoord.ParsePriority(priority)
			if err != nil {
				return failUser(err)
			}
			m, err := savecoord.ParseMergeStrategy(strategy)
			if err != nil {
				return failUser(err)
			}
			raw, err := s.readPayload(args[0])
			if err != nil {
				return failUser(fmt.Errorf("read payload: %w", err))
			}
			opts := savecoord.SaveOptions{
				Source:         source,
				Priority:       p,
				MergeStrategy:  m,
				ValidateBefore: savecoord.Bool(!noValidate),
			}
			return s.withApp(cmd.Context(), func(a *app.App) error {
				res, err := a.Saves.SaveJSON(cmd.Context(), raw, opts)
				if err != nil {
					return err
				}
				return s.emit(res, func(w io.Writer) {
					fmt.Fprintf(w, "Saved %s via %s\n", res.ID, res.Method)
					for _, warning := range res.Warnings {
						fmt.Fprintf(w, "warning: %s\n", warning)
					}
				})
			})
		},
	}
	f := cmd.Flags()
	f.StringVar(&source, "source", savecoord.SourceUnknown, "writer name")
	f.StringVar(&priority, "priority", string(savecoord.PriorityNormal), "high, normal or low")
	f.StringVar(&strategy, "strategy", string(savecoord.StrategySmart), "smart, overwrite or merge")
	f.BoolVar(&noValidate, "no-validate", false, "skip payload validation")
	return cmd
}
