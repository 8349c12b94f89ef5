package cli

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/tabshelf/internal/app"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

func newCategoryCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "category",
		Aliases: []string{"cat"},
		Short:   "Manage categories",
	}

	var color string
	add := &cobra.Command{
		Use:   "add <name>",
		Short: "Add a category",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				cat, err := a.Board.Categories().Add(cmd.Context(), args[0], color)
				if err != nil {
					return err
				}
				return s.emit(cat, func(w io.Writer) { fmt.Fprintf(w, "Added category %s\n", cat.ID) })
			})
		},
	}
	add.Flags().StringVar(&color, "color", "", "card colour (default: next palette colour)")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List categories in display order",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					cats, err := a.Board.Categories().List(cmd.Context())
					if err != nil {
						return err
					}
					return s.emit(cats, func(w io.Writer) { writeCategories(w, cats) })
				})
			},
		},
		add,
		s.boardCmd("rename <id> <name>", "Rename a category", 2, func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Board.Categories().Rename(cmd.Context(), args[0], args[1])
		}),
		s.boardCmd("color <id> <color>", "Change a category's colour", 2, func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Board.Categories().SetColor(cmd.Context(), args[0], args[1])
		}),
		s.boardCmd("delete <id>", "Delete a category and its shortcuts", 1, func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Board.Categories().Delete(cmd.Context(), args[0])
		}),
		s.boardCmd("collapse <id>", "Toggle a category's collapsed state", 1, func(cmd *cobra.Command, a *app.App, args []string) error {
			collapsed, err := a.Board.Categories().ToggleCollapsed(cmd.Context(), args[0])
			if err == nil {
				fmt.Fprintf(s.stdout, "collapsed: %t\n", collapsed)
			}
			return err
		}),
		&cobra.Command{
			Use:   "reorder <id>...",
			Short: "Move the listed categories to the front, in order",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					return a.Board.Categories().Reorder(cmd.Context(), args)
				})
			},
		},
	)
	return cmd
}

func newShortcutCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "shortcut",
		Aliases: []string{"sc"},
		Short:   "Manage shortcuts",
	}

	var sc types.Shortcut
	var icon string
	add := &cobra.Command{
		Use:   "add <category-id> <url>",
		Short: "Add a shortcut to a category",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			sc.URL = args[1]
			sc.IconType = types.IconType(icon)
			return s.withApp(cmd.Context(), func(a *app.App) error {
				added, err := a.Board.Shortcuts().Add(cmd.Context(), args[0], sc)
				if err != nil {
					return err
				}
				return s.emit(added, func(w io.Writer) { fmt.Fprintf(w, "Added shortcut %s (%s)\n", added.ID, added.URL) })
			})
		},
	}
	af := add.Flags()
	af.StringVar(&sc.Name, "name", "", "display name (default: the host)")
	af.StringVar(&icon, "icon", "", "icon type: letter, favicon or custom")
	af.StringVar(&sc.IconColor, "icon-color", "", "letter icon colour")
	af.StringVar(&sc.IconURL, "icon-url", "", "custom icon URL")

	var index int
	move := &cobra.Command{
		Use:   "move <from-category> <id> <to-category>",
		Short: "Move a shortcut, optionally between categories",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error {
				return a.Board.Shortcuts().Move(cmd.Context(), args[0], args[1], args[2], index)
			})
		},
	}
	move.Flags().IntVar(&index, "index", -1, "position in the target category (default: end)")

	cmd.AddCommand(
		add,
		s.boardCmd("delete <category-id> <id>", "Delete a shortcut", 2, func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Board.Shortcuts().Delete(cmd.Context(), args[0], args[1])
		}),
		move,
	)
	return cmd
}

func newViewCmd(s *state) *cobra.Command {
	return s.boardCmd("view <grid|list>", "Set the layout", 1, func(cmd *cobra.Command, a *app.App, args []string) error {
		return a.Board.Settings().SetViewMode(cmd.Context(), types.ViewMode(args[0]))
	})
}

func newThemeCmd(s *state) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "theme",
		Short: "Manage theme and background",
	}
	var imagePath string
	background := s.boardCmd("background [url]", "Set or clear the background image", -1, func(cmd *cobra.Command, a *app.App, args []string) error {
		url := ""
		if len(args) > 0 {
			url = args[0]
		}
		return a.Board.Theme().SetBackgroundImage(cmd.Context(), url, imagePath)
	})
	background.Args = cobra.MaximumNArgs(1)
	background.Flags().StringVar(&imagePath, "path", "", "storage path of the image")

	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the theme settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				return s.withApp(cmd.Context(), func(a *app.App) error {
					ts, err := a.Board.Theme().Current(cmd.Context())
					if err != nil {
						return err
					}
					if ts == nil {
						ts = &types.ThemeSettings{}
					}
					return s.emit(ts, nil)
				})
			},
		},
		s.boardCmd("set <name>", "Set the theme", 1, func(cmd *cobra.Command, a *app.App, args []string) error {
			return a.Board.Theme().SetTheme(cmd.Context(), args[0])
		}),
		s.boardCmd("opacity <0-100>", "Set the background opacity", 1, func(cmd *cobra.Command, a *app.App, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("%w: opacity must be an integer", types.ErrValidation)
			}
			return a.Board.Theme().SetBackgroundOpacity(cmd.Context(), n)
		}),
		background,
		&cobra.Command{
			Use:   "upload <file>",
			Short: "Upload a background image to the cloud config's store",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				f, err := os.Open(args[0])
				if err != nil {
					return failUser(err)
				}
				defer f.Close()
				return s.withApp(cmd.Context(), func(a *app.App) error {
					res, err := a.Board.Theme().UploadBackground(cmd.Context(), f, filepath.Base(args[0]))
					if err != nil {
						return err
					}
					return s.emit(res, func(w io.Writer) { fmt.Fprintf(w, "Uploaded %s\n", res.URL) })
				})
			},
		},
	)
	return cmd
}

// boardCmd builds a command that runs one board edit. nargs < 0 leaves
// argument checking to the caller.
func (s *state) boardCmd(use, short string, nargs int, run func(*cobra.Command, *app.App, []string) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		RunE: func(cmd *cobra.Command, args []string) error {
			return s.withApp(cmd.Context(), func(a *app.App) error { return run(cmd, a, args) })
		},
	}
	if nargs >= 0 {
		cmd.Args = cobra.ExactArgs(nargs)
	}
	return cmd
}

func writeCategories(w io.Writer, cats []types.Category) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOLOR\tSHORTCUTS\tCOLLAPSED")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%t\n", c.ID, c.Name, c.Color, len(c.Shortcuts), c.Collapsed)
	}
	tw.Flush()
}
