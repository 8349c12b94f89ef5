// Package cli implements the tabshelf command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/mesh-intelligence/tabshelf/internal/paths"
	"github.com/mesh-intelligence/tabshelf/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// Version is the tabshelf release, overridable with -ldflags.
var Version = "0.1.0"

const modulePath = "github.com/mesh-intelligence/tabshelf"

// state is shared by every command of one invocation.
type state struct {
	configDir string
	dataDir   string
	logLevel  string
	jsonMode  bool

	cfg    *viper.Viper
	stdin  io.Reader
	stdout io.Writer
	stderr io.Writer
}

// NewRootCmd creates the top-level "tabshelf" command with global flags
// and all subcommands registered.
func NewRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	s := &state{stdin: stdin, stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "tabshelf",
		Short: "Storage and sync core of a new-tab bookmark dashboard",
		Long: "tabshelf manages dashboard configurations (profiles), their categories,\n" +
			"shortcuts and theme, stored locally or synced through a remote store.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			dir, err := paths.ResolveConfigDir(s.configDir)
			if err != nil {
				return failSys(fmt.Errorf("resolve config dir: %w", err))
			}
			s.configDir = dir
			cfg, err := loadConfig(dir)
			if err != nil {
				return failSys(err)
			}
			s.cfg = cfg
			return nil
		},
	}
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&s.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&s.dataDir, "data-dir", "", "data directory (default: platform data dir)")
	pf.BoolVar(&s.jsonMode, "json", false, "output as JSON")
	pf.StringVar(&s.logLevel, "log-level", "", "log level: debug, info, warn, error")

	root.AddCommand(
		newVersionCmd(s),
		newInitCmd(s),
		newConfigCmd(s),
		newCloudCmd(s),
		newDataCmd(s),
		newCategoryCmd(s),
		newShortcutCmd(s),
		newViewCmd(s),
		newThemeCmd(s),
		newWatchCmd(s),
	)
	return root
}

// Run executes args and returns the process exit code.
func Run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := NewRootCmd(stdin, stdout, stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitSuccess
	}
	fmt.Fprintln(stderr, "tabshelf:", err)
	return exitCode(err)
}

// Execute runs the root command with the process arguments and exits.
func Execute() {
	os.Exit(Run(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// exitError carries the exit code chosen for a command failure.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

// userErrors are failures caused by the request rather than the system.
var userErrors = []error{
	types.ErrConfigNotFound,
	types.ErrInvalidOperation,
	types.ErrValidation,
	types.ErrUnknownKind,
	types.ErrRemoteNotConfigured,
	types.ErrCategoryNotFound,
	types.ErrShortcutNotFound,
	types.ErrInvalidName,
	types.ErrInvalidURL,
	types.ErrQuotaExceeded,
}

// fail tags err with an exit code by its kind.
func fail(err error) error {
	if err == nil {
		return nil
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return &exitError{code: exitUserError, err: err}
		}
	}
	return failSys(err)
}

func failUser(err error) error { return &exitError{code: exitUserError, err: err} }
func failSys(err error) error  { return &exitError{code: exitSysError, err: err} }

// exitCode maps a command error to an exit code. Untagged errors come from
// argument parsing and count as user errors.
func exitCode(err error) int {
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	return exitUserError
}
