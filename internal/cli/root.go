// Package cli implements the bigcsv command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/jlehrer1/big-csv/internal/paths"
	"github.com/jlehrer1/big-csv/pkg/types"
)

// Exit codes.
const (
	exitSuccess   = 0
	exitUserError = 1
	exitSysError  = 2
)

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	jsonMode  bool
	quiet     bool
	verbose   bool
}

var flags rootFlags

// Per-invocation state set up by the root PersistentPreRunE.
var (
	conf   *viper.Viper
	logger = slog.New(slog.DiscardHandler)
)

// NewRootCmd creates the top-level "bigcsv" command with global flags and
// all subcommands registered.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "bigcsv",
		Short: "Transpose delimited files that do not fit in memory",
		Long: "bigcsv transposes large delimited text files in fixed-size row chunks,\n" +
			"converts numeric matrices to h5ad and uploads results to object storage.",
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: setup,
	}

	root.PersistentFlags().StringVar(&flags.configDir, "config-dir", "", "configuration directory (env "+paths.EnvConfigDir+")")
	root.PersistentFlags().StringVar(&flags.dataDir, "data-dir", "", "data directory holding the run ledger (env "+paths.EnvDataDir+")")
	root.PersistentFlags().BoolVar(&flags.jsonMode, "json", false, "output in JSON format")
	root.PersistentFlags().BoolVarP(&flags.quiet, "quiet", "q", false, "only log warnings and errors")
	root.PersistentFlags().BoolVarP(&flags.verbose, "verbose", "v", false, "log debug detail")
	root.MarkFlagsMutuallyExclusive("quiet", "verbose")
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usagef("%s", err)
	})

	root.AddCommand(newVersionCmd())
	root.AddCommand(newInitCmd())
	root.AddCommand(newTransposeCmd())
	root.AddCommand(newH5adCmd())
	root.AddCommand(newUploadCmd())
	root.AddCommand(newRunsCmd())
	root.AddCommand(newFetchCmd())

	return root
}

// setup builds the logger and loads configuration for every subcommand.
func setup(cmd *cobra.Command, _ []string) error {
	logger = newLogger(cmd.ErrOrStderr(), flags.jsonMode, flags.quiet, flags.verbose)

	configDir, err := paths.ResolveConfigDir(flags.configDir)
	if err != nil {
		return fmt.Errorf("resolve config dir: %w", err)
	}
	conf, err = loadConfig(configDir)
	if err != nil {
		return err
	}
	logger.Debug("loaded configuration", "config_dir", configDir, "file", conf.ConfigFileUsed())
	return nil
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context) int {
	return run(ctx, NewRootCmd(), os.Stderr)
}

func run(ctx context.Context, root *cobra.Command, stderr io.Writer) int {
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, "Error:", err)
		return exitCode(err)
	}
	return exitSuccess
}

// exitCode maps an error to the process exit code: problems the user can
// fix by changing the invocation or the input are user errors, everything
// else is a system error.
func exitCode(err error) int {
	var uerr *usageError
	switch {
	case err == nil:
		return exitSuccess
	case errors.Is(err, types.ErrConfig),
		errors.Is(err, types.ErrParse),
		errors.Is(err, types.ErrStorageCollision),
		errors.Is(err, types.ErrRunNotFound),
		errors.As(err, &uerr):
		return exitUserError
	default:
		return exitSysError
	}
}

// usageError marks invalid command-line usage.
type usageError struct{ msg string }

func (e *usageError) Error() string { return e.msg }

func usagef(format string, args ...any) error {
	return &usageError{msg: fmt.Sprintf(format, args...)}
}
