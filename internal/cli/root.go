package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/wires/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// DB is the default journal path for invoke and trace.
	DB string

	// Logger is configured before any subcommand runs.
	Logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{config.FormatText, config.FormatJSON}

// NewRootCommand creates the root command for the wires CLI, with flag
// defaults taken from the WIRES_* environment and a .env file.
func NewRootCommand() *cobra.Command {
	cfg, err := config.Load()
	return newRootCommand(cfg, err)
}

// NewRootCommandWithConfig creates the root command with explicit flag
// defaults instead of the environment.
func NewRootCommandWithConfig(cfg config.Config) *cobra.Command {
	return newRootCommand(cfg, nil)
}

func newRootCommand(cfg config.Config, cfgErr error) *cobra.Command {
	opts := &RootOptions{DB: cfg.DB}

	cmd := &cobra.Command{
		Use:   "wires",
		Short: "wires - named dispatch slots with coupled failure handling",
		Long: `Build containers of named slots from CUE manifests, invoke them,
run scenario suites against them and inspect the dispatch journal.

Flag defaults come from WIRES_FORMAT, WIRES_DB and WIRES_VERBOSE,
read from the environment or a .env file in the working directory.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cfgErr != nil {
				return WrapExitError(ExitCommandError, "invalid environment", cfgErr)
			}
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError,
					fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}

			level := slog.LevelInfo
			if opts.Verbose {
				level = slog.LevelDebug
			}
			opts.Logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
				Level: level,
			}))
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", cfg.Verbose, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", formatOrDefault(cfg.Format), "output format (json|text)")

	cmd.AddCommand(NewCompileCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))

	return cmd
}

func formatOrDefault(format string) string {
	if format == "" {
		return config.FormatText
	}
	return format
}

// logger returns the configured logger, or slog.Default when a command
// runs without the root pre-run hook.
func (o *RootOptions) logger() *slog.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return slog.Default()
}
