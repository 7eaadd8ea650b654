// Package cli implements the snack command line client.
package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/okian/snackboard/internal/config"
	"github.com/okian/snackboard/pkg/logger"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose  bool
	Format   string // "json" | "text"
	Server   string
	StateDir string

	// Config is resolved before any subcommand runs; flags override it.
	Config *config.Config
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the snack client.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "snack",
		Short: "snack - count the snacks you eat",
		Long: `Count the snacks you eat and compare with everyone else.

Counts are kept on this device and pushed to the snackboard server on
every change. When the server is unreachable counting keeps working
locally and the next successful push catches the server up.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.resolve(cmd)
		},
	}

	// Global flags
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "snackboard server URL (default from SNACK_SERVER_URL)")
	cmd.PersistentFlags().StringVar(&opts.StateDir, "state-dir", "", "directory for identity and local counts (default from SNACK_STATE_DIR)")

	// Add subcommands
	cmd.AddCommand(NewJoinCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewEatCommand(opts))
	cmd.AddCommand(NewUneatCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewCountCommand(opts))
	cmd.AddCommand(NewRankingCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewChangeUserCommand(opts))

	return cmd
}

// resolve loads configuration, applies flag overrides and routes logs to
// stderr so stdout only carries command output.
func (o *RootOptions) resolve(cmd *cobra.Command) error {
	if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
		return err
	}

	cfg, err := config.Load(cmd.Context())
	if err != nil {
		return err
	}
	if o.Server != "" {
		cfg.ServerURL = o.Server
	}
	if o.StateDir != "" {
		cfg.StateDir = o.StateDir
	}
	o.Config = cfg

	level := "warn"
	if o.Verbose {
		level = "debug"
	}
	return logger.SetLevelString(level)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
