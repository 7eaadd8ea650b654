package loadtest

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/snackboard/internal/config"
	"github.com/okian/snackboard/pkg/logger"
)

// Default run parameters.
const (
	defaultUsers         = 200
	defaultMaxBites      = 20
	defaultWorkersPerCPU = 2
	defaultRunTimeout    = 10 * time.Minute
)

// NewCommand creates the snack-load command.
func NewCommand() *cobra.Command {
	run := &Config{}
	var verbose bool

	cmd := &cobra.Command{
		Use:   "snack-load",
		Short: "Push many simulated snackers at a snackboard server and verify the ranking",
		Long: `Simulates many snackers counting at once. Each snacker pushes every
count from 1 up to its final count in order, different snackers push
concurrently, and the full ranking is then checked against the plan.

Without serialize_writes on the server, concurrent upserts can lose each
other's records; --strict turns such mismatches into a failed run.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := logger.InitWithWriter(cmd.ErrOrStderr()); err != nil {
				return err
			}
			level := "info"
			if verbose {
				level = "debug"
			}
			if err := logger.SetLevelString(level); err != nil {
				return err
			}

			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("server") {
				run.BaseURL = cfg.ServerURL
			}
			if !cmd.Flags().Changed("timeout") {
				run.Timeout = cfg.RequestTimeout()
			}
			run.Verbose = verbose

			ctx, cancel := context.WithTimeout(cmd.Context(), defaultRunTimeout)
			defer cancel()

			stats, err := Run(ctx, run)
			if stats != nil {
				fmt.Fprintf(cmd.OutOrStdout(), "snackers=%d accepted=%d failed=%d mismatches=%d duration=%s\n",
					stats.Snackers, stats.PushesAccepted, stats.PushesFailed, len(stats.Mismatches), stats.Duration)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&run.BaseURL, "server", "", "snackboard server URL (default from SNACK_SERVER_URL)")
	cmd.Flags().IntVar(&run.Users, "users", defaultUsers, "number of simulated snackers")
	cmd.Flags().IntVar(&run.MaxBites, "max-bites", defaultMaxBites, "largest final count a snacker can reach")
	cmd.Flags().IntVar(&run.Workers, "workers", runtime.NumCPU()*defaultWorkersPerCPU, "number of concurrent workers")
	cmd.Flags().DurationVar(&run.Timeout, "timeout", 0, "HTTP request timeout (default from SNACK_REQUEST_TIMEOUT_MS)")
	cmd.Flags().StringVar(&run.OutputFile, "output", "", "write the generated plan to this JSON file")
	cmd.Flags().BoolVar(&run.Strict, "strict", false, "fail when the ranking disagrees with the pushed counts")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	return cmd
}
