package cli

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/snackboard/internal/client/session"
	"github.com/okian/snackboard/internal/client/syncclient"
	"github.com/okian/snackboard/internal/domain/types"
)

// NewRankingCommand creates the ranking command.
func NewRankingCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "ranking",
		Short: "Show the leaderboard",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			var clientOpts []syncclient.Option
			if cmd.Flags().Changed("limit") {
				clientOpts = append(clientOpts, syncclient.WithRankingLimit(limit))
			}
			rt, err := newRuntime(rootOpts, clientOpts...)
			if err != nil {
				return fail(f, err)
			}
			defer rt.Close()

			ctx := cmd.Context()
			ranked := rt.client.Pull(ctx)
			if !rt.client.Loaded() {
				return f.Fail(ExitCommandError, ErrCodeUnreachable,
					"could not load the ranking from "+rt.client.BaseURL(), nil)
			}

			result := rankingResult{Ranking: ranked}
			if id, ok := rt.identities.Lookup(ctx); ok {
				result.Me = id.UserID
			}
			return f.Success(result)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries to show; 0 shows everyone (default from SNACK_RANKING_LIMIT)")
	return cmd
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Keep showing the leaderboard as it changes",
		Long: `Refresh the leaderboard periodically until interrupted. A refresh that
fails keeps showing the last ranking.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			if !cmd.Flags().Changed("interval") {
				interval = rootOpts.Config.PollInterval()
			}
			if interval <= 0 {
				return f.Fail(ExitFailure, ErrCodeInvalidInput, "interval must be positive", nil)
			}

			rt, err := newRuntime(rootOpts)
			if err != nil {
				return fail(f, err)
			}
			defer rt.Close()

			ctx := cmd.Context()
			var me string
			if id, ok := rt.identities.Lookup(ctx); ok {
				me = id.UserID
			}

			frames := make(chan []types.UserRecord, 1)
			err = rt.withSession(ctx, func(s *session.Session) error {
				for {
					select {
					case <-ctx.Done():
						return nil
					case ranked := <-frames:
						f.VerboseLog("refreshed at %s", time.Now().Format(time.TimeOnly))
						if err := f.Success(rankingResult{Ranking: ranked, Me: me}); err != nil {
							return err
						}
					}
				}
			},
				session.WithPushOnLoad(false),
				session.WithPollInterval(interval),
				session.WithOnRanking(func(ranked []types.UserRecord) {
					select {
					case frames <- ranked:
					case <-ctx.Done():
					}
				}),
			)
			if err != nil && !isCanceled(err) {
				return fail(f, err)
			}
			return nil
		},
	}

	cmd.Flags().DurationVarP(&interval, "interval", "i", 0, "refresh period (default from SNACK_POLL_INTERVAL_MS)")
	return cmd
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
