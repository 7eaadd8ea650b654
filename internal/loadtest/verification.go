package loadtest

import (
	"context"
	"fmt"

	"github.com/okian/snackboard/internal/client/syncclient"
	"github.com/okian/snackboard/internal/domain/types"
	"github.com/okian/snackboard/pkg/logger"
)

const topDisplayed = 10

// fetchFullRanking pulls the unbounded ranking with a fresh client so nothing
// held from the submission phase can mask a failure.
func fetchFullRanking(ctx context.Context, config *Config, stats *Stats) ([]types.UserRecord, error) {
	client, err := syncclient.New(config.BaseURL,
		syncclient.WithTimeout(config.Timeout),
		syncclient.WithRankingLimit(0),
		syncclient.WithLogger(logger.Named("loadtest")),
	)
	if err != nil {
		return nil, err
	}

	ranked := client.Pull(ctx)
	if !client.Loaded() {
		return nil, ErrRankingUnavailable
	}
	stats.RankingEntries = len(ranked)
	return ranked, nil
}

// verifyResults compares the served ranking with the plan. Records that do
// not belong to this run are ignored.
func verifyResults(ctx context.Context, config *Config, snackers []Snacker, ranked []types.UserRecord, stats *Stats) error {
	log := logger.Get()
	log.Info(ctx, "verifying ranking", logger.Int("entries", len(ranked)))

	if err := verifySorted(ranked); err != nil {
		return err
	}

	served := make(map[string]int, len(ranked))
	for _, r := range ranked {
		served[r.ID] = r.Count
	}

	stats.Mismatches = stats.Mismatches[:0]
	for _, s := range snackers {
		got, ok := served[s.UserID]
		if ok && got == s.Final {
			continue
		}
		stats.Mismatches = append(stats.Mismatches, Mismatch{
			UserID:   s.UserID,
			Expected: s.Final,
			Got:      got,
			Missing:  !ok,
		})
	}

	displayTop(ctx, ranked, config.Verbose)

	if len(stats.Mismatches) == 0 {
		log.Info(ctx, "ranking matches every pushed count")
		return nil
	}

	for _, m := range stats.Mismatches {
		log.Warn(ctx, "count mismatch",
			logger.String("user_id", m.UserID),
			logger.Int("expected", m.Expected),
			logger.Int("got", m.Got),
			logger.Bool("missing", m.Missing))
	}
	if config.Strict {
		return fmt.Errorf("%w: %d of %d snackers", ErrLostUpdates, len(stats.Mismatches), len(snackers))
	}
	return nil
}

func verifySorted(ranked []types.UserRecord) error {
	for i := 1; i < len(ranked); i++ {
		if ranked[i].Count > ranked[i-1].Count {
			return fmt.Errorf("%w: entry %d (%d) above entry %d (%d)",
				ErrUnsorted, i, ranked[i].Count, i-1, ranked[i-1].Count)
		}
	}
	return nil
}

func displayTop(ctx context.Context, ranked []types.UserRecord, verbose bool) {
	if !verbose {
		return
	}
	n := min(topDisplayed, len(ranked))
	for i := range n {
		logger.Get().Info(ctx, "top snacker",
			logger.Int("position", i+1),
			logger.String("name", ranked[i].Name),
			logger.Int("count", ranked[i].Count))
	}
}
