package loadtest

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"github.com/okian/snackboard/pkg/logger"
)

// randomFinal returns a count in [1, maxBites].
func randomFinal(maxBites int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxBites)))
	if err != nil {
		return maxBites
	}
	return int(n.Int64()) + 1
}

// generateSnackers builds the plan: one uniquely identified snacker per user,
// each with the count it will have eaten by the end of the run.
func generateSnackers(ctx context.Context, config *Config, stats *Stats) []Snacker {
	logger.Get().Info(ctx, "generating snackers", logger.Int("users", config.Users))

	snackers := make([]Snacker, config.Users)
	planned := 0
	for i := range snackers {
		final := randomFinal(config.MaxBites)
		snackers[i] = Snacker{
			UserID:   uuid.NewString(),
			UserName: fmt.Sprintf("snacker-%04d", i+1),
			Final:    final,
		}
		planned += final
	}

	stats.Snackers = len(snackers)
	stats.PushesPlanned = planned
	return snackers
}
