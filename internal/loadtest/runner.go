package loadtest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/okian/snackboard/internal/client/syncclient"
	"github.com/okian/snackboard/pkg/logger"
)

const (
	directoryPermission = 0750
	filePermission      = 0600
	percentage          = 100
	defaultTimeout      = 10 * time.Second
)

// Run executes a complete load run: health check, plan, concurrent pushes,
// then verification of the served ranking.
func Run(ctx context.Context, config *Config) (*Stats, error) {
	if config.Users <= 0 || config.MaxBites <= 0 || config.Workers <= 0 {
		return nil, fmt.Errorf("%w: users, max bites and workers must be positive", ErrInvalidConfig)
	}

	if config.Timeout <= 0 {
		config.Timeout = defaultTimeout
	}

	stats := &Stats{StartTime: time.Now()}
	log := logger.Get()
	log.Info(ctx, "starting snackboard load test",
		logger.String("baseURL", config.BaseURL),
		logger.Int("users", config.Users),
		logger.Int("maxBites", config.MaxBites),
		logger.Int("workers", config.Workers),
		logger.Duration("timeout", config.Timeout),
		logger.Bool("strict", config.Strict))

	if err := checkServiceHealth(ctx, config); err != nil {
		return stats, err
	}

	client, err := syncclient.New(config.BaseURL,
		syncclient.WithTimeout(config.Timeout),
		syncclient.WithRankingLimit(1),
		syncclient.WithLogger(logger.Named("loadtest")),
	)
	if err != nil {
		return stats, err
	}

	snackers := generateSnackers(ctx, config, stats)
	submitSnackers(ctx, config, client, snackers, stats)
	if err := ctx.Err(); err != nil {
		return stats, fmt.Errorf("submission interrupted: %w", err)
	}

	ranked, err := fetchFullRanking(ctx, config, stats)
	if err != nil {
		return stats, err
	}
	verifyErr := verifyResults(ctx, config, snackers, ranked, stats)

	if config.OutputFile != "" {
		if err := savePlan(config.OutputFile, snackers); err != nil {
			log.Warn(ctx, "failed to save plan", logger.Error(err))
		} else {
			log.Info(ctx, "plan saved", logger.String("file", config.OutputFile))
		}
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	return stats, verifyErr
}

// checkServiceHealth verifies the server answers on /healthz.
func checkServiceHealth(ctx context.Context, config *Config) error {
	reqCtx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, strings.TrimRight(config.BaseURL, "/")+"/healthz", http.NoBody)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrUnhealthy, resp.StatusCode)
	}
	return nil
}

// savePlan writes the generated snackers as a JSON array.
func savePlan(filename string, snackers []Snacker) error {
	if dir := filepath.Dir(filename); dir != "." {
		if err := os.MkdirAll(dir, directoryPermission); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	data, err := json.MarshalIndent(snackers, "", "  ")
	if err != nil {
		return fmt.Errorf("encode plan: %w", err)
	}
	return os.WriteFile(filename, append(data, '\n'), filePermission)
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, pushesPerSecond float64
	if stats.PushesPlanned > 0 {
		acceptRate = float64(stats.PushesAccepted) / float64(stats.PushesPlanned) * percentage
	}
	if stats.Duration > 0 {
		pushesPerSecond = float64(stats.PushesAccepted+stats.PushesFailed) / stats.Duration.Seconds()
	}

	logger.Get().Info(ctx, "final statistics",
		logger.Int("snackers", stats.Snackers),
		logger.Int("pushesPlanned", stats.PushesPlanned),
		logger.Int("pushesAccepted", stats.PushesAccepted),
		logger.Int("pushesFailed", stats.PushesFailed),
		logger.Int("rankingEntries", stats.RankingEntries),
		logger.Int("mismatches", len(stats.Mismatches)),
		logger.Duration("duration", stats.Duration),
		logger.Any("acceptRate", acceptRate),
		logger.Any("pushesPerSecond", pushesPerSecond))
}
