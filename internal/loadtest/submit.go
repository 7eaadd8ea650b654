package loadtest

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/snackboard/internal/client/syncclient"
	"github.com/okian/snackboard/pkg/logger"
)

const (
	workerChannelMultiplier = 2
	progressInterval        = time.Second
)

// submitSnackers replays every snacker's bites against the server. A snacker
// is owned by one worker so its counts arrive in order, while different
// snackers push concurrently.
func submitSnackers(ctx context.Context, config *Config, client *syncclient.Client, snackers []Snacker, stats *Stats) {
	log := logger.Get()
	log.Info(ctx, "submitting bites",
		logger.Int("snackers", len(snackers)),
		logger.Int("pushes", stats.PushesPlanned),
		logger.Int("workers", config.Workers))

	var accepted, failed atomic.Int64
	var lastReport atomic.Int64

	work := make(chan Snacker, config.Workers*workerChannelMultiplier)
	var wg sync.WaitGroup

	for range config.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				for count := 1; count <= s.Final; count++ {
					if ctx.Err() != nil {
						return
					}
					if client.Push(ctx, s.UserID, s.UserName, count) {
						accepted.Add(1)
					} else {
						failed.Add(1)
					}
				}

				now := time.Now().UnixNano()
				last := lastReport.Load()
				if config.Verbose && now-last >= int64(progressInterval) && lastReport.CompareAndSwap(last, now) {
					log.Info(ctx, "progress",
						logger.Int64("accepted", accepted.Load()),
						logger.Int64("failed", failed.Load()),
						logger.Int("planned", stats.PushesPlanned))
				}
			}
		}()
	}

	go func() {
		defer close(work)
		for _, s := range snackers {
			select {
			case <-ctx.Done():
				return
			case work <- s:
			}
		}
	}()

	wg.Wait()

	stats.PushesAccepted = int(accepted.Load())
	stats.PushesFailed = int(failed.Load())
	log.Info(ctx, "submission completed",
		logger.Int("accepted", stats.PushesAccepted),
		logger.Int("failed", stats.PushesFailed))
}
