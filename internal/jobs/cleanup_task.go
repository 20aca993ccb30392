package jobs

import (
	"context"
	"time"

	"github.com/stashd/stashd-backend/internal/service"

	"github.com/rs/zerolog"
)

// CleanupTask wires the cleanup service into the scheduler under the
// single-flight lock.
func CleanupTask(cleanup service.CleanupService, lock JobLock, log zerolog.Logger) func() error {
	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		acquired, err := lock.TryAcquire(ctx)
		if err != nil {
			return err
		}
		if !acquired {
			log.Info().Msg("cleanup already running elsewhere, skipping")
			return nil
		}
		defer func() {
			releaseCtx, releaseCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer releaseCancel()
			if err := lock.Release(releaseCtx); err != nil {
				log.Warn().Err(err).Msg("cleanup lock release failed, waiting for TTL")
			}
		}()

		stats, err := cleanup.RunCleanup(time.Now())
		if err != nil {
			return err
		}
		log.Info().Fields(stats.Summary()).Msg("scheduled cleanup finished")
		return nil
	}
}
