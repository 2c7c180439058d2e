package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SweepTaskName names the pending upload sweeper.
const SweepTaskName = "sweep_pending_uploads"

const sweepBatch = 100

// PendingSweeper removes uploads stuck in the pending state.
type PendingSweeper interface {
	SweepPending(ctx context.Context, cutoff time.Time, batch int) (int, error)
}

// SweepTask removes pending uploads older than ttl. These are left behind
// when the process dies between reserving a row and storing its blob.
func SweepTask(sweeper PendingSweeper, ttl, every time.Duration, log *zap.Logger) Task {
	return Task{
		Name:        SweepTaskName,
		Description: "remove abandoned pending uploads",
		Every:       every,
		Handler: func(ctx context.Context) error {
			total := 0
			for {
				n, err := sweeper.SweepPending(ctx, time.Now().Add(-ttl), sweepBatch)
				total += n
				if err != nil {
					return err
				}
				if n < sweepBatch {
					break
				}
			}
			if total > 0 {
				log.Info("swept pending uploads", zap.Int("removed", total))
			}
			return nil
		},
	}
}
