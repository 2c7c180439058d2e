package jobs

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// BlacklistPruneTaskName names the revoked-token cleanup.
const BlacklistPruneTaskName = "prune_token_blacklist"

// BlacklistPruneTask drops revoked tokens that have expired anyway. prune
// receives the current time and reports how many entries it removed.
func BlacklistPruneTask(prune func(now time.Time) int, every time.Duration, log *zap.Logger) Task {
	return Task{
		Name:        BlacklistPruneTaskName,
		Description: "drop expired entries from the local token blacklist",
		Every:       every,
		Handler: func(ctx context.Context) error {
			if n := prune(time.Now()); n > 0 {
				log.Debug("pruned token blacklist", zap.Int("removed", n))
			}
			return nil
		},
	}
}
