package storage

import (
	"context"
	"time"

	"github.com/mcpfleet/gateway/pkg/logging"
)

// RunSweeper periodically calls Sweep on every given repository until ctx
// is cancelled. One shared ticker drives every repository's cleanup:
// logged at debug, one goroutine per gatewayd process.
func RunSweeper(ctx context.Context, interval time.Duration, repos ...Repository) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, repo := range repos {
				if n := repo.Sweep(); n > 0 {
					logging.Debug("Storage", "swept %d expired entries", n)
				}
			}
		}
	}
}
