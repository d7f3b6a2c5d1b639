// Package sweeper drives the wall-clock transitions: activating scheduled
// auctions, flagging ending-soon ones and closing expired ones. Every
// transition funnels through the service's serialized write path, so the
// sweeper can race the Redis expiry watcher (and other instances) safely.
package sweeper

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bidinsouk/internal/services/auction"
)

// Run starts the periodic sweep goroutine.
func Run(ctx context.Context, svc auction.IAuctionService, interval time.Duration) {
	tk := time.NewTicker(interval)
	go func() {
		defer tk.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-tk.C:
				sweepOnce(ctx, svc)
			}
		}
	}()
}

func sweepOnce(ctx context.Context, svc auction.IAuctionService) {
	if err := svc.ActivateDue(ctx); err != nil {
		zap.L().Warn("sweep.activate", zap.Error(err))
	}
	if err := svc.SweepEndingSoon(ctx); err != nil {
		zap.L().Warn("sweep.ending_soon", zap.Error(err))
	}
	if err := svc.CloseExpired(ctx); err != nil {
		zap.L().Warn("sweep.close", zap.Error(err))
	}
}
