package auctionwatcher

import (
	"context"
	"errors"
	"strings"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"bidinsouk/internal/domain"
	"bidinsouk/internal/redis/snapshotcache"
	"bidinsouk/internal/services/auction"
)

// Run listens to key-expiry events for the auction timer keys and closes the
// corresponding auctions. Run must be started once at service boot; the
// periodic sweeper covers any expiry event lost while the process was down.
func Run(ctx context.Context, rdb *redis.Client, svc auction.IAuctionService) {
	_ = rdb.ConfigSet(ctx, "notify-keyspace-events", "Ex").Err()
	ps := rdb.PSubscribe(ctx, "__keyevent@*__:expired")
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-ps.Channel():
			if !strings.HasPrefix(m.Payload, snapshotcache.TimerKeyPrefix) {
				continue
			}
			id := strings.TrimPrefix(m.Payload, snapshotcache.TimerKeyPrefix)
			if err := svc.CloseAuction(ctx, id); err != nil &&
				!errors.Is(err, domain.ErrIllegalTransition) &&
				!errors.Is(err, domain.ErrAuctionNotFound) {
				zap.L().Error("auction_finalize", zap.String("auction_id", id), zap.Error(err))
			}
		}
	}
}
