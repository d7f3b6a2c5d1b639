// Package notify publishes auction events to Redis pub/sub; the websocket
// layer fans them out to connected clients. Delivery is at-least-once and
// never rolls back the auction mutation that produced the event.
package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	svc "bidinsouk/internal/services/auction"
)

type RedisNotifier struct {
	rdc *redis.Client
}

var _ svc.Notifier = (*RedisNotifier)(nil)

func New(rdc *redis.Client) *RedisNotifier { return &RedisNotifier{rdc: rdc} }

// ChannelFor is the per-auction event channel, one per room.
func ChannelFor(auctionID string) string {
	return fmt.Sprintf("auc:%s:events", auctionID)
}

func (n *RedisNotifier) Notify(ctx context.Context, ev svc.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return n.rdc.Publish(ctx, ChannelFor(ev.AuctionID), payload).Err()
}
