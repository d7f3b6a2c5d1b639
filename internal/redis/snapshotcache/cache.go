// Package snapshotcache mirrors committed auction state into Redis so reads
// never touch the locked write path, and keeps the per-auction TTL timer key
// whose expiry triggers finalisation.
package snapshotcache

import (
	"context"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"bidinsouk/internal/domain"
	svc "bidinsouk/internal/services/auction"
)

const (
	KeyPrefix      = "auc:"
	TimerKeyPrefix = "auc_t:"

	// How long a terminal snapshot stays cached before Postgres becomes the
	// only source.
	terminalTTL = time.Hour
)

type Cache struct {
	rdc *redis.Client
}

var _ svc.SnapshotCache = (*Cache)(nil)

func New(rdc *redis.Client) *Cache { return &Cache{rdc: rdc} }

// Put overwrites the snapshot hash for the auction. Terminal states get a
// TTL so closed auctions age out of Redis on their own.
func (c *Cache) Put(ctx context.Context, snap *svc.Snapshot) error {
	key := KeyPrefix + snap.ID
	fields := map[string]any{
		"pid":  snap.ProductID,
		"sid":  snap.SellerID,
		"st":   snap.State,
		"cy":   snap.Currency,
		"cur":  snap.CurrentBid,
		"min":  snap.MinNextBid,
		"bc":   snap.BidCount,
		"lid":  snap.LeaderID,
		"wid":  snap.WinnerID,
		"sa":   snap.StartAt.Unix(),
		"ea":   snap.EndAt.Unix(),
		"rsv":  boolField(snap.HasReserve),
		"rmet": boolField(snap.ReserveMet),
		"ext":  snap.ExtensionCount,
	}
	pipe := c.rdc.TxPipeline()
	pipe.HSet(ctx, key, fields)
	if domain.AuctionState(snap.State).Terminal() {
		pipe.Expire(ctx, key, terminalTTL)
	} else {
		pipe.Persist(ctx, key)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Get returns the cached snapshot, or nil when the auction is not cached.
func (c *Cache) Get(ctx context.Context, auctionID string) (*svc.Snapshot, error) {
	data, err := c.rdc.HGetAll(ctx, KeyPrefix+auctionID).Result()
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	snap := &svc.Snapshot{
		ID:             auctionID,
		ProductID:      data["pid"],
		SellerID:       data["sid"],
		State:          data["st"],
		Currency:       data["cy"],
		CurrentBid:     atoi64(data["cur"]),
		MinNextBid:     atoi64(data["min"]),
		BidCount:       int(atoi64(data["bc"])),
		LeaderID:       data["lid"],
		WinnerID:       data["wid"],
		StartAt:        ts(data["sa"]),
		EndAt:          ts(data["ea"]),
		HasReserve:     data["rsv"] == "1",
		ReserveMet:     data["rmet"] == "1",
		ExtensionCount: int(atoi64(data["ext"])),
	}
	return snap, nil
}

// SetTimer arms (or re-arms, after an anti-snipe extension) the TTL key that
// fires finalisation when the auction runs out.
func (c *Cache) SetTimer(ctx context.Context, auctionID string, endAt, now time.Time) error {
	ttl := endAt.Sub(now)
	if ttl <= 0 {
		ttl = time.Millisecond
	}
	return c.rdc.Set(ctx, TimerKeyPrefix+auctionID, 1, ttl).Err()
}

func (c *Cache) ClearTimer(ctx context.Context, auctionID string) error {
	return c.rdc.Del(ctx, TimerKeyPrefix+auctionID).Err()
}

func boolField(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

func atoi64(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func ts(s string) time.Time {
	i, _ := strconv.ParseInt(s, 10, 64)
	return time.Unix(i, 0).UTC()
}
