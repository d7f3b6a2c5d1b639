package auction

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"bidinsouk/internal/clock"
	"bidinsouk/internal/domain"
)

// Settings are the engine defaults applied to new auctions; values supplied
// at creation time take precedence.
type Settings struct {
	Currency           string
	MinIncrement       int64
	EndingSoonWindow   time.Duration
	AntiSnipeWindow    time.Duration
	AntiSnipeExtension time.Duration
	MaxExtensions      int
	ScheduleGrace      time.Duration
}

type IAuctionService interface {
	CreateAuction(ctx context.Context, in CreateAuctionInput) (*Snapshot, error)
	ScheduleAuction(ctx context.Context, auctionID string, startAt, endAt time.Time) error
	PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (*BidResult, error)
	CreateAutoBidMandate(ctx context.Context, auctionID, bidderID string, maxAmount, increment int64) (*BidResult, error)
	CloseAuction(ctx context.Context, auctionID string) error
	CancelAuction(ctx context.Context, auctionID, reason string, adminOverride bool) error
	GetAuctionSnapshot(ctx context.Context, id string) (*Snapshot, error)
	ListAuctions(ctx context.Context, state string, limit, offset int) ([]Snapshot, error)

	ActivateDue(ctx context.Context) error
	SweepEndingSoon(ctx context.Context) error
	CloseExpired(ctx context.Context) error
}

type CreateAuctionInput struct {
	ProductID string
	SellerID  string

	StartingPrice int64
	ReservePrice  *int64
	MinIncrement  int64 // 0 means the configured default

	AntiSnipeWindow    *time.Duration // nil means the configured default
	AntiSnipeExtension *time.Duration
	MaxExtensions      *int
}

// BidResult reports the outcome of an accepted bid or mandate. AcceptedBid is
// the final high bid, which may be an automatic counter-bid rather than the
// caller's own.
type BidResult struct {
	AcceptedBid domain.Bid
	AutoBids    []domain.Bid
	Extended    bool
	Snapshot    *Snapshot
}

type auctionService struct {
	store    Store
	orders   OrderPort
	notifier Notifier
	cache    SnapshotCache
	clk      clock.Clock
	settings Settings
	newID    func() string
}

var _ IAuctionService = (*auctionService)(nil)

func NewAuctionService(store Store, orders OrderPort, notifier Notifier, cache SnapshotCache, clk clock.Clock, settings Settings) IAuctionService {
	return &auctionService{
		store:    store,
		orders:   orders,
		notifier: notifier,
		cache:    cache,
		clk:      clk,
		settings: settings,
		newID:    uuid.NewString,
	}
}

// CreateAuction persists a new DRAFT auction owned by the seller.
func (svc *auctionService) CreateAuction(ctx context.Context, in CreateAuctionInput) (*Snapshot, error) {
	now := svc.clk.Now()

	starting, err := domain.NewMoney(in.StartingPrice, svc.settings.Currency)
	if err != nil {
		return nil, err
	}
	minIncUnits := in.MinIncrement
	if minIncUnits <= 0 {
		minIncUnits = svc.settings.MinIncrement
	}
	minInc, err := domain.NewMoney(minIncUnits, svc.settings.Currency)
	if err != nil {
		return nil, err
	}

	a := &domain.Auction{
		ID:                 svc.newID(),
		ProductID:          in.ProductID,
		SellerID:           in.SellerID,
		StartingPrice:      starting,
		CurrentBid:         starting,
		MinIncrement:       minInc,
		State:              domain.StateDraft,
		AntiSnipeWindow:    svc.settings.AntiSnipeWindow,
		AntiSnipeExtension: svc.settings.AntiSnipeExtension,
		MaxExtensions:      svc.settings.MaxExtensions,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.ReservePrice != nil {
		reserve, err := domain.NewMoney(*in.ReservePrice, svc.settings.Currency)
		if err != nil {
			return nil, err
		}
		a.ReservePrice = &reserve
	}
	if in.AntiSnipeWindow != nil {
		a.AntiSnipeWindow = *in.AntiSnipeWindow
	}
	if in.AntiSnipeExtension != nil {
		a.AntiSnipeExtension = *in.AntiSnipeExtension
	}
	if in.MaxExtensions != nil {
		a.MaxExtensions = *in.MaxExtensions
	}
	if a.AntiSnipeWindow > 0 && a.MaxExtensions <= 0 {
		return nil, domain.ErrExtensionCapRequired
	}

	err = svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		return tx.InsertAuction(ctx, a)
	})
	if err != nil {
		return nil, fmt.Errorf("create auction: %w", err)
	}
	return NewSnapshot(a, now), nil
}

// ScheduleAuction moves a DRAFT auction into SCHEDULED with its bidding
// window.
func (svc *auctionService) ScheduleAuction(ctx context.Context, auctionID string, startAt, endAt time.Time) error {
	now := svc.clk.Now()
	var snap *Snapshot
	err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := tx.LoadAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := a.Schedule(now, startAt.UTC(), endAt.UTC(), svc.settings.ScheduleGrace); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		snap = NewSnapshot(a, now)
		return nil
	})
	if err != nil {
		return err
	}
	svc.putSnapshot(ctx, snap)
	return nil
}

// PlaceBid validates and records a bid, resolves competing auto-bid mandates
// and applies the anti-snipe extension, all in one serialized unit. The
// returned result carries the final high bid, which may belong to a proxy.
func (svc *auctionService) PlaceBid(ctx context.Context, auctionID, bidderID string, amount int64) (*BidResult, error) {
	now := svc.clk.Now()
	var (
		res    BidResult
		events []Event
	)

	err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := tx.LoadAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		amt, err := domain.NewMoney(amount, a.Currency())
		if err != nil {
			return err
		}

		prevLeader := a.LeaderID
		bid := domain.Bid{
			ID:        svc.newID(),
			AuctionID: a.ID,
			BidderID:  bidderID,
			Amount:    amt,
			PlacedAt:  now,
		}
		if err := a.AcceptBid(bid, now); err != nil {
			return err
		}
		newBids := []domain.Bid{bid}

		mandates, err := tx.LoadActiveMandates(ctx, a.ID)
		if err != nil {
			return err
		}
		autoBids, err := domain.ResolveAutoBids(a, mandates, now, svc.newID)
		if err != nil {
			return err
		}
		newBids = append(newBids, autoBids...)
		for _, m := range mandates {
			if err := tx.SaveMandate(ctx, m); err != nil {
				return err
			}
		}

		// Extension keys off the manual bid that triggered the round;
		// re-running it for the same bid is a no-op.
		extended, err := a.ExtendForBid(bid.ID, bid.PlacedAt)
		if err != nil {
			return err
		}

		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		if err := tx.InsertBids(ctx, newBids); err != nil {
			return err
		}

		final := newBids[len(newBids)-1]
		res = BidResult{
			AcceptedBid: final,
			AutoBids:    autoBids,
			Extended:    extended,
			Snapshot:    NewSnapshot(a, now),
		}

		events = append(events, Event{
			Kind: EventBidAccepted, AuctionID: a.ID, BidderID: final.BidderID,
			Amount: final.Amount.Amount(), Currency: final.Amount.Currency(), At: now,
		})
		for _, loser := range outbidLosers(prevLeader, newBids, a.LeaderID) {
			events = append(events, Event{
				Kind: EventOutbid, AuctionID: a.ID, BidderID: loser,
				Amount: a.CurrentBid.Amount(), Currency: a.Currency(), At: now,
			})
		}
		if extended {
			events = append(events, Event{
				Kind: EventExtended, AuctionID: a.ID, EndAt: a.EndAt, At: now,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	svc.putSnapshot(ctx, res.Snapshot)
	if res.Extended && svc.cache != nil {
		if err := svc.cache.SetTimer(ctx, auctionID, res.Snapshot.EndAt, now); err != nil {
			zap.L().Warn("timer_refresh", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}
	svc.emit(ctx, events...)
	return &res, nil
}

// CreateAutoBidMandate registers (or replaces) the bidder's standing maximum
// and immediately runs one resolution round in case the new mandate is
// already beaten or should take the lead.
func (svc *auctionService) CreateAutoBidMandate(ctx context.Context, auctionID, bidderID string, maxAmount, increment int64) (*BidResult, error) {
	now := svc.clk.Now()
	var (
		res    BidResult
		events []Event
	)

	err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := tx.LoadAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if !a.State.Open() {
			return domain.ErrAuctionNotOpen
		}

		maxAmt, err := domain.NewMoney(maxAmount, a.Currency())
		if err != nil {
			return err
		}
		if c, err := maxAmt.Cmp(a.CurrentBid); err != nil {
			return err
		} else if c <= 0 {
			return domain.ErrMandateBelowCurrent
		}
		if increment <= 0 {
			increment = a.MinIncrement.Amount()
		}
		inc, err := domain.NewMoney(increment, a.Currency())
		if err != nil {
			return err
		}

		// One active mandate per (auction, bidder): replace, never stack.
		if err := tx.DeactivateMandate(ctx, a.ID, bidderID); err != nil {
			return err
		}
		m := &domain.AutoBidMandate{
			ID:        svc.newID(),
			AuctionID: a.ID,
			BidderID:  bidderID,
			MaxAmount: maxAmt,
			Increment: inc,
			Active:    true,
			CreatedAt: now,
		}
		if err := tx.SaveMandate(ctx, m); err != nil {
			return err
		}

		prevLeader := a.LeaderID
		mandates, err := tx.LoadActiveMandates(ctx, a.ID)
		if err != nil {
			return err
		}
		autoBids, err := domain.ResolveAutoBids(a, mandates, now, svc.newID)
		if err != nil {
			return err
		}
		for _, mm := range mandates {
			if err := tx.SaveMandate(ctx, mm); err != nil {
				return err
			}
		}
		if len(autoBids) > 0 {
			a.UpdatedAt = now
			if err := tx.SaveAuction(ctx, a); err != nil {
				return err
			}
			if err := tx.InsertBids(ctx, autoBids); err != nil {
				return err
			}
		}

		res = BidResult{
			AutoBids: autoBids,
			Snapshot: NewSnapshot(a, now),
		}
		if len(autoBids) > 0 {
			final := autoBids[len(autoBids)-1]
			res.AcceptedBid = final
			events = append(events, Event{
				Kind: EventBidAccepted, AuctionID: a.ID, BidderID: final.BidderID,
				Amount: final.Amount.Amount(), Currency: final.Amount.Currency(), At: now,
			})
			for _, loser := range outbidLosers(prevLeader, autoBids, a.LeaderID) {
				events = append(events, Event{
					Kind: EventOutbid, AuctionID: a.ID, BidderID: loser,
					Amount: a.CurrentBid.Amount(), Currency: a.Currency(), At: now,
				})
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if len(res.AutoBids) > 0 {
		svc.putSnapshot(ctx, res.Snapshot)
	}
	svc.emit(ctx, events...)
	return &res, nil
}

// CloseAuction ends an expired auction, converts a qualifying high bid into a
// pending order and notifies the room. Safe to call from both the timer
// watcher and the sweeper; losers of the race get ErrIllegalTransition.
func (svc *auctionService) CloseAuction(ctx context.Context, auctionID string) error {
	now := svc.clk.Now()
	var (
		snap   *Snapshot
		winner string
		won    domain.Money
	)

	err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := tx.LoadAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := a.End(now); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		snap = NewSnapshot(a, now)
		winner = a.WinnerID
		won = a.CurrentBid
		return nil
	})
	if err != nil {
		return err
	}

	svc.putSnapshot(ctx, snap)
	if svc.cache != nil {
		if err := svc.cache.ClearTimer(ctx, auctionID); err != nil {
			zap.L().Warn("timer_clear", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}

	if winner != "" {
		if err := svc.orders.CreatePendingOrder(ctx, auctionID, winner, won); err != nil {
			// The auction is already committed; the order can be replayed.
			zap.L().Error("order_create", zap.String("auction_id", auctionID), zap.Error(err))
		}
		svc.emit(ctx, Event{
			Kind: EventWon, AuctionID: auctionID, BidderID: winner,
			Amount: won.Amount(), Currency: won.Currency(), At: now,
		})
		return nil
	}
	svc.emit(ctx, Event{Kind: EventPassed, AuctionID: auctionID, At: now})
	return nil
}

// CancelAuction withdraws an auction. With bids on the ledger it requires the
// administrative override, which records the reason for the bidders.
func (svc *auctionService) CancelAuction(ctx context.Context, auctionID, reason string, adminOverride bool) error {
	now := svc.clk.Now()
	var snap *Snapshot

	err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		a, err := tx.LoadAuctionForUpdate(ctx, auctionID)
		if err != nil {
			return err
		}
		if err := a.Cancel(reason, adminOverride); err != nil {
			return err
		}
		a.UpdatedAt = now
		if err := tx.SaveAuction(ctx, a); err != nil {
			return err
		}
		snap = NewSnapshot(a, now)
		return nil
	})
	if err != nil {
		return err
	}

	svc.putSnapshot(ctx, snap)
	if svc.cache != nil {
		if err := svc.cache.ClearTimer(ctx, auctionID); err != nil {
			zap.L().Warn("timer_clear", zap.String("auction_id", auctionID), zap.Error(err))
		}
	}
	svc.emit(ctx, Event{Kind: EventCancelled, AuctionID: auctionID, Reason: reason, At: now})
	return nil
}

// GetAuctionSnapshot serves reads without touching the write path: cache
// first, Postgres as fallback.
func (svc *auctionService) GetAuctionSnapshot(ctx context.Context, id string) (*Snapshot, error) {
	now := svc.clk.Now()
	if svc.cache != nil {
		if snap, err := svc.cache.Get(ctx, id); err != nil {
			zap.L().Debug("snapshot_cache_get", zap.String("auction_id", id), zap.Error(err))
		} else if snap != nil {
			snap.RemainingSecs = int64(snap.EndAt.Sub(now) / time.Second)
			if snap.RemainingSecs < 0 {
				snap.RemainingSecs = 0
			}
			return snap, nil
		}
	}

	a, err := svc.store.GetAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	return NewSnapshot(a, now), nil
}

func (svc *auctionService) ListAuctions(ctx context.Context, state string, limit, offset int) ([]Snapshot, error) {
	if limit == 0 {
		limit = 10
	}
	now := svc.clk.Now()
	auctions, err := svc.store.ListAuctions(ctx, state, limit, offset)
	if err != nil {
		return nil, err
	}
	out := make([]Snapshot, 0, len(auctions))
	for i := range auctions {
		out = append(out, *NewSnapshot(&auctions[i], now))
	}
	return out, nil
}

// ActivateDue opens every SCHEDULED auction whose start time has passed.
func (svc *auctionService) ActivateDue(ctx context.Context) error {
	now := svc.clk.Now()
	ids, err := svc.store.ListDueForActivation(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		var snap *Snapshot
		err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
			a, err := tx.LoadAuctionForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := a.Activate(now); err != nil {
				return err
			}
			a.UpdatedAt = now
			if err := tx.SaveAuction(ctx, a); err != nil {
				return err
			}
			snap = NewSnapshot(a, now)
			return nil
		})
		if err != nil {
			svc.logSweepErr("activate", id, err)
			continue
		}
		svc.putSnapshot(ctx, snap)
		if svc.cache != nil {
			if err := svc.cache.SetTimer(ctx, id, snap.EndAt, now); err != nil {
				zap.L().Warn("timer_set", zap.String("auction_id", id), zap.Error(err))
			}
		}
		svc.emit(ctx, Event{Kind: EventActivated, AuctionID: id, EndAt: snap.EndAt, At: now})
	}
	return nil
}

// SweepEndingSoon flips ACTIVE auctions into ENDING_SOON once inside the
// configured urgency window.
func (svc *auctionService) SweepEndingSoon(ctx context.Context) error {
	now := svc.clk.Now()
	ids, err := svc.store.ListDueForEndingSoon(ctx, now, svc.settings.EndingSoonWindow)
	if err != nil {
		return err
	}
	for _, id := range ids {
		var snap *Snapshot
		err := svc.store.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
			a, err := tx.LoadAuctionForUpdate(ctx, id)
			if err != nil {
				return err
			}
			if err := a.MarkEndingSoon(now, svc.settings.EndingSoonWindow); err != nil {
				return err
			}
			a.UpdatedAt = now
			if err := tx.SaveAuction(ctx, a); err != nil {
				return err
			}
			snap = NewSnapshot(a, now)
			return nil
		})
		if err != nil {
			svc.logSweepErr("ending-soon", id, err)
			continue
		}
		svc.putSnapshot(ctx, snap)
	}
	return nil
}

// CloseExpired is the fallback for auctions whose Redis timer was lost.
func (svc *auctionService) CloseExpired(ctx context.Context) error {
	now := svc.clk.Now()
	ids, err := svc.store.ListExpired(ctx, now)
	if err != nil {
		return err
	}
	for _, id := range ids {
		if err := svc.CloseAuction(ctx, id); err != nil {
			svc.logSweepErr("close", id, err)
		}
	}
	return nil
}

// outbidLosers lists every bidder who held the lead at some point during a
// bid round but did not finish as leader, in displacement order, once each.
// This includes bidders displaced mid-round by proxy counter-bids, not just
// the leader the round started with.
func outbidLosers(prevLeader string, bids []domain.Bid, finalLeader string) []string {
	var losers []string
	seen := map[string]bool{}
	note := func(id string) {
		if id == "" || id == finalLeader || seen[id] {
			return
		}
		seen[id] = true
		losers = append(losers, id)
	}
	note(prevLeader)
	for _, b := range bids {
		note(b.BidderID)
	}
	return losers
}

func (svc *auctionService) putSnapshot(ctx context.Context, snap *Snapshot) {
	if svc.cache == nil || snap == nil {
		return
	}
	if err := svc.cache.Put(ctx, snap); err != nil {
		zap.L().Warn("snapshot_cache_put", zap.String("auction_id", snap.ID), zap.Error(err))
	}
}

func (svc *auctionService) emit(ctx context.Context, events ...Event) {
	if svc.notifier == nil {
		return
	}
	for _, ev := range events {
		if err := svc.notifier.Notify(ctx, ev); err != nil {
			zap.L().Warn("notify", zap.String("event", string(ev.Kind)),
				zap.String("auction_id", ev.AuctionID), zap.Error(err))
		}
	}
}

func (svc *auctionService) logSweepErr(op, id string, err error) {
	// Another worker winning the same transition is expected, not a failure.
	if errors.Is(err, domain.ErrIllegalTransition) || errors.Is(err, domain.ErrBusy) {
		zap.L().Debug("sweep_race", zap.String("op", op), zap.String("auction_id", id), zap.Error(err))
		return
	}
	zap.L().Error("sweep", zap.String("op", op), zap.String("auction_id", id), zap.Error(err))
}
