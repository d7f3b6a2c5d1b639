package auction

import (
	"context"
	"time"

	"bidinsouk/internal/domain"
)

// Store is the persistence collaborator. WithTx opens the serialization unit;
// everything done through the TxStore it yields commits or rolls back as one.
type Store interface {
	WithTx(ctx context.Context, fn func(ctx context.Context, tx TxStore) error) error

	// Read-only path; may be served from a replica.
	GetAuction(ctx context.Context, id string) (*domain.Auction, error)
	ListAuctions(ctx context.Context, state string, limit, offset int) ([]domain.Auction, error)

	// Sweep queries for time-driven transitions.
	ListDueForActivation(ctx context.Context, now time.Time) ([]string, error)
	ListDueForEndingSoon(ctx context.Context, now time.Time, window time.Duration) ([]string, error)
	ListExpired(ctx context.Context, now time.Time) ([]string, error)
}

// TxStore is the transactional surface handed to WithTx callbacks.
// LoadAuctionForUpdate locks the auction row for the duration of the
// transaction; contention surfaces as domain.ErrBusy.
type TxStore interface {
	InsertAuction(ctx context.Context, a *domain.Auction) error
	LoadAuctionForUpdate(ctx context.Context, id string) (*domain.Auction, error)
	SaveAuction(ctx context.Context, a *domain.Auction) error
	InsertBids(ctx context.Context, bids []domain.Bid) error
	LoadActiveMandates(ctx context.Context, auctionID string) ([]*domain.AutoBidMandate, error)
	SaveMandate(ctx context.Context, m *domain.AutoBidMandate) error
	DeactivateMandate(ctx context.Context, auctionID, bidderID string) error
}

// OrderPort creates the pending order for a won auction. Failures are logged,
// never rolled back into the auction ledger.
type OrderPort interface {
	CreatePendingOrder(ctx context.Context, auctionID, winnerID string, amount domain.Money) error
}

// Notifier delivers events to bidders. Fire-and-forget: at-least-once is
// acceptable, the auction ledger stays the source of truth.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

// SnapshotCache mirrors committed auction state for the non-blocking read
// path and tracks the end-of-auction timer.
type SnapshotCache interface {
	Put(ctx context.Context, snap *Snapshot) error
	Get(ctx context.Context, auctionID string) (*Snapshot, error)
	SetTimer(ctx context.Context, auctionID string, endAt time.Time, now time.Time) error
	ClearTimer(ctx context.Context, auctionID string) error
}

type EventKind string

const (
	EventBidAccepted EventKind = "bid_accepted"
	EventOutbid      EventKind = "outbid"
	EventExtended    EventKind = "extended"
	EventWon         EventKind = "won"
	EventPassed      EventKind = "passed"
	EventCancelled   EventKind = "cancelled"
	EventActivated   EventKind = "activated"
)

// Event is the outbound notification payload.
type Event struct {
	Kind      EventKind `json:"event"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id,omitempty"`
	Amount    int64     `json:"amount,omitempty"`
	Currency  string    `json:"currency,omitempty"`
	EndAt     time.Time `json:"end_at,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}
