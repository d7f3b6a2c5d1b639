package domain

import "time"

// AuctionState is the lifecycle position of an auction. Stored as text.
type AuctionState string

const (
	StateDraft      AuctionState = "DRAFT"
	StateScheduled  AuctionState = "SCHEDULED"
	StateActive     AuctionState = "ACTIVE"
	StateEndingSoon AuctionState = "ENDING_SOON"
	StateEnded      AuctionState = "ENDED"
	StateCancelled  AuctionState = "CANCELLED"
)

// Terminal reports whether no further transition is legal.
func (s AuctionState) Terminal() bool {
	return s == StateEnded || s == StateCancelled
}

// Open reports whether the auction accepts bids in this state.
func (s AuctionState) Open() bool {
	return s == StateActive || s == StateEndingSoon
}

// Auction is the aggregate root for one listing's bidding ledger. Every
// mutation of CurrentBid/BidCount/LeaderID/WinnerID flows through its methods
// inside a single serialized persistence unit.
type Auction struct {
	ID        string
	ProductID string
	SellerID  string

	StartingPrice Money
	ReservePrice  *Money // nil when the seller set no reserve
	CurrentBid    Money
	MinIncrement  Money

	StartAt time.Time
	EndAt   time.Time
	State   AuctionState

	BidCount int
	LeaderID string // current highest bidder, empty until the first bid
	WinnerID string // set only by End

	// Anti-sniping parameters; window zero disables extension.
	AntiSnipeWindow    time.Duration
	AntiSnipeExtension time.Duration
	MaxExtensions      int
	ExtensionCount     int
	// Bid that caused the latest extension; makes ExtendForBid idempotent.
	LastExtendedBidID string

	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Currency is the auction's currency, taken from the starting price.
func (a *Auction) Currency() string { return a.StartingPrice.Currency() }

// MinimumBid is the smallest acceptable next bid: the starting price while no
// bid exists, currentBid+minIncrement afterwards.
func (a *Auction) MinimumBid() (Money, error) {
	if a.BidCount == 0 {
		return a.StartingPrice, nil
	}
	return a.CurrentBid.Add(a.MinIncrement)
}

// ReserveMet reports whether the current bid satisfies the reserve. Auctions
// without a reserve always have it met once a bid exists.
func (a *Auction) ReserveMet() bool {
	if a.BidCount == 0 {
		return false
	}
	if a.ReservePrice == nil {
		return true
	}
	ok, err := a.CurrentBid.GTE(*a.ReservePrice)
	return err == nil && ok
}

// TimeRemaining is the duration until endAt, never negative.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	if d := a.EndAt.Sub(now); d > 0 {
		return d
	}
	return 0
}

// applyBid records an accepted bid on the aggregate. Callers must have
// validated the bid first.
func (a *Auction) applyBid(b Bid) {
	a.CurrentBid = b.Amount
	a.LeaderID = b.BidderID
	a.BidCount++
}

// Bid is one accepted offer. Immutable once persisted; later bids supersede
// it but never modify it.
type Bid struct {
	ID        string
	AuctionID string
	BidderID  string
	Amount    Money
	PlacedAt  time.Time

	IsAutomatic    bool
	ProxyMaxAmount *Money // set on automatic bids: the mandate ceiling
}

// AutoBidMandate is a standing maximum a bidder authorizes for one auction.
// At most one active mandate may exist per (auction, bidder) pair.
type AutoBidMandate struct {
	ID        string
	AuctionID string
	BidderID  string
	MaxAmount Money
	Increment Money
	Active    bool
	CreatedAt time.Time
}

// Deactivate marks the mandate spent; it no longer participates in proxy
// resolution.
func (m *AutoBidMandate) Deactivate() { m.Active = false }
