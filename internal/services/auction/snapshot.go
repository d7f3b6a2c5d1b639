package auction

import (
	"time"

	"bidinsouk/internal/domain"
)

// Snapshot is the read-only projection of an auction served to clients.
// Amounts are minor units; the reserve amount itself is never disclosed,
// only whether it has been met.
type Snapshot struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SellerID  string `json:"seller_id"`

	State    string `json:"state" example:"ACTIVE"`
	Currency string `json:"currency" example:"MAD"`

	CurrentBid int64  `json:"current_bid"`
	MinNextBid int64  `json:"min_next_bid"`
	BidCount   int    `json:"bid_count"`
	LeaderID   string `json:"leader_id,omitempty"`
	WinnerID   string `json:"winner_id,omitempty"`

	StartAt       time.Time `json:"start_at" example:"2026-08-30T16:05:05Z"`
	EndAt         time.Time `json:"end_at"   example:"2026-08-30T18:05:05Z"`
	RemainingSecs int64     `json:"remaining_secs"`

	HasReserve     bool `json:"has_reserve"`
	ReserveMet     bool `json:"reserve_met"`
	ExtensionCount int  `json:"extension_count"`
}

// NewSnapshot projects the aggregate at instant now.
func NewSnapshot(a *domain.Auction, now time.Time) *Snapshot {
	minNext := a.StartingPrice.Amount()
	if m, err := a.MinimumBid(); err == nil {
		minNext = m.Amount()
	}
	return &Snapshot{
		ID:             a.ID,
		ProductID:      a.ProductID,
		SellerID:       a.SellerID,
		State:          string(a.State),
		Currency:       a.Currency(),
		CurrentBid:     a.CurrentBid.Amount(),
		MinNextBid:     minNext,
		BidCount:       a.BidCount,
		LeaderID:       a.LeaderID,
		WinnerID:       a.WinnerID,
		StartAt:        a.StartAt,
		EndAt:          a.EndAt,
		RemainingSecs:  int64(a.TimeRemaining(now) / time.Second),
		HasReserve:     a.ReservePrice != nil,
		ReserveMet:     a.ReserveMet(),
		ExtensionCount: a.ExtensionCount,
	}
}
