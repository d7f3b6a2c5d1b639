package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestValidateBid(t *testing.T) {
	now := baseEnd.Add(-time.Hour)

	tests := []struct {
		name    string
		auction func() *Auction
		amount  int64
		bidder  string
		now     time.Time
		wantErr error
	}{
		{
			name:    "first_bid_at_starting_price",
			auction: func() *Auction { return testAuction(StateActive) },
			amount:  10000, bidder: "user1", now: now,
		},
		{
			name:    "outbid_with_increment",
			auction: func() *Auction { return withBid(testAuction(StateActive), "user1", 10000) },
			amount:  10500, bidder: "user2", now: now,
		},
		{
			name:    "ending_soon_still_open",
			auction: func() *Auction { return testAuction(StateEndingSoon) },
			amount:  10000, bidder: "user1", now: now,
		},
		{
			name:    "draft_not_open",
			auction: func() *Auction { return testAuction(StateDraft) },
			amount:  10000, bidder: "user1", now: now,
			wantErr: ErrAuctionNotOpen,
		},
		{
			name:    "cancelled_not_open",
			auction: func() *Auction { return testAuction(StateCancelled) },
			amount:  10000, bidder: "user1", now: now,
			wantErr: ErrAuctionNotOpen,
		},
		{
			name:    "late_bid_after_end_at",
			auction: func() *Auction { return testAuction(StateActive) },
			amount:  99999, bidder: "user1", now: baseEnd,
			wantErr: ErrAuctionEnded,
		},
		{
			name:    "below_increment",
			auction: func() *Auction { return withBid(testAuction(StateActive), "user1", 10000) },
			amount:  10499, bidder: "user2", now: now,
			wantErr: ErrBidTooLow,
		},
		{
			name:    "first_bid_below_starting_price",
			auction: func() *Auction { return testAuction(StateActive) },
			amount:  9999, bidder: "user1", now: now,
			wantErr: ErrBidTooLow,
		},
		{
			name:    "self_outbid",
			auction: func() *Auction { return withBid(testAuction(StateActive), "user1", 10000) },
			amount:  10500, bidder: "user1", now: now,
			wantErr: ErrSelfOutbid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := tt.auction()
			err := ValidateBid(a, MustMoney(tt.amount, "MAD"), tt.bidder, tt.now)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateBid_TooLowCarriesMinimum(t *testing.T) {
	a := withBid(testAuction(StateActive), "user1", 10000)
	err := ValidateBid(a, MustMoney(10100, "MAD"), "user2", baseEnd.Add(-time.Hour))

	var tooLow *BidTooLowError
	require.ErrorAs(t, err, &tooLow)
	require.Equal(t, int64(10500), tooLow.Minimum.Amount())
}

func TestValidateBid_CheckOrderFirstFailureWins(t *testing.T) {
	// A closed auction rejects with AuctionNotOpen even when the amount is
	// also too low.
	a := testAuction(StateEnded)
	err := ValidateBid(a, MustMoney(1, "MAD"), "user1", baseEnd.Add(-time.Hour))
	require.ErrorIs(t, err, ErrAuctionNotOpen)
	require.False(t, errors.Is(err, ErrBidTooLow))
}

func TestAcceptBid(t *testing.T) {
	now := baseEnd.Add(-time.Hour)
	a := testAuction(StateActive)

	bid := Bid{ID: "b1", AuctionID: a.ID, BidderID: "user1", Amount: MustMoney(10000, "MAD"), PlacedAt: now}
	require.NoError(t, a.AcceptBid(bid, now))
	require.Equal(t, int64(10000), a.CurrentBid.Amount())
	require.Equal(t, "user1", a.LeaderID)
	require.Equal(t, 1, a.BidCount)

	// Rejected bid leaves the aggregate untouched.
	low := Bid{ID: "b2", AuctionID: a.ID, BidderID: "user2", Amount: MustMoney(10100, "MAD"), PlacedAt: now}
	require.ErrorIs(t, a.AcceptBid(low, now), ErrBidTooLow)
	require.Equal(t, 1, a.BidCount)
	require.Equal(t, "user1", a.LeaderID)
}

func TestCurrentBidMonotonicOverAcceptedBids(t *testing.T) {
	now := baseEnd.Add(-time.Hour)
	a := testAuction(StateActive)

	last := int64(0)
	bidders := []string{"u1", "u2", "u3", "u1", "u2"}
	amount := int64(10000)
	for i, bidder := range bidders {
		bid := Bid{ID: string(rune('a' + i)), AuctionID: a.ID, BidderID: bidder, Amount: MustMoney(amount, "MAD"), PlacedAt: now}
		require.NoError(t, a.AcceptBid(bid, now))
		require.GreaterOrEqual(t, a.CurrentBid.Amount(), last)
		last = a.CurrentBid.Amount()
		amount += 500 + int64(i)*17
	}
	require.Equal(t, len(bidders), a.BidCount)
}
