package domain

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func idSeq() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("bid-%d", n)
	}
}

func mandate(id, bidder string, maxAmount, increment int64, createdAt time.Time) *AutoBidMandate {
	return &AutoBidMandate{
		ID:        id,
		AuctionID: "auc1",
		BidderID:  bidder,
		MaxAmount: MustMoney(maxAmount, "MAD"),
		Increment: MustMoney(increment, "MAD"),
		Active:    true,
		CreatedAt: createdAt,
	}
}

func TestResolveAutoBids_SingleCounterBid(t *testing.T) {
	// Manual bid 310 against mandates A(max=500) and B(max=300), inc 10:
	// A counters at min(500, 310+10)=320, B is overtaken and deactivated.
	now := baseStart.Add(time.Minute)
	a := withBid(testAuction(StateActive), "manual", 310)
	a.MinIncrement = MustMoney(10, "MAD")

	ma := mandate("m-a", "alice", 500, 10, baseStart)
	mb := mandate("m-b", "bob", 300, 10, baseStart.Add(time.Second))

	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma, mb}, now, idSeq())
	require.NoError(t, err)
	require.Len(t, bids, 1)

	require.Equal(t, "alice", bids[0].BidderID)
	require.Equal(t, int64(320), bids[0].Amount.Amount())
	require.True(t, bids[0].IsAutomatic)
	require.NotNil(t, bids[0].ProxyMaxAmount)
	require.Equal(t, int64(500), bids[0].ProxyMaxAmount.Amount())

	require.Equal(t, int64(320), a.CurrentBid.Amount())
	require.Equal(t, "alice", a.LeaderID)
	require.Equal(t, 2, a.BidCount)

	require.True(t, ma.Active)
	require.False(t, mb.Active)
}

func TestResolveAutoBids_TieBreakEarliestWins(t *testing.T) {
	// Mandates A(max=400, t1) and B(max=400, t2>t1) against a manual 350:
	// A ends up leading at exactly the tying maximum, B is deactivated.
	now := baseStart.Add(time.Minute)
	a := withBid(testAuction(StateActive), "manual", 350)
	a.MinIncrement = MustMoney(10, "MAD")

	ma := mandate("m-a", "alice", 400, 10, baseStart)
	mb := mandate("m-b", "bob", 400, 10, baseStart.Add(time.Second))

	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma, mb}, now, idSeq())
	require.NoError(t, err)

	require.Equal(t, int64(400), a.CurrentBid.Amount())
	require.Equal(t, "alice", a.LeaderID)
	require.False(t, mb.Active)

	final := bids[len(bids)-1]
	require.Equal(t, "alice", final.BidderID)
	require.Equal(t, int64(400), final.Amount.Amount())
}

func TestResolveAutoBids_LeaderDefends(t *testing.T) {
	// Manual 310 triggers A(max=500); B(max=400) then challenges and A
	// defends one increment above B's ceiling.
	now := baseStart.Add(time.Minute)
	a := withBid(testAuction(StateActive), "manual", 310)
	a.MinIncrement = MustMoney(10, "MAD")

	ma := mandate("m-a", "alice", 500, 10, baseStart)
	mb := mandate("m-b", "bob", 400, 20, baseStart.Add(time.Second))

	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma, mb}, now, idSeq())
	require.NoError(t, err)
	require.Len(t, bids, 2)

	require.Equal(t, int64(320), bids[0].Amount.Amount())
	require.Equal(t, "alice", bids[0].BidderID)
	require.Equal(t, int64(410), bids[1].Amount.Amount())
	require.Equal(t, "alice", bids[1].BidderID)

	require.Equal(t, "alice", a.LeaderID)
	require.Equal(t, int64(410), a.CurrentBid.Amount())
	require.True(t, ma.Active)
	require.False(t, mb.Active)
}

func TestResolveAutoBids_ChallengerBeatsLeaderMandate(t *testing.T) {
	// Leader holds a mandate with a lower ceiling than the challenger's:
	// the challenger takes over just above the leader's maximum.
	now := baseStart.Add(time.Minute)
	a := withBid(testAuction(StateActive), "alice", 250)
	a.MinIncrement = MustMoney(10, "MAD")

	ma := mandate("m-a", "alice", 300, 10, baseStart)
	mb := mandate("m-b", "bob", 500, 10, baseStart.Add(time.Second))

	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma, mb}, now, idSeq())
	require.NoError(t, err)
	require.Len(t, bids, 1)

	require.Equal(t, "bob", bids[0].BidderID)
	require.Equal(t, int64(310), bids[0].Amount.Amount())
	require.Equal(t, "bob", a.LeaderID)
	require.False(t, ma.Active)
	require.True(t, mb.Active)
}

func TestResolveAutoBids_NoMandates(t *testing.T) {
	a := withBid(testAuction(StateActive), "manual", 310)
	bids, err := ResolveAutoBids(a, nil, baseStart, idSeq())
	require.NoError(t, err)
	require.Empty(t, bids)
}

func TestResolveAutoBids_NoBidsYet(t *testing.T) {
	// A mandate alone does not open the bidding.
	a := testAuction(StateActive)
	ma := mandate("m-a", "alice", 500, 10, baseStart)
	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma}, baseStart, idSeq())
	require.NoError(t, err)
	require.Empty(t, bids)
	require.True(t, ma.Active)
	require.Equal(t, 0, a.BidCount)
}

func TestResolveAutoBids_LeaderMandateIgnoredWithoutChallenger(t *testing.T) {
	// The leader's own mandate never bids against itself.
	a := withBid(testAuction(StateActive), "alice", 310)
	ma := mandate("m-a", "alice", 500, 10, baseStart)
	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma}, baseStart, idSeq())
	require.NoError(t, err)
	require.Empty(t, bids)
	require.True(t, ma.Active)
}

func TestResolveAutoBids_ExhaustedMandateCappedAtMax(t *testing.T) {
	// Counter-bid is capped at the mandate's maximum when the increment
	// would overshoot it.
	now := baseStart.Add(time.Minute)
	a := withBid(testAuction(StateActive), "manual", 310)
	a.MinIncrement = MustMoney(10, "MAD")

	ma := mandate("m-a", "alice", 315, 10, baseStart)
	bids, err := ResolveAutoBids(a, []*AutoBidMandate{ma}, now, idSeq())
	require.NoError(t, err)
	require.Len(t, bids, 1)
	require.Equal(t, int64(315), bids[0].Amount.Amount())
	require.Equal(t, "alice", a.LeaderID)
}

func TestResolveAutoBids_ManyMandatesTerminate(t *testing.T) {
	now := baseStart.Add(time.Minute)
	a := withBid(testAuction(StateActive), "manual", 10500)
	a.MinIncrement = MustMoney(500, "MAD")

	var mandates []*AutoBidMandate
	for i := 0; i < 6; i++ {
		mandates = append(mandates, mandate(
			fmt.Sprintf("m-%d", i),
			fmt.Sprintf("user%d", i),
			11000+int64(i)*1000,
			500,
			baseStart.Add(time.Duration(i)*time.Second),
		))
	}

	_, err := ResolveAutoBids(a, mandates, now, idSeq())
	require.NoError(t, err)

	// The strongest mandate ends up leading and everyone else is spent.
	require.Equal(t, "user5", a.LeaderID)
	active := 0
	for _, m := range mandates {
		if m.Active {
			active++
		}
	}
	require.Equal(t, 1, active)
	require.True(t, mandates[5].Active)
}
