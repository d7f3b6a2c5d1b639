package domain

import (
	"fmt"
	"time"
)

// ResolveAutoBids runs proxy-bid resolution after a bid has been applied to
// the aggregate. It walks the active mandates, placing automatic counter-bids
// until no mandate can beat the current leader, and deactivates every mandate
// whose maximum has been overtaken.
//
// Each round picks the strongest challenger (highest maxAmount, earliest
// created on ties) among mandates not held by the current leader:
//
//   - leader has no mandate: challenger bids min(max, currentBid+increment);
//   - challenger max beats the leader's mandate: challenger bids
//     min(max, leaderMax+increment) and the leader's mandate is spent;
//   - leader's mandate beats the challenger: the leader defends at
//     min(leaderMax, challengerMax+increment) and the challenger is spent;
//   - equal maxima: the earliest-created mandate wins at exactly the tying
//     amount, the other is spent.
//
// Every round strictly raises currentBid or deactivates a mandate, so the
// loop terminates after at most one bid per mandate.
//
// The returned bids are already applied to the auction and must be persisted
// in the same transactional unit as the triggering bid. newID mints bid IDs.
func ResolveAutoBids(a *Auction, mandates []*AutoBidMandate, now time.Time, newID func() string) ([]Bid, error) {
	if a.LeaderID == "" || a.BidCount == 0 {
		return nil, nil
	}

	var placed []Bid
	for round := 0; round <= 2*len(mandates)+1; round++ {
		ch := strongestChallenger(mandates, a.LeaderID)
		if ch == nil {
			return placed, nil
		}

		beats, err := cmpMoney(ch.MaxAmount, a.CurrentBid)
		if err != nil {
			return placed, err
		}
		if beats <= 0 {
			ch.Deactivate()
			continue
		}

		bidder, amount, err := resolveRound(a, ch, mandates)
		if err != nil {
			return placed, err
		}

		// Monotonicity guard; resolveRound upholds this but a violation
		// here would corrupt the ledger, so stop rather than apply.
		if up, err := cmpMoney(amount, a.CurrentBid); err != nil || up <= 0 {
			return placed, err
		}

		proxyMax := bidder.MaxAmount
		b := Bid{
			ID:             newID(),
			AuctionID:      a.ID,
			BidderID:       bidder.BidderID,
			Amount:         amount,
			PlacedAt:       now,
			IsAutomatic:    true,
			ProxyMaxAmount: &proxyMax,
		}
		a.applyBid(b)
		placed = append(placed, b)
	}
	return placed, fmt.Errorf("auto-bid resolution did not converge on auction %s", a.ID)
}

// resolveRound decides who bids and how much for one challenger, spending
// whichever mandate ends up beaten.
func resolveRound(a *Auction, ch *AutoBidMandate, mandates []*AutoBidMandate) (*AutoBidMandate, Money, error) {
	lm := activeMandateOf(mandates, a.LeaderID)
	if lm == nil {
		step, err := a.CurrentBid.Add(ch.Increment)
		if err != nil {
			return nil, Money{}, err
		}
		amount, err := MoneyMin(ch.MaxAmount, step)
		return ch, amount, err
	}

	c, err := cmpMoney(ch.MaxAmount, lm.MaxAmount)
	if err != nil {
		return nil, Money{}, err
	}
	switch {
	case c > 0:
		step, err := lm.MaxAmount.Add(ch.Increment)
		if err != nil {
			return nil, Money{}, err
		}
		amount, err := MoneyMin(ch.MaxAmount, step)
		lm.Deactivate()
		return ch, amount, err
	case c < 0:
		step, err := ch.MaxAmount.Add(lm.Increment)
		if err != nil {
			return nil, Money{}, err
		}
		amount, err := MoneyMin(lm.MaxAmount, step)
		ch.Deactivate()
		return lm, amount, err
	default:
		// Tie: first mover wins at exactly the tying maximum.
		if lm.CreatedAt.After(ch.CreatedAt) {
			lm.Deactivate()
			return ch, ch.MaxAmount, nil
		}
		ch.Deactivate()
		return lm, lm.MaxAmount, nil
	}
}

// strongestChallenger returns the active mandate with the highest maximum not
// held by the leader; ties go to the earliest created.
func strongestChallenger(mandates []*AutoBidMandate, leaderID string) *AutoBidMandate {
	var best *AutoBidMandate
	for _, m := range mandates {
		if !m.Active || m.BidderID == leaderID {
			continue
		}
		if best == nil {
			best = m
			continue
		}
		c, err := cmpMoney(m.MaxAmount, best.MaxAmount)
		if err != nil {
			continue
		}
		if c > 0 || (c == 0 && m.CreatedAt.Before(best.CreatedAt)) {
			best = m
		}
	}
	return best
}

func activeMandateOf(mandates []*AutoBidMandate, bidderID string) *AutoBidMandate {
	if bidderID == "" {
		return nil
	}
	for _, m := range mandates {
		if m.Active && m.BidderID == bidderID {
			return m
		}
	}
	return nil
}

func cmpMoney(a, b Money) (int, error) { return a.Cmp(b) }
