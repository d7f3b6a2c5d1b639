package domain

import "time"

// ValidateBid checks a prospective bid against the auction, first failing
// check wins. It never mutates state; acceptance happens in the service.
//
//  1. The auction must be open (ACTIVE or ENDING_SOON).
//  2. now must precede endAt, closing the race between a timer-driven end
//     and a late bid.
//  3. The amount must reach currentBid+minIncrement (starting price for the
//     first bid); the rejection carries the minimum so the UI can prompt.
//  4. The bidder must not already be the leader.
func ValidateBid(a *Auction, amount Money, bidderID string, now time.Time) error {
	if !a.State.Open() {
		return ErrAuctionNotOpen
	}
	if !now.Before(a.EndAt) {
		return ErrAuctionEnded
	}
	minBid, err := a.MinimumBid()
	if err != nil {
		return err
	}
	ok, err := amount.GTE(minBid)
	if err != nil {
		return err
	}
	if !ok {
		return &BidTooLowError{Minimum: minBid}
	}
	if bidderID != "" && bidderID == a.LeaderID {
		return ErrSelfOutbid
	}
	return nil
}

// AcceptBid validates b and, on success, records it on the aggregate.
func (a *Auction) AcceptBid(b Bid, now time.Time) error {
	if err := ValidateBid(a, b.Amount, b.BidderID, now); err != nil {
		return err
	}
	a.applyBid(b)
	return nil
}
