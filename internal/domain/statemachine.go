package domain

import (
	"fmt"
	"time"
)

// State machine for the auction lifecycle:
//
//	DRAFT → SCHEDULED → ACTIVE → ENDING_SOON → ENDED
//	                 └────┴──────────┴→ CANCELLED
//
// Every method validates its guards first and mutates the aggregate only on
// success, so a rejected transition leaves the auction unchanged.

func (a *Auction) transitionErr(op string) error {
	return fmt.Errorf("%s from %s: %w", op, a.State, ErrIllegalTransition)
}

// Schedule moves DRAFT → SCHEDULED. startAt may lag now by at most grace,
// endAt must follow startAt, and auctions with an anti-snipe window must
// carry a finite extension cap.
func (a *Auction) Schedule(now, startAt, endAt time.Time, grace time.Duration) error {
	if a.State != StateDraft {
		return a.transitionErr("schedule")
	}
	if !endAt.After(startAt) {
		return fmt.Errorf("%w: end %s not after start %s", ErrInvalidScheduleWindow, endAt, startAt)
	}
	if startAt.Before(now.Add(-grace)) {
		return fmt.Errorf("%w: start %s is in the past", ErrInvalidScheduleWindow, startAt)
	}
	if a.AntiSnipeWindow > 0 && a.MaxExtensions <= 0 {
		return ErrExtensionCapRequired
	}
	a.StartAt = startAt
	a.EndAt = endAt
	a.State = StateScheduled
	return nil
}

// Activate moves SCHEDULED → ACTIVE once startAt has passed. Triggered by the
// sweeper, never directly by a user.
func (a *Auction) Activate(now time.Time) error {
	if a.State != StateScheduled {
		return a.transitionErr("activate")
	}
	if now.Before(a.StartAt) {
		return fmt.Errorf("activate before start %s: %w", a.StartAt, ErrIllegalTransition)
	}
	a.State = StateActive
	return nil
}

// MarkEndingSoon moves ACTIVE → ENDING_SOON when endAt is within threshold.
// A pure urgency signal; bidding rules are identical in both states.
func (a *Auction) MarkEndingSoon(now time.Time, threshold time.Duration) error {
	if a.State != StateActive {
		return a.transitionErr("ending-soon")
	}
	if a.EndAt.Sub(now) > threshold {
		return fmt.Errorf("ending-soon with %s remaining: %w", a.EndAt.Sub(now), ErrIllegalTransition)
	}
	a.State = StateEndingSoon
	return nil
}

// ExtendForBid pushes endAt forward by the anti-snipe extension when the
// given bid landed inside the anti-snipe window. Idempotent per bid: a second
// call for the same bid is a no-op. Returns whether an extension happened;
// hitting the extension cap is not an error since the bid itself stays
// accepted.
func (a *Auction) ExtendForBid(bidID string, bidPlacedAt time.Time) (bool, error) {
	if !a.State.Open() {
		return false, a.transitionErr("extend")
	}
	if a.AntiSnipeWindow <= 0 || a.AntiSnipeExtension <= 0 {
		return false, nil
	}
	if bidID == a.LastExtendedBidID {
		return false, nil
	}
	if bidPlacedAt.Before(a.EndAt.Add(-a.AntiSnipeWindow)) || bidPlacedAt.After(a.EndAt) {
		return false, nil
	}
	if a.ExtensionCount >= a.MaxExtensions {
		return false, nil
	}
	a.EndAt = a.EndAt.Add(a.AntiSnipeExtension)
	a.ExtensionCount++
	a.LastExtendedBidID = bidID
	return true, nil
}

// End moves ACTIVE/ENDING_SOON → ENDED once endAt has passed and computes the
// winner: the current leader, provided at least one bid exists and the
// reserve (if any) is met. Otherwise the auction passes with no winner.
func (a *Auction) End(now time.Time) error {
	if !a.State.Open() {
		return a.transitionErr("end")
	}
	if now.Before(a.EndAt) {
		return fmt.Errorf("end with %s remaining: %w", a.EndAt.Sub(now), ErrIllegalTransition)
	}
	if a.BidCount > 0 && a.ReserveMet() {
		a.WinnerID = a.LeaderID
	}
	a.State = StateEnded
	return nil
}

// Cancel moves SCHEDULED/ACTIVE/ENDING_SOON → CANCELLED. Auctions that
// already collected bids can only be cancelled with the administrative
// override, which records the reason for the bidders' notification.
func (a *Auction) Cancel(reason string, adminOverride bool) error {
	switch a.State {
	case StateScheduled, StateActive, StateEndingSoon:
	default:
		return a.transitionErr("cancel")
	}
	if a.BidCount > 0 && !adminOverride {
		return ErrCannotCancelWithBids
	}
	a.CancelReason = reason
	a.State = StateCancelled
	return nil
}
