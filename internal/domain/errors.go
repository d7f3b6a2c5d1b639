package domain

import (
	"errors"
	"fmt"
)

// Money errors.
var (
	ErrCurrencyMismatch = errors.New("currency mismatch")
	ErrNegativeAmount   = errors.New("amount must not be negative")
	ErrAmountOverflow   = errors.New("amount overflow")
)

// Bid validation errors. These are expected outcomes, directly actionable by
// the caller, and are never logged as failures.
var (
	ErrAuctionNotOpen = errors.New("auction is not open for bidding")
	ErrAuctionEnded   = errors.New("auction already ended")
	ErrBidTooLow      = errors.New("bid below minimum")
	ErrSelfOutbid     = errors.New("bidder already holds the highest bid")
)

// State errors: operator or programmer misuse, worth logging.
var (
	ErrIllegalTransition     = errors.New("illegal auction state transition")
	ErrInvalidScheduleWindow = errors.New("invalid schedule window")
	ErrCannotCancelWithBids  = errors.New("cannot cancel an auction that has bids")
	ErrMandateBelowCurrent   = errors.New("auto-bid maximum must exceed current bid")
	ErrExtensionCapRequired  = errors.New("anti-snipe extension cap is required")
)

// Infrastructure errors: retryable, distinct from validation so callers never
// tell a user "bid too low" when the real cause was contention.
var (
	ErrBusy            = errors.New("auction busy, retry")
	ErrAuctionNotFound = errors.New("auction not found")
)

// BidTooLowError carries the minimum acceptable amount so the caller can
// prompt a retry. Matches ErrBidTooLow via errors.Is.
type BidTooLowError struct {
	Minimum Money
}

func (e *BidTooLowError) Error() string {
	return fmt.Sprintf("bid below minimum of %s", e.Minimum)
}

func (e *BidTooLowError) Is(target error) bool { return target == ErrBidTooLow }
