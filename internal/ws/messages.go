package ws

import "encoding/json"

// Envelope wraps every WS frame.
type Envelope struct {
	Event string          `json:"event"`          // e.g. "auctions/bid"
	Body  json.RawMessage `json:"body,omitempty"` // arbitrary JSON object
}

// ──────────────────────────── Request / Response DTOs ─────────────────────────

// BidRequest is the body for "auctions/bid". Amount is in minor units.
type BidRequest struct {
	Amount int64 `json:"amount" validate:"gt=0"`
}

// AutoBidRequest is the body for "auctions/auto_bid": a standing maximum the
// engine bids up to on the client's behalf.
type AutoBidRequest struct {
	MaxAmount int64 `json:"max_amount" validate:"gt=0"`
	Increment int64 `json:"increment,omitempty" validate:"gte=0"`
}

// BidAck reports the final high bid after validation and proxy resolution;
// it may belong to a competing mandate rather than the sender.
type BidAck struct {
	BidID       string `json:"bid_id"`
	BidderID    string `json:"bidder_id"`
	Amount      int64  `json:"amount"`
	IsAutomatic bool   `json:"is_automatic"`
	Extended    bool   `json:"extended"`
	EndAt       int64  `json:"end_at"`
}

// Empty ACK body (useful for many handlers).
type AckBody struct{}

// ErrorBody is returned for failures.
type ErrorBody struct {
	Error     string `json:"error"`
	MinAmount int64  `json:"min_amount,omitempty"`
}
