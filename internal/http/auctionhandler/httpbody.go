package auctionhandler

import "time"

type CreateAuctionBody struct {
	ProductID     string `json:"product_id" binding:"required" example:"prod123"`
	SellerID      string `json:"seller_id"  binding:"required" example:"seller123"`
	StartingPrice int64  `json:"starting_price" binding:"required,gt=0" example:"10000"`
	ReservePrice  *int64 `json:"reserve_price,omitempty" binding:"omitempty,gt=0" example:"50000"`
	MinIncrement  int64  `json:"min_increment,omitempty" binding:"omitempty,gt=0" example:"500"`

	AntiSnipeWindowSecs    *int64 `json:"anti_snipe_window_secs,omitempty" binding:"omitempty,gte=0"`
	AntiSnipeExtensionSecs *int64 `json:"anti_snipe_extension_secs,omitempty" binding:"omitempty,gte=0"`
	MaxExtensions          *int   `json:"max_extensions,omitempty" binding:"omitempty,gte=0"`
} // @name CreateAuctionRequest

type ScheduleAuctionBody struct {
	StartAt time.Time `json:"start_at" binding:"required" example:"2026-08-30T16:05:05Z"`
	EndAt   time.Time `json:"end_at"   binding:"required" example:"2026-08-30T18:05:05Z"`
} // @name ScheduleAuctionRequest

type PlaceBidBody struct {
	BidderID string `json:"bidder_id" binding:"required"      example:"user123"`
	Amount   int64  `json:"amount"    binding:"required,gt=0" example:"10500"`
} // @name PlaceBidRequest

type AutoBidBody struct {
	BidderID  string `json:"bidder_id"  binding:"required"      example:"user123"`
	MaxAmount int64  `json:"max_amount" binding:"required,gt=0" example:"50000"`
	Increment int64  `json:"increment,omitempty" binding:"omitempty,gt=0" example:"500"`
} // @name AutoBidRequest

type CancelAuctionBody struct {
	Reason        string `json:"reason,omitempty" example:"listing error"`
	AdminOverride bool   `json:"admin_override,omitempty"`
} // @name CancelAuctionRequest

type BidAcceptedResponse struct {
	BidID       string `json:"bid_id"`
	BidderID    string `json:"bidder_id"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	IsAutomatic bool   `json:"is_automatic"`
	Extended    bool   `json:"extended"`
	EndAt       string `json:"end_at"`
} // @name BidAcceptedResponse

type ErrorResponse struct {
	Error     string `json:"error"`
	MinAmount int64  `json:"min_amount,omitempty"`
} // @name ErrorResponse

type ListAuctionsQuery struct {
	State  string `form:"state"  binding:"omitempty,oneof=DRAFT SCHEDULED ACTIVE ENDING_SOON ENDED CANCELLED"`
	Limit  int    `form:"limit,default=10"  binding:"gte=0,lte=100"`
	Offset int    `form:"offset,default=0"  binding:"gte=0"`
} // @name ListAuctionsQuery
