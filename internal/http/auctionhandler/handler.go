package auctionhandler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"bidinsouk/internal/domain"
	"bidinsouk/internal/services/auction"
)

type Handler struct {
	svc auction.IAuctionService
}

func New(svc auction.IAuctionService) *Handler { return &Handler{svc: svc} }

func (h *Handler) Register(r gin.IRoutes) {
	r.GET("/auctions", h.list)
	r.GET("/auctions/:id", h.info)
	r.POST("/auctions", h.create)
	r.POST("/auctions/:id/schedule", h.schedule)
	r.POST("/auctions/:id/bid", h.bid)
	r.POST("/auctions/:id/auto-bid", h.autoBid)
	r.POST("/auctions/:id/close", h.close)
	r.POST("/auctions/:id/cancel", h.cancel)
}

// writeError maps typed engine outcomes to HTTP statuses. Validation and
// state rejections are conflicts the client can act on; contention is
// retryable and must never masquerade as a validation failure.
func writeError(c *gin.Context, err error) {
	var tooLow *domain.BidTooLowError
	switch {
	case errors.As(err, &tooLow):
		c.JSON(http.StatusConflict, ErrorResponse{
			Error:     err.Error(),
			MinAmount: tooLow.Minimum.Amount(),
		})
	case errors.Is(err, domain.ErrAuctionNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrBusy):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{Error: err.Error()})
	case errors.Is(err, domain.ErrAuctionNotOpen),
		errors.Is(err, domain.ErrAuctionEnded),
		errors.Is(err, domain.ErrSelfOutbid),
		errors.Is(err, domain.ErrIllegalTransition),
		errors.Is(err, domain.ErrInvalidScheduleWindow),
		errors.Is(err, domain.ErrCannotCancelWithBids),
		errors.Is(err, domain.ErrMandateBelowCurrent),
		errors.Is(err, domain.ErrExtensionCapRequired),
		errors.Is(err, domain.ErrCurrencyMismatch),
		errors.Is(err, domain.ErrNegativeAmount):
		c.JSON(http.StatusConflict, ErrorResponse{Error: err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: err.Error()})
	}
}

// @Summary		Get auction snapshot
// @Description	Returns the read-only projection of a single auction, including time remaining and whether the reserve is met.
// @Tags			Auctions
// @Param			id	path		string	true	"Auction ID"
// @Success		200	{object}	auction.Snapshot
// @Failure		404	{object}	ErrorResponse
// @Router			/auctions/{id} [get]
func (h *Handler) info(c *gin.Context) {
	snap, err := h.svc.GetAuctionSnapshot(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// @Summary		List auctions
// @Description	Retrieves a paginated list of auctions, optionally filtered by state.
// @Tags			Auctions
// @Param			state	query		string	false	"State filter"	Enums(DRAFT,SCHEDULED,ACTIVE,ENDING_SOON,ENDED,CANCELLED)
// @Param			limit	query		int		false	"Max results (0-100)"	minimum(0)	maximum(100)	default(10)
// @Param			offset	query		int		false	"Offset for pagination"	minimum(0)	default(0)
// @Success		200		{array}		auction.Snapshot
// @Failure		400		{object}	ErrorResponse
// @Failure		500		{object}	ErrorResponse
// @Router			/auctions [get]
func (h *Handler) list(c *gin.Context) {
	var q ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	out, err := h.svc.ListAuctions(c.Request.Context(), q.State, q.Limit, q.Offset)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// @Summary		Create an auction
// @Description	Seller creates a draft auction for a product.
// @Tags			Auctions
// @Param			body	body		CreateAuctionBody	true	"Auction payload"
// @Success		201		{object}	auction.Snapshot
// @Failure		400		{object}	ErrorResponse
// @Router			/auctions [post]
func (h *Handler) create(ginCtx *gin.Context) {
	var body CreateAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	in := auction.CreateAuctionInput{
		ProductID:     body.ProductID,
		SellerID:      body.SellerID,
		StartingPrice: body.StartingPrice,
		ReservePrice:  body.ReservePrice,
		MinIncrement:  body.MinIncrement,
		MaxExtensions: body.MaxExtensions,
	}
	if body.AntiSnipeWindowSecs != nil {
		d := time.Duration(*body.AntiSnipeWindowSecs) * time.Second
		in.AntiSnipeWindow = &d
	}
	if body.AntiSnipeExtensionSecs != nil {
		d := time.Duration(*body.AntiSnipeExtensionSecs) * time.Second
		in.AntiSnipeExtension = &d
	}

	snap, err := h.svc.CreateAuction(ginCtx.Request.Context(), in)
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusCreated, snap)
}

// @Summary		Schedule an auction
// @Description	Moves a draft auction into its bidding window.
// @Tags			Auctions
// @Param			id		path	string				true	"Auction ID"
// @Param			body	body	ScheduleAuctionBody	true	"Bidding window"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/schedule [post]
func (h *Handler) schedule(ginCtx *gin.Context) {
	var body ScheduleAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	err := h.svc.ScheduleAuction(ginCtx.Request.Context(),
		ginCtx.Param("id"), body.StartAt.UTC(), body.EndAt.UTC())
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

// @Summary		Place a bid
// @Description	Validates and records a bid; competing auto-bid mandates may immediately counter, in which case the returned bid belongs to the proxy.
// @Tags			Auctions
// @Param			id		path		string			true	"Auction ID"
// @Param			body	body		PlaceBidBody	true	"Bid payload"
// @Success		200		{object}	BidAcceptedResponse
// @Failure		400		{object}	ErrorResponse
// @Failure		409		{object}	ErrorResponse
// @Failure		429		{object}	ErrorResponse
// @Router			/auctions/{id}/bid [post]
func (h *Handler) bid(ginCtx *gin.Context) {
	var body PlaceBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	res, err := h.svc.PlaceBid(ginCtx.Request.Context(),
		ginCtx.Param("id"), body.BidderID, body.Amount)
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.JSON(http.StatusOK, BidAcceptedResponse{
		BidID:       res.AcceptedBid.ID,
		BidderID:    res.AcceptedBid.BidderID,
		Amount:      res.AcceptedBid.Amount.Amount(),
		Currency:    res.AcceptedBid.Amount.Currency(),
		IsAutomatic: res.AcceptedBid.IsAutomatic,
		Extended:    res.Extended,
		EndAt:       res.Snapshot.EndAt.Format(time.RFC3339),
	})
}

// @Summary		Create an auto-bid mandate
// @Description	Registers a standing maximum; the engine bids on the bidder's behalf up to that amount. Replaces any prior mandate for the same bidder.
// @Tags			Auctions
// @Param			id		path	string		true	"Auction ID"
// @Param			body	body	AutoBidBody	true	"Mandate payload"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/auto-bid [post]
func (h *Handler) autoBid(ginCtx *gin.Context) {
	var body AutoBidBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	_, err := h.svc.CreateAutoBidMandate(ginCtx.Request.Context(),
		ginCtx.Param("id"), body.BidderID, body.MaxAmount, body.Increment)
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

// @Summary		Close an auction
// @Description	Ends an expired auction, computing the winner and creating the pending order. Normally driven by the timer; exposed for operators.
// @Tags			Auctions
// @Param			id	path	string	true	"Auction ID"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/close [post]
func (h *Handler) close(ginCtx *gin.Context) {
	if err := h.svc.CloseAuction(ginCtx.Request.Context(), ginCtx.Param("id")); err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}

// @Summary		Cancel an auction
// @Description	Withdraws an auction. Once bids exist, cancellation requires the admin override and a recorded reason.
// @Tags			Auctions
// @Param			id		path	string				true	"Auction ID"
// @Param			body	body	CancelAuctionBody	true	"Cancellation payload"
// @Success		202
// @Failure		409	{object}	ErrorResponse
// @Router			/auctions/{id}/cancel [post]
func (h *Handler) cancel(ginCtx *gin.Context) {
	var body CancelAuctionBody
	if err := ginCtx.ShouldBindJSON(&body); err != nil {
		ginCtx.JSON(http.StatusBadRequest, &ErrorResponse{Error: err.Error()})
		return
	}

	err := h.svc.CancelAuction(ginCtx.Request.Context(),
		ginCtx.Param("id"), body.Reason, body.AdminOverride)
	if err != nil {
		writeError(ginCtx, err)
		return
	}
	ginCtx.Status(http.StatusAccepted)
}
