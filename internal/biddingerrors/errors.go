package biddingerrors

import "errors"

// Repository-level errors
var (
	ErrAuctionNotFound    = errors.New("auction not found")
	ErrInvalidAuctionID   = errors.New("invalid auction id")
	ErrPriceConflict      = errors.New("current price changed concurrently")
	ErrNoBids             = errors.New("no bids found for auction")
	ErrBidNotFound        = errors.New("bid not found")
	ErrStorageUnavailable = errors.New("storage unavailable")
)

// business logic errors
var (
	ErrInvalidBid     = errors.New("invalid bid")
	ErrBidTooLow      = errors.New("bid must be higher than current price")
	ErrAuctionNotLive = errors.New("auction is not live")
	ErrInvalidAuction = errors.New("invalid auction")
	ErrInvalidStatus  = errors.New("invalid status filter")
)
