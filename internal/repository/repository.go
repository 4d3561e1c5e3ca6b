package repository

import (
	"context"
	"time"

	model "live-auction/internal/models"
)

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=repository

// ListFilter narrows an auction listing. Status is compared against the status
// derived at Now, never against the stored snapshot.
type ListFilter struct {
	Status *model.Status
	Now    time.Time
}

// AuctionStore defines the auction persistence contract
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *model.Auction) (string, error)
	ListAuctions(ctx context.Context, filter ListFilter, limit int) ([]model.Auction, error)
	GetAuction(ctx context.Context, id string) (model.Auction, error)
	// CompareAndSetPrice sets current_price, winning_bid_id and updated_at in one
	// write, only if the stored current_price still equals expected (nil meaning
	// unset). It returns ErrPriceConflict without mutating when the price moved.
	CompareAndSetPrice(ctx context.Context, id string, expected *float64, newPrice float64, bidID string, now time.Time) error
}

// BidStore defines the append-only bid persistence contract
type BidStore interface {
	InsertBid(ctx context.Context, bid *model.Bid) (string, error)
	GetBid(ctx context.Context, bidID string) (model.Bid, error)
	// MarkAccepted flags a bid whose price was committed; it is idempotent
	MarkAccepted(ctx context.Context, bidID string) error
	// TopBids returns up to n accepted bids ordered by amount descending, earliest insertion first on ties
	TopBids(ctx context.Context, auctionID string, n int) ([]model.Bid, error)
}

// Diagnoser is implemented by stores that can report their health
type Diagnoser interface {
	Ping(ctx context.Context) error
	Driver() string
	Collections(ctx context.Context) ([]string, error)
}
