package bidding

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/lifecycle"
	"live-auction/internal/models"
	"live-auction/internal/repository"
)

// CreateAuctionInput carries the caller supplied fields of a new auction
type CreateAuctionInput struct {
	ItemID        *string
	Title         string
	Description   *string
	ImageURL      *string
	StartingPrice float64
	StartTime     time.Time
	EndTime       time.Time
	Tags          []string
}

// AuctionView is an auction decorated with lifecycle state derived at read time
type AuctionView struct {
	models.Auction
	IsLive   bool `json:"is_live"`
	HasEnded bool `json:"has_ended"`
}

// AuctionDetail is a single auction together with its highest bids
type AuctionDetail struct {
	AuctionView
	TopBids []models.Bid `json:"top_bids"`
}

func newView(a models.Auction, now time.Time) AuctionView {
	a.Status = lifecycle.Status(now, a.StartTime, a.EndTime)
	isLive, hasEnded := lifecycle.Flags(now, a.StartTime, a.EndTime)
	if a.Tags == nil {
		a.Tags = []string{}
	}
	return AuctionView{Auction: a, IsLive: isLive, HasEnded: hasEnded}
}

// CreateAuction validates input, seeds current price with the starting price and stores the auction
func (s *BiddingService) CreateAuction(ctx context.Context, in CreateAuctionInput) (string, error) {
	if err := validateAuctionInput(in); err != nil {
		return "", err
	}

	now := s.now()
	price := in.StartingPrice
	tags := in.Tags
	if tags == nil {
		tags = []string{}
	}
	auction := models.Auction{
		ItemID:        in.ItemID,
		Title:         strings.TrimSpace(in.Title),
		Description:   in.Description,
		ImageURL:      in.ImageURL,
		StartingPrice: in.StartingPrice,
		CurrentPrice:  &price,
		StartTime:     lifecycle.Normalize(in.StartTime),
		EndTime:       lifecycle.Normalize(in.EndTime),
		Status:        lifecycle.Status(now, lifecycle.Normalize(in.StartTime), lifecycle.Normalize(in.EndTime)),
		Tags:          tags,
	}

	id, err := s.auctions.CreateAuction(ctx, &auction)
	if err != nil {
		return "", fmt.Errorf("service: failed to create auction %q: %w", auction.Title, err)
	}
	return id, nil
}

func validateAuctionInput(in CreateAuctionInput) error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("service: %w - missing title", biddingerrors.ErrInvalidAuction)
	}
	if math.IsNaN(in.StartingPrice) || math.IsInf(in.StartingPrice, 0) || in.StartingPrice < 0 {
		return fmt.Errorf("service: %w - starting price must be a non-negative number", biddingerrors.ErrInvalidAuction)
	}
	if in.StartTime.IsZero() || in.EndTime.IsZero() {
		return fmt.Errorf("service: %w - start and end time are required", biddingerrors.ErrInvalidAuction)
	}
	if outOfRange(in.StartTime) || outOfRange(in.EndTime) {
		return fmt.Errorf("service: %w - times must fall within years 0001 to 9999", biddingerrors.ErrInvalidAuction)
	}
	if lifecycle.Normalize(in.EndTime).Before(lifecycle.Normalize(in.StartTime)) {
		return fmt.Errorf("service: %w - end time precedes start time", biddingerrors.ErrInvalidAuction)
	}
	return nil
}

func outOfRange(t time.Time) bool {
	y := t.UTC().Year()
	return y < 1 || y > 9999
}

// ListAuctions returns auctions newest first, optionally narrowed to a derived status
func (s *BiddingService) ListAuctions(ctx context.Context, status string, limit int) ([]AuctionView, error) {
	filterStatus, err := lifecycle.ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("service: %w", err)
	}
	limit = s.clampLimit(limit)

	now := s.now()
	auctions, err := s.auctions.ListAuctions(ctx, repository.ListFilter{Status: filterStatus, Now: now}, limit)
	if err != nil {
		return nil, fmt.Errorf("service: failed to list auctions: %w", err)
	}

	views := make([]AuctionView, 0, len(auctions))
	for _, a := range auctions {
		views = append(views, newView(a, now))
	}
	return views, nil
}

func (s *BiddingService) clampLimit(limit int) int {
	if limit <= 0 {
		return s.defaultLimit
	}
	if limit > s.maxLimit {
		return s.maxLimit
	}
	return limit
}

// GetAuction returns one auction with its top bids
func (s *BiddingService) GetAuction(ctx context.Context, id string) (AuctionDetail, error) {
	now := s.now()
	auction, err := s.auctions.GetAuction(ctx, id)
	if err != nil {
		return AuctionDetail{}, fmt.Errorf("service: failed to get auction %s: %w", id, err)
	}

	bids, err := s.rankedBids(ctx, id, auction, s.topBids)
	if err != nil {
		return AuctionDetail{}, err
	}

	return AuctionDetail{AuctionView: newView(auction, now), TopBids: bids}, nil
}
