package bidding

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/events"
	"live-auction/internal/lifecycle"
	"live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/utils"

	"github.com/shopspring/decimal"
)

const (
	defaultMaxAttempts  = 5
	defaultTopBids      = 10
	defaultListLimit    = 20
	defaultMaxListLimit = 100

	monetaryPrecision int32 = 4
)

// BiddingService defines the business logic for auctions and bidding
type BiddingService struct {
	auctions repository.AuctionStore
	bids     repository.BidStore

	publisher    events.Publisher
	now          func() time.Time
	maxAttempts  int
	topBids      int
	defaultLimit int
	maxLimit     int
}

// Option customises a BiddingService
type Option func(*BiddingService)

// WithClock replaces the wall clock, mostly for tests
func WithClock(now func() time.Time) Option {
	return func(s *BiddingService) { s.now = now }
}

// WithPublisher sets where accepted bids are announced
func WithPublisher(p events.Publisher) Option {
	return func(s *BiddingService) { s.publisher = p }
}

// WithMaxAttempts bounds the compare-and-set attempts per bid
func WithMaxAttempts(n int) Option {
	return func(s *BiddingService) {
		if n > 0 {
			s.maxAttempts = n
		}
	}
}

// WithTopBids sets how many bids an auction detail carries
func WithTopBids(n int) Option {
	return func(s *BiddingService) {
		if n > 0 {
			s.topBids = n
		}
	}
}

// WithListLimits sets the default and maximum page size for listings
func WithListLimits(defaultLimit, maxLimit int) Option {
	return func(s *BiddingService) {
		if defaultLimit > 0 {
			s.defaultLimit = defaultLimit
		}
		if maxLimit > 0 {
			s.maxLimit = maxLimit
		}
	}
}

// NewBiddingService creates a new BiddingService instance
func NewBiddingService(auctions repository.AuctionStore, bids repository.BidStore, opts ...Option) *BiddingService {
	s := &BiddingService{
		auctions:     auctions,
		bids:         bids,
		publisher:    events.Nop{},
		now:          func() time.Time { return time.Now().UTC() },
		maxAttempts:  defaultMaxAttempts,
		topBids:      defaultTopBids,
		defaultLimit: defaultListLimit,
		maxLimit:     defaultMaxListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.defaultLimit > s.maxLimit {
		s.defaultLimit = s.maxLimit
	}
	return s
}

// PlaceBidResult is what a caller learns about an accepted bid
type PlaceBidResult struct {
	BidID        string  `json:"id"`
	CurrentPrice float64 `json:"current_price"`
}

// PlaceBid validates and records a bid, then raises the auction price with
// compare-and-set. A conflicting writer causes the auction to be re-read and the
// amount re-validated; the bid record itself is written only once and only
// becomes visible in rankings once its price is committed.
func (s *BiddingService) PlaceBid(ctx context.Context, auctionID, bidderName string, amount float64) (PlaceBidResult, error) {
	now := s.now()
	stamp := lifecycle.Normalize(now)

	auction, err := s.loadForBid(ctx, auctionID)
	if err != nil {
		return PlaceBidResult{}, err
	}
	if lifecycle.Status(now, auction.StartTime, auction.EndTime) != models.StatusLive {
		return PlaceBidResult{}, fmt.Errorf("service: %w - auction %s is outside its bidding window", biddingerrors.ErrAuctionNotLive, auctionID)
	}
	if err := validateBidInput(bidderName, amount); err != nil {
		return PlaceBidResult{}, err
	}

	expected := auction.CurrentPrice
	if !exceeds(amount, auction.EffectivePrice()) {
		return PlaceBidResult{}, fmt.Errorf("service: %w - current price is %.2f", biddingerrors.ErrBidTooLow, auction.EffectivePrice())
	}

	bid := models.Bid{
		AuctionID:  auctionID,
		BidderName: bidderName,
		Amount:     amount,
		CreatedAt:  stamp,
	}
	bidID, err := s.bids.InsertBid(ctx, &bid)
	if err != nil {
		return PlaceBidResult{}, fmt.Errorf("service: failed to record bid for auction %s by %s: %w", auctionID, bidderName, err)
	}

	for attempt := 1; attempt <= s.maxAttempts; attempt++ {
		err := s.auctions.CompareAndSetPrice(ctx, auctionID, expected, amount, bidID, stamp)
		if err == nil {
			s.markAccepted(ctx, auctionID, bidID)
			s.announce(ctx, bid, bidID)
			return PlaceBidResult{BidID: bidID, CurrentPrice: amount}, nil
		}
		if !errors.Is(err, biddingerrors.ErrPriceConflict) {
			return PlaceBidResult{}, fmt.Errorf("service: failed to update price for auction %s: %w", auctionID, err)
		}

		utils.Debug("price moved during bid, retrying", map[string]any{
			"auction_id": auctionID,
			"bid_id":     bidID,
			"attempt":    attempt,
		})

		auction, err = s.loadForBid(ctx, auctionID)
		if err != nil {
			return PlaceBidResult{}, err
		}
		expected = auction.CurrentPrice
		if !exceeds(amount, auction.EffectivePrice()) {
			return PlaceBidResult{}, fmt.Errorf("service: %w - outbid, current price is %.2f", biddingerrors.ErrBidTooLow, auction.EffectivePrice())
		}
	}

	utils.Warn("bid abandoned after repeated price conflicts", map[string]any{
		"auction_id": auctionID,
		"bid_id":     bidID,
		"attempts":   s.maxAttempts,
	})
	return PlaceBidResult{}, fmt.Errorf("service: %w - price kept changing after %d attempts", biddingerrors.ErrBidTooLow, s.maxAttempts)
}

// loadForBid fetches the auction, folding a malformed id into not found
func (s *BiddingService) loadForBid(ctx context.Context, auctionID string) (models.Auction, error) {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	switch {
	case err == nil:
		return auction, nil
	case errors.Is(err, biddingerrors.ErrInvalidAuctionID):
		return models.Auction{}, fmt.Errorf("service: %w - malformed id %q", biddingerrors.ErrAuctionNotFound, auctionID)
	default:
		return models.Auction{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
}

// markAccepted surfaces the bid in rankings. The auction already names it as the
// winner, so a failed flag write only delays its listing and is not returned.
func (s *BiddingService) markAccepted(ctx context.Context, auctionID, bidID string) {
	if err := s.bids.MarkAccepted(ctx, bidID); err != nil {
		utils.Warn("failed to mark bid accepted", map[string]any{
			"auction_id": auctionID,
			"bid_id":     bidID,
			"error":      err.Error(),
		})
	}
}

func (s *BiddingService) announce(ctx context.Context, bid models.Bid, bidID string) {
	price := bid.Amount
	err := s.publisher.Publish(ctx, events.Event{
		Type:         events.BidAccepted,
		AuctionID:    bid.AuctionID,
		BidID:        bidID,
		BidderName:   bid.BidderName,
		Amount:       bid.Amount,
		CurrentPrice: &price,
		Timestamp:    bid.CreatedAt,
	})
	if err != nil {
		utils.Warn("failed to publish bid event", map[string]any{
			"auction_id": bid.AuctionID,
			"bid_id":     bidID,
			"error":      err.Error(),
		})
	}
}

// validateBidInput checks the bid itself, independent of the auction state
func validateBidInput(bidderName string, amount float64) error {
	if bidderName == "" {
		return fmt.Errorf("service: %w - missing bidder name", biddingerrors.ErrInvalidBid)
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return fmt.Errorf("service: %w - amount is not a finite number", biddingerrors.ErrInvalidBid)
	}
	if amount <= 0 {
		return fmt.Errorf("service: %w - non-positive bid amount", biddingerrors.ErrInvalidBid)
	}
	return nil
}

// exceeds reports whether amount is strictly above price at monetary precision
func exceeds(amount, price float64) bool {
	a := decimal.NewFromFloat(amount).Round(monetaryPrecision)
	p := decimal.NewFromFloat(price).Round(monetaryPrecision)
	return a.GreaterThan(p)
}

// TopBids returns up to n highest accepted bids for an existing auction
func (s *BiddingService) TopBids(ctx context.Context, auctionID string, n int) ([]models.Bid, error) {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if n <= 0 {
		n = s.topBids
	}
	if n > s.maxLimit {
		n = s.maxLimit
	}
	return s.rankedBids(ctx, auctionID, auction, n)
}

// rankedBids lists accepted bids, making sure the recorded winner leads even
// when its accepted flag has not been written yet.
func (s *BiddingService) rankedBids(ctx context.Context, auctionID string, auction models.Auction, n int) ([]models.Bid, error) {
	bids, err := s.bids.TopBids(ctx, auctionID, n)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get bids for auction %s: %w", auctionID, err)
	}
	if bids == nil {
		bids = []models.Bid{}
	}
	if auction.WinningBidID == nil || (len(bids) > 0 && bids[0].ID == *auction.WinningBidID) {
		return bids, nil
	}

	winner, err := s.bids.GetBid(ctx, *auction.WinningBidID)
	if err != nil {
		return nil, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	bids = append([]models.Bid{winner}, bids...)
	if len(bids) > n {
		bids = bids[:n]
	}
	return bids, nil
}

// GetWinningBid returns the bid whose amount is the committed current price
func (s *BiddingService) GetWinningBid(ctx context.Context, auctionID string) (models.Bid, error) {
	auction, err := s.auctions.GetAuction(ctx, auctionID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to load auction %s: %w", auctionID, err)
	}
	if auction.WinningBidID == nil {
		return models.Bid{}, fmt.Errorf("service: %w - auction %s", biddingerrors.ErrNoBids, auctionID)
	}

	bid, err := s.bids.GetBid(ctx, *auction.WinningBidID)
	if err != nil {
		return models.Bid{}, fmt.Errorf("service: failed to get winning bid for auction %s: %w", auctionID, err)
	}
	bid.Accepted = true
	return bid, nil
}
