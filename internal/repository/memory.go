package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/lifecycle"
	model "live-auction/internal/models"
	"live-auction/utils"
)

// MemoryRepo is a concurrency-safe in-memory implementation of AuctionStore and BidStore
type MemoryRepo struct {
	mu       sync.RWMutex
	auctions map[string]model.Auction // key: auctionID -> value: auction
	order    []string                 // auction IDs in insertion order
	bids     map[string][]model.Bid   // key: auctionID -> value: bids in insertion order
	bidIndex map[string]bidRef        // key: bidID -> value: position in bids
}

type bidRef struct {
	auctionID string
	pos       int
}

// NewMemoryRepo creates a new in-memory repository instance
func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		auctions: make(map[string]model.Auction),
		bids:     make(map[string][]model.Bid),
		bidIndex: make(map[string]bidRef),
	}
}

// CreateAuction stores a copy of the auction under a fresh ID
func (r *MemoryRepo) CreateAuction(ctx context.Context, auction *model.Auction) (string, error) {
	if err := ctxErr(ctx, "create auction"); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored := cloneAuction(*auction)
	stored.ID = utils.GenerateID()
	r.auctions[stored.ID] = stored
	r.order = append(r.order, stored.ID)
	auction.ID = stored.ID

	return stored.ID, nil
}

// ListAuctions returns up to limit auctions, newest first
func (r *MemoryRepo) ListAuctions(ctx context.Context, filter ListFilter, limit int) ([]model.Auction, error) {
	if err := ctxErr(ctx, "list auctions"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]model.Auction, 0)
	for i := len(r.order) - 1; i >= 0; i-- {
		a := r.auctions[r.order[i]]
		if filter.Status != nil && lifecycle.Status(filter.Now, a.StartTime, a.EndTime) != *filter.Status {
			continue
		}
		out = append(out, cloneAuction(a))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetAuction returns the auction with the given ID
func (r *MemoryRepo) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	if err := ctxErr(ctx, "get auction"); err != nil {
		return model.Auction{}, err
	}
	if !utils.IsValidID(id) {
		return model.Auction{}, fmt.Errorf("get auction %q: %w", id, biddingerrors.ErrInvalidAuctionID)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.auctions[id]
	if !ok {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	return cloneAuction(a), nil
}

// CompareAndSetPrice updates the price and winner under the write lock only when the price still matches expected
func (r *MemoryRepo) CompareAndSetPrice(ctx context.Context, id string, expected *float64, newPrice float64, bidID string, now time.Time) error {
	if err := ctxErr(ctx, "compare and set price"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.auctions[id]
	if !ok {
		return fmt.Errorf("compare and set price for auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	if !samePrice(a.CurrentPrice, expected) {
		return fmt.Errorf("compare and set price for auction %s: %w", id, biddingerrors.ErrPriceConflict)
	}

	price := newPrice
	winner := bidID
	updated := now
	a.CurrentPrice = &price
	a.WinningBidID = &winner
	a.UpdatedAt = &updated
	r.auctions[id] = a
	return nil
}

// InsertBid appends an immutable bid record
func (r *MemoryRepo) InsertBid(ctx context.Context, bid *model.Bid) (string, error) {
	if err := ctxErr(ctx, "insert bid"); err != nil {
		return "", err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if bid.ID == "" {
		bid.ID = utils.GenerateID()
	}
	r.bidIndex[bid.ID] = bidRef{auctionID: bid.AuctionID, pos: len(r.bids[bid.AuctionID])}
	r.bids[bid.AuctionID] = append(r.bids[bid.AuctionID], *bid)
	return bid.ID, nil
}

// GetBid returns a single bid by ID
func (r *MemoryRepo) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	if err := ctxErr(ctx, "get bid"); err != nil {
		return model.Bid{}, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	ref, ok := r.bidIndex[bidID]
	if !ok {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return r.bids[ref.auctionID][ref.pos], nil
}

// MarkAccepted flags the bid as the one that raised the price
func (r *MemoryRepo) MarkAccepted(ctx context.Context, bidID string) error {
	if err := ctxErr(ctx, "mark bid accepted"); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ref, ok := r.bidIndex[bidID]
	if !ok {
		return fmt.Errorf("mark bid %s accepted: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	r.bids[ref.auctionID][ref.pos].Accepted = true
	return nil
}

// TopBids returns the highest accepted bids for an auction
func (r *MemoryRepo) TopBids(ctx context.Context, auctionID string, n int) ([]model.Bid, error) {
	if err := ctxErr(ctx, "top bids"); err != nil {
		return nil, err
	}

	r.mu.RLock()
	bids := make([]model.Bid, 0, len(r.bids[auctionID]))
	for _, b := range r.bids[auctionID] {
		if b.Accepted {
			bids = append(bids, b)
		}
	}
	r.mu.RUnlock()

	// stable sort keeps insertion order among equal amounts
	sort.SliceStable(bids, func(i, j int) bool { return bids[i].Amount > bids[j].Amount })
	if n > 0 && len(bids) > n {
		bids = bids[:n]
	}
	return bids, nil
}

// Ping always succeeds for the in-memory store
func (r *MemoryRepo) Ping(ctx context.Context) error {
	return ctxErr(ctx, "ping")
}

// Driver names the backend for diagnostics
func (r *MemoryRepo) Driver() string { return "memory" }

// Collections names the logical collections held in memory
func (r *MemoryRepo) Collections(ctx context.Context) ([]string, error) {
	if err := ctxErr(ctx, "collections"); err != nil {
		return nil, err
	}
	return []string{"auction", "bid"}, nil
}

// AddAuction stores an auction under its own ID. This method is intended for tests and seeding.
func (r *MemoryRepo) AddAuction(auction model.Auction) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.auctions[auction.ID]; !exists {
		r.order = append(r.order, auction.ID)
	}
	r.auctions[auction.ID] = cloneAuction(auction)
}

func ctxErr(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrStorageUnavailable, err)
	}
	return nil
}

func samePrice(stored, expected *float64) bool {
	if stored == nil || expected == nil {
		return stored == nil && expected == nil
	}
	return *stored == *expected
}

func cloneAuction(a model.Auction) model.Auction {
	if a.CurrentPrice != nil {
		p := *a.CurrentPrice
		a.CurrentPrice = &p
	}
	if a.UpdatedAt != nil {
		t := *a.UpdatedAt
		a.UpdatedAt = &t
	}
	if a.WinningBidID != nil {
		w := *a.WinningBidID
		a.WinningBidID = &w
	}
	a.Tags = append([]string(nil), a.Tags...)
	return a
}
