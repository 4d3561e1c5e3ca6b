package perftests

import (
	"context"
	"fmt"
	"testing"
	"time"

	bidding "live-auction/internal/biddingService"
	repository "live-auction/internal/repository"
)

var (
	windowStart = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	windowEnd   = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	benchNow    = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
)

// newService builds a service over a fresh memory store frozen inside every auction window
func newService(opts ...bidding.Option) (*repository.MemoryRepo, *bidding.BiddingService) {
	repo := repository.NewMemoryRepo()
	opts = append([]bidding.Option{
		bidding.WithClock(func() time.Time { return benchNow }),
		bidding.WithMaxAttempts(20),
	}, opts...)
	return repo, bidding.NewBiddingService(repo, repo, opts...)
}

// seedAuctions creates n live auctions and returns their ids
func seedAuctions(tb testing.TB, svc *bidding.BiddingService, n int, startingPrice float64) []string {
	tb.Helper()
	ids := make([]string, 0, n)
	for i := 0; i < n; i++ {
		id, err := svc.CreateAuction(context.Background(), bidding.CreateAuctionInput{
			Title:         fmt.Sprintf("lot_%d", i),
			StartingPrice: startingPrice,
			StartTime:     windowStart,
			EndTime:       windowEnd,
		})
		if err != nil {
			tb.Fatalf("failed to seed auction: %v", err)
		}
		ids = append(ids, id)
	}
	return ids
}
