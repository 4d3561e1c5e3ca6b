package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/repository"
	model "live-auction/internal/models"
	"live-auction/utils"

	"github.com/stretchr/testify/require"
)

var (
	start = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end   = time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func createAuction(t *testing.T, s *Store, title string, price float64, from, to time.Time) string {
	t.Helper()
	p := price
	desc := title + " description"
	a := model.Auction{
		Title:         title,
		Description:   &desc,
		StartingPrice: price,
		CurrentPrice:  &p,
		StartTime:     from,
		EndTime:       to,
		Status:        model.StatusScheduled,
		Tags:          []string{"football", "signed"},
	}
	id, err := s.CreateAuction(context.Background(), &a)
	require.NoError(t, err)
	return id
}

func TestStore_CreateAndGetAuction(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	id := createAuction(t, s, "Signed Jersey", 100, start, end)
	require.True(t, utils.IsValidID(id))

	got, err := s.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Signed Jersey", got.Title)
	require.Equal(t, "Signed Jersey description", *got.Description)
	require.Nil(t, got.ImageURL)
	require.Nil(t, got.ItemID)
	require.Equal(t, 100.0, *got.CurrentPrice)
	require.True(t, start.Equal(got.StartTime))
	require.True(t, end.Equal(got.EndTime))
	require.Equal(t, []string{"football", "signed"}, got.Tags)
	require.Nil(t, got.UpdatedAt)

	_, err = s.GetAuction(ctx, utils.GenerateID())
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))

	_, err = s.GetAuction(ctx, "12345")
	require.True(t, errors.Is(err, biddingerrors.ErrInvalidAuctionID))
}

func TestStore_ListAuctions(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	now := start.Add(12 * time.Hour)

	createAuction(t, s, "scheduled", 10, now.Add(time.Hour), now.Add(2*time.Hour))
	createAuction(t, s, "live", 10, start, end)
	createAuction(t, s, "ended", 10, now.Add(-2*time.Hour), now.Add(-time.Hour))
	createAuction(t, s, "live-at-boundary", 10, now, now)

	statusPtr := func(st model.Status) *model.Status { return &st }

	tests := []struct {
		name   string
		filter repository.ListFilter
		limit  int
		want   []string
	}{
		{name: "all", filter: repository.ListFilter{Now: now}, limit: 20, want: []string{"live-at-boundary", "ended", "live", "scheduled"}},
		{name: "limit", filter: repository.ListFilter{Now: now}, limit: 1, want: []string{"live-at-boundary"}},
		{name: "live", filter: repository.ListFilter{Now: now, Status: statusPtr(model.StatusLive)}, limit: 20, want: []string{"live-at-boundary", "live"}},
		{name: "ended", filter: repository.ListFilter{Now: now, Status: statusPtr(model.StatusEnded)}, limit: 20, want: []string{"ended"}},
		{name: "scheduled", filter: repository.ListFilter{Now: now, Status: statusPtr(model.StatusScheduled)}, limit: 20, want: []string{"scheduled"}},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			got, err := s.ListAuctions(ctx, tc.filter, tc.limit)
			require.NoError(t, err)

			titles := make([]string, 0, len(got))
			for _, a := range got {
				titles = append(titles, a.Title)
			}
			require.Equal(t, tc.want, titles)
		})
	}
}

func TestStore_CompareAndSetPrice(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	now := start.Add(time.Hour)
	id := createAuction(t, s, "a", 100, start, end)

	expected := 100.0
	require.NoError(t, s.CompareAndSetPrice(ctx, id, &expected, 150, "bid-150", now))

	got, err := s.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 150.0, *got.CurrentPrice)
	require.Equal(t, "bid-150", *got.WinningBidID)
	require.True(t, now.Equal(*got.UpdatedAt))

	// the old expected value no longer matches
	err = s.CompareAndSetPrice(ctx, id, &expected, 200, "bid-200", now)
	require.True(t, errors.Is(err, biddingerrors.ErrPriceConflict))

	err = s.CompareAndSetPrice(ctx, id, nil, 200, "bid-200", now)
	require.True(t, errors.Is(err, biddingerrors.ErrPriceConflict))

	got, err = s.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "bid-150", *got.WinningBidID)

	err = s.CompareAndSetPrice(ctx, utils.GenerateID(), &expected, 200, "bid-200", now)
	require.True(t, errors.Is(err, biddingerrors.ErrAuctionNotFound))
}

func TestStore_CompareAndSetPrice_UnsetPrice(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	a := model.Auction{Title: "no price yet", StartingPrice: 50, StartTime: start, EndTime: end, Status: model.StatusLive}
	id, err := s.CreateAuction(ctx, &a)
	require.NoError(t, err)

	got, err := s.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Nil(t, got.CurrentPrice)
	require.Equal(t, 50.0, got.EffectivePrice())

	require.Nil(t, got.WinningBidID)
	require.NoError(t, s.CompareAndSetPrice(ctx, id, nil, 60, "b", start))
}

func TestStore_CompareAndSetPrice_ConcurrentSingleWinner(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	id := createAuction(t, s, "contended", 100, start, end)

	var wins int64
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		i := i
		go func() {
			defer wg.Done()
			expected := 100.0
			if err := s.CompareAndSetPrice(ctx, id, &expected, float64(101+i), fmt.Sprintf("bid-%d", i), start); err == nil {
				atomic.AddInt64(&wins, 1)
			}
		}()
	}
	wg.Wait()
	require.Equal(t, int64(1), wins)
}

func TestStore_TopBids(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	auctionID := createAuction(t, s, "a", 1, start, end)

	amounts := []float64{100, 120, 105, 140, 110, 150, 130, 115, 145, 125, 135, 160, 155, 101, 120}
	for i, amount := range amounts {
		b := model.Bid{AuctionID: auctionID, BidderName: fmt.Sprintf("bidder-%d", i), Amount: amount, CreatedAt: start, Accepted: true}
		id, err := s.InsertBid(ctx, &b)
		require.NoError(t, err)
		require.Equal(t, b.ID, id)
	}
	orphan := model.Bid{AuctionID: auctionID, BidderName: "orphan", Amount: 999, CreatedAt: start}
	_, err := s.InsertBid(ctx, &orphan)
	require.NoError(t, err)

	bids, err := s.TopBids(ctx, auctionID, 10)
	require.NoError(t, err)
	require.Len(t, bids, 10)

	got := make([]float64, 0, len(bids))
	for _, b := range bids {
		got = append(got, b.Amount)
	}
	require.Equal(t, []float64{160, 155, 150, 145, 140, 135, 130, 125, 120, 120}, got)
	require.Equal(t, "bidder-1", bids[8].BidderName)
	require.Equal(t, "bidder-14", bids[9].BidderName)
	require.True(t, start.Equal(bids[0].CreatedAt))

	empty, err := s.TopBids(ctx, utils.GenerateID(), 10)
	require.NoError(t, err)
	require.Empty(t, empty)
}

func TestStore_MarkAcceptedAndGetBid(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	auctionID := createAuction(t, s, "a", 1, start, end)

	b := model.Bid{AuctionID: auctionID, BidderName: "alice", Amount: 150, CreatedAt: start.Add(1500 * time.Millisecond)}
	id, err := s.InsertBid(ctx, &b)
	require.NoError(t, err)

	got, err := s.GetBid(ctx, id)
	require.NoError(t, err)
	require.False(t, got.Accepted)
	require.Equal(t, "alice", got.BidderName)
	require.True(t, b.CreatedAt.Equal(got.CreatedAt))

	top, err := s.TopBids(ctx, auctionID, 10)
	require.NoError(t, err)
	require.Empty(t, top)

	require.NoError(t, s.MarkAccepted(ctx, id))
	require.NoError(t, s.MarkAccepted(ctx, id))

	got, err = s.GetBid(ctx, id)
	require.NoError(t, err)
	require.True(t, got.Accepted)

	top, err = s.TopBids(ctx, auctionID, 10)
	require.NoError(t, err)
	require.Len(t, top, 1)

	_, err = s.GetBid(ctx, utils.GenerateID())
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	require.ErrorIs(t, s.MarkAccepted(ctx, utils.GenerateID()), biddingerrors.ErrBidNotFound)
}

// Windows far from the Unix epoch must round-trip and keep their derived status.
func TestStore_TimesOutsideNanosecondRange(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()

	farStart := time.Date(1500, 3, 1, 0, 0, 0, 0, time.UTC)
	farEnd := time.Date(3000, 1, 1, 0, 0, 0, 0, time.UTC)
	id := createAuction(t, s, "millennium", 10, farStart, farEnd)

	got, err := s.GetAuction(ctx, id)
	require.NoError(t, err)
	require.True(t, farStart.Equal(got.StartTime), "start read back as %s", got.StartTime)
	require.True(t, farEnd.Equal(got.EndTime), "end read back as %s", got.EndTime)

	live := model.StatusLive
	listed, err := s.ListAuctions(ctx, repository.ListFilter{Status: &live, Now: start}, 10)
	require.NoError(t, err)
	require.Len(t, listed, 1)
	require.Equal(t, id, listed[0].ID)
}

func TestStore_ListAuctions_MillisecondEdges(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	ctx := context.Background()
	edge := start.Add(12 * time.Hour)
	createAuction(t, s, "closes-at-edge", 10, start, edge)

	statusPtr := func(st model.Status) *model.Status { return &st }
	titles := func(now time.Time, st model.Status) []string {
		got, err := s.ListAuctions(ctx, repository.ListFilter{Now: now, Status: statusPtr(st)}, 10)
		require.NoError(t, err)
		out := []string{}
		for _, a := range got {
			out = append(out, a.Title)
		}
		return out
	}

	require.Equal(t, []string{"closes-at-edge"}, titles(edge, model.StatusLive))
	require.Empty(t, titles(edge, model.StatusEnded))

	// half a millisecond after the close is already past it
	past := edge.Add(500 * time.Microsecond)
	require.Empty(t, titles(past, model.StatusLive))
	require.Equal(t, []string{"closes-at-edge"}, titles(past, model.StatusEnded))
}

func TestStore_Ping(t *testing.T) {
	t.Parallel()

	s := openTestStore(t)
	require.NoError(t, s.Ping(context.Background()))
	require.Equal(t, "sqlite", s.Driver())

	tables, err := s.Collections(context.Background())
	require.NoError(t, err)
	require.Contains(t, tables, "auctions")
	require.Contains(t, tables, "bids")
}
