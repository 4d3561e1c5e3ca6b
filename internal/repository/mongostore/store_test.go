package mongostore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/repository"
	model "live-auction/internal/models"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestStatusQuery(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	status := func(s model.Status) *model.Status { return &s }

	tests := []struct {
		name    string
		filter  repository.ListFilter
		want    bson.M
		wantErr error
	}{
		{
			name:   "no filter",
			filter: repository.ListFilter{Now: now},
			want:   bson.M{},
		},
		{
			name:   "scheduled",
			filter: repository.ListFilter{Status: status(model.StatusScheduled), Now: now},
			want:   bson.M{"start_time": bson.M{"$gt": now}},
		},
		{
			name:   "live is inclusive on both ends",
			filter: repository.ListFilter{Status: status(model.StatusLive), Now: now},
			want:   bson.M{"start_time": bson.M{"$lte": now}, "end_time": bson.M{"$gte": now}},
		},
		{
			name:   "ended",
			filter: repository.ListFilter{Status: status(model.StatusEnded), Now: now},
			want:   bson.M{"end_time": bson.M{"$lt": now}},
		},
		{
			name:   "sub-millisecond now ends a window only once past its last millisecond",
			filter: repository.ListFilter{Status: status(model.StatusLive), Now: now.Add(300 * time.Microsecond)},
			want:   bson.M{"start_time": bson.M{"$lte": now}, "end_time": bson.M{"$gte": now.Add(time.Millisecond)}},
		},
		{
			name:    "unknown",
			filter:  repository.ListFilter{Status: status("paused"), Now: now},
			wantErr: biddingerrors.ErrInvalidStatus,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := statusQuery(tt.filter)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestCasFilter(t *testing.T) {
	t.Parallel()

	oid := primitive.NewObjectID()
	require.Equal(t, bson.M{"_id": oid, "current_price": nil}, casFilter(oid, nil))

	price := 150.0
	require.Equal(t, bson.M{"_id": oid, "current_price": 150.0}, casFilter(oid, &price))
}

// newTestStore connects to MONGO_TEST_URI, using a throwaway database per test
func newTestStore(t *testing.T) *Store {
	t.Helper()
	uri := os.Getenv("MONGO_TEST_URI")
	if uri == "" {
		t.Skip("MONGO_TEST_URI not set")
	}

	ctx := context.Background()
	dbName := fmt.Sprintf("auction_test_%s", primitive.NewObjectID().Hex())
	store, err := Connect(ctx, uri, dbName, 5*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.db.Drop(ctx)
		_ = store.Close(ctx)
	})
	return store
}

func TestStore_AuctionRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	price := 100.0
	a := &model.Auction{
		Title:         "Signed jersey",
		StartingPrice: 100,
		CurrentPrice:  &price,
		StartTime:     start,
		EndTime:       start.Add(24 * time.Hour),
		Status:        model.StatusScheduled,
	}
	id, err := store.CreateAuction(ctx, a)
	require.NoError(t, err)
	require.True(t, primitive.IsValidObjectID(id))

	got, err := store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "Signed jersey", got.Title)
	require.Equal(t, start, got.StartTime)
	require.Equal(t, []string{}, got.Tags)
	require.NotNil(t, got.CurrentPrice)
	require.Equal(t, 100.0, *got.CurrentPrice)

	_, err = store.GetAuction(ctx, "not-an-object-id")
	require.ErrorIs(t, err, biddingerrors.ErrInvalidAuctionID)

	_, err = store.GetAuction(ctx, primitive.NewObjectID().Hex())
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	names, err := store.Collections(ctx)
	require.NoError(t, err)
	require.Contains(t, names, auctionCollection)
	require.NoError(t, store.Ping(ctx))
	require.Equal(t, "mongo", store.Driver())
}

func TestStore_CompareAndSetPrice(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	price := 100.0
	id, err := store.CreateAuction(ctx, &model.Auction{
		Title: "Ball", StartingPrice: 100, CurrentPrice: &price,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	})
	require.NoError(t, err)

	stale := 90.0
	require.ErrorIs(t, store.CompareAndSetPrice(ctx, id, &stale, 120, "loser", now), biddingerrors.ErrPriceConflict)
	require.NoError(t, store.CompareAndSetPrice(ctx, id, &price, 120, "winner", now))

	got, err := store.GetAuction(ctx, id)
	require.NoError(t, err)
	require.Equal(t, 120.0, *got.CurrentPrice)
	require.NotNil(t, got.WinningBidID)
	require.Equal(t, "winner", *got.WinningBidID)
	require.NotNil(t, got.UpdatedAt)

	err = store.CompareAndSetPrice(ctx, primitive.NewObjectID().Hex(), &price, 130, "b", now)
	require.ErrorIs(t, err, biddingerrors.ErrAuctionNotFound)

	unset, err := store.CreateAuction(ctx, &model.Auction{
		Title: "Bat", StartingPrice: 50,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	})
	require.NoError(t, err)
	require.NoError(t, store.CompareAndSetPrice(ctx, unset, nil, 60, "b", now))
}

func TestStore_ConcurrentCompareAndSetHasOneWinner(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	price := 100.0
	id, err := store.CreateAuction(ctx, &model.Auction{
		Title: "Cap", StartingPrice: 100, CurrentPrice: &price,
		StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour),
	})
	require.NoError(t, err)

	const workers = 8
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- store.CompareAndSetPrice(ctx, id, &price, 101+float64(i), fmt.Sprintf("bid-%d", i), now)
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		require.ErrorIs(t, err, biddingerrors.ErrPriceConflict)
	}
	require.Equal(t, 1, wins)
}

func TestStore_TopBidsOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	amounts := []float64{110, 150, 150, 120}
	for i, amt := range amounts {
		_, err := store.InsertBid(ctx, &model.Bid{
			AuctionID:  "a1",
			BidderName: fmt.Sprintf("bidder-%d", i),
			Amount:     amt,
			CreatedAt:  base.Add(time.Duration(i) * time.Second),
			Accepted:   true,
		})
		require.NoError(t, err)
	}
	// lost its price race, never listed
	_, err := store.InsertBid(ctx, &model.Bid{AuctionID: "a1", BidderName: "orphan", Amount: 900, CreatedAt: base})
	require.NoError(t, err)

	top, err := store.TopBids(ctx, "a1", 3)
	require.NoError(t, err)
	require.Len(t, top, 3)
	require.Equal(t, "bidder-1", top[0].BidderName)
	require.Equal(t, "bidder-2", top[1].BidderName)
	require.Equal(t, "bidder-3", top[2].BidderName)

	none, err := store.TopBids(ctx, "missing", 10)
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestStore_MarkAcceptedAndGetBid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	bid := &model.Bid{AuctionID: "a1", BidderName: "alice", Amount: 150, CreatedAt: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	id, err := store.InsertBid(ctx, bid)
	require.NoError(t, err)

	got, err := store.GetBid(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "alice", got.BidderName)
	require.False(t, got.Accepted)

	top, err := store.TopBids(ctx, "a1", 10)
	require.NoError(t, err)
	require.Empty(t, top)

	require.NoError(t, store.MarkAccepted(ctx, id))
	require.NoError(t, store.MarkAccepted(ctx, id))

	top, err = store.TopBids(ctx, "a1", 10)
	require.NoError(t, err)
	require.Len(t, top, 1)
	require.Equal(t, id, top[0].ID)

	_, err = store.GetBid(ctx, "not-an-object-id")
	require.ErrorIs(t, err, biddingerrors.ErrBidNotFound)
	require.ErrorIs(t, store.MarkAccepted(ctx, primitive.NewObjectID().Hex()), biddingerrors.ErrBidNotFound)
}
