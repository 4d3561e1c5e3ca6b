package perftests

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	bidding "live-auction/internal/biddingService"
	biddingerrors "live-auction/internal/biddingerrors"
)

type bidPlacer interface {
	GetAuction(ctx context.Context, id string) (bidding.AuctionDetail, error)
	PlaceBid(ctx context.Context, auctionID, bidderName string, amount float64) (bidding.PlaceBidResult, error)
}

// auctionLoad describes one simulated auction floor
type auctionLoad struct {
	name        string
	lots        int
	readPercent int     // share of operations that read instead of bidding
	raise       float64 // upper bound of the raise over the observed price
	paced       bool    // sleep between operations
}

// latencyRecorder keeps every sample so percentiles are exact
type latencyRecorder struct {
	mu      sync.Mutex
	samples []time.Duration
}

func (r *latencyRecorder) add(d time.Duration) {
	r.mu.Lock()
	r.samples = append(r.samples, d)
	r.mu.Unlock()
}

// percentiles returns the latency at each quantile in qs, in the same order
func (r *latencyRecorder) percentiles(qs ...float64) []time.Duration {
	r.mu.Lock()
	sorted := append([]time.Duration(nil), r.samples...)
	r.mu.Unlock()

	out := make([]time.Duration, len(qs))
	if len(sorted) == 0 {
		return out
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	for i, q := range qs {
		idx := int(q * float64(len(sorted)-1))
		out[i] = sorted[idx]
	}
	return out
}

type loadCounters struct {
	accepted, tooLow, notLive, other, reads atomic.Int64
}

// Benchmark_Load_AuctionFloor drives concurrent bidders and viewers against seeded lots
func Benchmark_Load_AuctionFloor(b *testing.B) {
	floors := []auctionLoad{
		{name: "ManyLots-BidHeavy", lots: 200, readPercent: 0, raise: 50, paced: true},
		{name: "FewLots-BidHeavy", lots: 10, readPercent: 0, raise: 20, paced: true},
		{name: "Mixed", lots: 50, readPercent: 60, raise: 30, paced: true},
		{name: "Viewers", lots: 50, readPercent: 90, raise: 20, paced: true},
		{name: "SingleLot-Frenzy", lots: 1, readPercent: 30, raise: 5, paced: false},
		{name: "Burst", lots: 50, readPercent: 0, raise: 20, paced: false},
	}

	for _, f := range floors {
		b.Run(f.name, func(b *testing.B) {
			runAuctionFloor(b, f)
		})
	}
}

func runAuctionFloor(b *testing.B, f auctionLoad) {
	b.ReportAllocs()

	_, svc := newService()
	ids := seedAuctions(b, svc, f.lots, 100)
	ctx := context.Background()

	var counters loadCounters
	perLot := make([]atomic.Int64, f.lots)
	rec := &latencyRecorder{}

	start := time.Now()
	b.RunParallel(func(pb *testing.PB) {
		rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
		bidder := fmt.Sprintf("bidder_%d", rnd.Int63())

		for pb.Next() {
			lot := rnd.Intn(f.lots)
			id := ids[lot]

			opStart := time.Now()
			if rnd.Intn(100) < f.readPercent {
				if rnd.Intn(2) == 0 {
					_, _ = svc.GetAuction(ctx, id)
				} else {
					_, _ = svc.TopBids(ctx, id, 5)
				}
				counters.reads.Add(1)
			} else {
				placeRaisedBid(ctx, svc, id, bidder, 1+rnd.Float64()*f.raise, &counters, &perLot[lot])
			}
			rec.add(time.Since(opStart))

			if f.paced {
				time.Sleep(time.Millisecond)
			}
		}
	})
	elapsed := time.Since(start)

	ops := counters.accepted.Load() + counters.tooLow.Load() + counters.notLive.Load() +
		counters.other.Load() + counters.reads.Load()
	q := rec.percentiles(0.5, 0.95, 0.99, 1)

	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)

	b.Logf(
		"floor=%s lots=%d ops=%d accepted=%d too_low=%d not_live=%d other=%d reads=%d elapsed=%s ops/s=%.0f p50=%s p95=%s p99=%s max=%s heap=%.1fMB",
		f.name, f.lots, ops,
		counters.accepted.Load(), counters.tooLow.Load(), counters.notLive.Load(), counters.other.Load(), counters.reads.Load(),
		elapsed, float64(ops)/elapsed.Seconds(),
		q[0], q[1], q[2], q[3],
		float64(mem.HeapAlloc)/1024/1024,
	)

	if counters.other.Load() > 0 {
		b.Errorf("unexpected bid failures: %d", counters.other.Load())
	}

	busiest, most := 0, int64(0)
	for i := range perLot {
		if n := perLot[i].Load(); n > most {
			busiest, most = i, n
		}
	}
	b.Logf("busiest lot %d accepted %d bids", busiest, most)
}

// placeRaisedBid bids a raise over the price the bidder last saw, the way a live client would
func placeRaisedBid(ctx context.Context, svc bidPlacer, id, bidder string, raise float64, c *loadCounters, lot *atomic.Int64) {
	detail, err := svc.GetAuction(ctx, id)
	if err != nil {
		c.other.Add(1)
		return
	}
	_, err = svc.PlaceBid(ctx, id, bidder, detail.EffectivePrice()+raise)
	switch {
	case err == nil:
		c.accepted.Add(1)
		lot.Add(1)
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		c.tooLow.Add(1)
	case errors.Is(err, biddingerrors.ErrAuctionNotLive):
		c.notLive.Add(1)
	default:
		c.other.Add(1)
	}
}
