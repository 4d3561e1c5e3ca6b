// Package scheduler announces auction start and end transitions on a cron schedule.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"live-auction/internal/events"
	"live-auction/internal/lifecycle"
	"live-auction/internal/models"
	"live-auction/internal/repository"
	"live-auction/utils"

	"github.com/robfig/cron/v3"
)

// Watcher derives lifecycle transitions between ticks. Nothing is written back
// to the store; each tick compares the status at the previous tick with the
// status now and publishes the difference.
type Watcher struct {
	auctions  repository.AuctionStore
	publisher events.Publisher
	now       func() time.Time
	cron      *cron.Cron

	mu   sync.Mutex
	last time.Time
}

// NewWatcher builds a watcher; now may be nil to use the wall clock
func NewWatcher(auctions repository.AuctionStore, publisher events.Publisher, now func() time.Time) *Watcher {
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	if publisher == nil {
		publisher = events.Nop{}
	}
	return &Watcher{
		auctions:  auctions,
		publisher: publisher,
		now:       now,
		cron:      cron.New(),
	}
}

// Start registers Tick under schedule (any robfig/cron expression, e.g. "@every 30s") and runs the cron
func (w *Watcher) Start(ctx context.Context, schedule string) error {
	utils.Info("Starting lifecycle watcher", map[string]any{"schedule": schedule})

	_, err := w.cron.AddFunc(schedule, func() {
		if err := w.Tick(ctx); err != nil {
			utils.Error("lifecycle tick failed", map[string]any{"error": err.Error()})
		}
	})
	if err != nil {
		return fmt.Errorf("schedule lifecycle watcher: %w", err)
	}

	w.cron.Start()
	return nil
}

// Stop halts the cron and waits for a running tick to finish
func (w *Watcher) Stop() {
	utils.Info("Stopping lifecycle watcher", nil)
	<-w.cron.Stop().Done()
}

// Tick publishes transitions that happened since the previous tick.
// The first tick only records the reference time.
func (w *Watcher) Tick(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if w.last.IsZero() {
		w.last = now
		return nil
	}
	if !now.After(w.last) {
		return nil
	}

	auctions, err := w.auctions.ListAuctions(ctx, repository.ListFilter{Now: now}, 0)
	if err != nil {
		return fmt.Errorf("scan auctions: %w", err)
	}

	published := 0
	for _, a := range auctions {
		for _, ev := range transitions(a, w.last, now) {
			if err := w.publisher.Publish(ctx, ev); err != nil {
				utils.Warn("failed to publish lifecycle event", map[string]any{
					"auction_id": a.ID,
					"type":       ev.Type,
					"error":      err.Error(),
				})
				continue
			}
			published++
		}
	}

	if published > 0 {
		utils.Debug("lifecycle events published", map[string]any{"count": published, "since": w.last, "until": now})
	}
	w.last = now
	return nil
}

// transitions lists the events for one auction between two observations
func transitions(a models.Auction, prev, now time.Time) []events.Event {
	before := lifecycle.Status(prev, a.StartTime, a.EndTime)
	after := lifecycle.Status(now, a.StartTime, a.EndTime)

	var out []events.Event
	if before == models.StatusScheduled && after != models.StatusScheduled {
		out = append(out, events.Event{
			Type:         events.AuctionStarted,
			AuctionID:    a.ID,
			CurrentPrice: a.CurrentPrice,
			Timestamp:    a.StartTime,
		})
	}
	if before != models.StatusEnded && after == models.StatusEnded {
		out = append(out, events.Event{
			Type:         events.AuctionEnded,
			AuctionID:    a.ID,
			CurrentPrice: a.CurrentPrice,
			Timestamp:    a.EndTime,
		})
	}
	return out
}
