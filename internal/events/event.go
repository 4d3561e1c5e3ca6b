// Package events broadcasts auction activity to subscribers outside the request path.
package events

import (
	"context"
	"errors"
	"time"
)

// Type identifies what happened to an auction
type Type string

const (
	BidAccepted    Type = "bid_accepted"
	AuctionStarted Type = "auction_started"
	AuctionEnded   Type = "auction_ended"
)

// Event is the payload delivered to every subscriber
type Event struct {
	Type         Type      `json:"type"`
	AuctionID    string    `json:"auction_id"`
	BidID        string    `json:"bid_id,omitempty"`
	BidderName   string    `json:"bidder_name,omitempty"`
	Amount       float64   `json:"amount,omitempty"`
	CurrentPrice *float64  `json:"current_price,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// Publisher delivers events. Callers treat delivery as best effort.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }

// Multi fans an event out to several publishers, joining their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, event Event) error {
	var errs []error
	for _, p := range m {
		if p == nil {
			continue
		}
		if err := p.Publish(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
