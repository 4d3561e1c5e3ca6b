package models

import "time"

// Status is the lifecycle state of an auction, always derived from its time window
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusEnded     Status = "ended"
)

// SportsItem represents memorabilia or an experience that can be auctioned
type SportsItem struct {
	Title       string  `json:"title"`
	Description *string `json:"description,omitempty"`
	Sport       *string `json:"sport,omitempty"`
	Team        *string `json:"team,omitempty"`
	Player      *string `json:"player,omitempty"`
	ImageURL    *string `json:"image_url,omitempty"`
}

// Auction represents a timed sale with a monotonic current price.
// Status holds the snapshot taken at creation; readers derive the live value.
type Auction struct {
	ID            string     `json:"id"`
	ItemID        *string    `json:"item_id"`
	Title         string     `json:"title"`
	Description   *string    `json:"description"`
	ImageURL      *string    `json:"image_url"`
	StartingPrice float64    `json:"starting_price"`
	CurrentPrice  *float64   `json:"current_price"`
	StartTime     time.Time  `json:"start_time"`
	EndTime       time.Time  `json:"end_time"`
	Status        Status     `json:"status"`
	Tags          []string   `json:"tags"`
	WinningBidID  *string    `json:"winning_bid_id,omitempty"`
	UpdatedAt     *time.Time `json:"updated_at,omitempty"`
}

// EffectivePrice returns the current price, falling back to the starting price when unset
func (a Auction) EffectivePrice() float64 {
	if a.CurrentPrice != nil {
		return *a.CurrentPrice
	}
	return a.StartingPrice
}

// Bid represents an offer on an auction. Accepted flips once, after the offer
// raised the auction price; bids that lost the price race stay unaccepted.
type Bid struct {
	ID         string    `json:"id"`
	AuctionID  string    `json:"auction_id"`
	BidderName string    `json:"bidder_name"`
	Amount     float64   `json:"amount"`
	CreatedAt  time.Time `json:"created_at"`
	Accepted   bool      `json:"-"`
}
