package helpers

import "time"

// Request/Response DTOs
type CreateAuctionRequest struct {
	ItemID        *string   `json:"item_id"`
	Title         string    `json:"title" binding:"required"`
	Description   *string   `json:"description"`
	ImageURL      *string   `json:"image_url"`
	StartingPrice *float64  `json:"starting_price" binding:"required,gte=0"`
	StartTime     time.Time `json:"start_time" binding:"required"`
	EndTime       time.Time `json:"end_time" binding:"required"`
	Tags          []string  `json:"tags"`
}

type CreateAuctionResponse struct {
	ID string `json:"id"`
}

// PlaceBidRequest leaves amount range checks to the service so an unknown
// auction reports not found whatever the amount.
type PlaceBidRequest struct {
	BidderName string   `json:"bidder_name" binding:"required"`
	Amount     *float64 `json:"amount" binding:"required"`
}

type PlaceBidResponse struct {
	ID           string  `json:"id"`
	CurrentPrice float64 `json:"current_price"`
}

type BidResponse struct {
	ID         string  `json:"id"`
	AuctionID  string  `json:"auction_id"`
	BidderName string  `json:"bidder_name"`
	Amount     float64 `json:"amount"`
	CreatedAt  string  `json:"created_at"`
}

type ListAuctionsQuery struct {
	Status string `form:"status"`
	Limit  int    `form:"limit" binding:"omitempty,min=1"`
}

type TopBidsQuery struct {
	Limit int `form:"limit" binding:"omitempty,min=1"`
}

// DiagnosticsResponse mirrors the health report of GET /test
type DiagnosticsResponse struct {
	Backend          string   `json:"backend"`
	Driver           string   `json:"driver"`
	Database         string   `json:"database"`
	DatabaseURL      string   `json:"database_url"`
	DatabaseName     string   `json:"database_name"`
	ConnectionStatus string   `json:"connection_status"`
	Collections      []string `json:"collections"`
}
