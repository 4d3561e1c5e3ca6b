package handler

import (
	"context"
	"net/http"

	bidding "live-auction/internal/biddingService"
	model "live-auction/internal/models"
	"live-auction/services/auctions/helpers"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
)

//go:generate mockgen -source=auction_handler.go -destination=mock_auction_handler.go -package=handler

type AuctionServiceInterface interface {
	CreateAuction(ctx context.Context, in bidding.CreateAuctionInput) (string, error)
	ListAuctions(ctx context.Context, status string, limit int) ([]bidding.AuctionView, error)
	GetAuction(ctx context.Context, id string) (bidding.AuctionDetail, error)
	PlaceBid(ctx context.Context, auctionID, bidderName string, amount float64) (bidding.PlaceBidResult, error)
	TopBids(ctx context.Context, auctionID string, n int) ([]model.Bid, error)
	GetWinningBid(ctx context.Context, auctionID string) (model.Bid, error)
}

// LiveFeed streams auction events over an upgraded connection
type LiveFeed interface {
	Serve(w http.ResponseWriter, r *http.Request, auctionID string) error
}

type AuctionHandler struct {
	service AuctionServiceInterface
	feed    LiveFeed
}

func NewAuctionHandler(service AuctionServiceInterface, feed LiveFeed) *AuctionHandler {
	return &AuctionHandler{service: service, feed: feed}
}

// ListAuctionsHandler handles GET /auctions
func (h *AuctionHandler) ListAuctionsHandler(c *gin.Context) {
	var q helpers.ListAuctionsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "ListAuctionsHandler", err)
		return
	}

	auctions, err := h.service.ListAuctions(c.Request.Context(), q.Status, q.Limit)
	if err != nil {
		helpers.RespondError(c, "ListAuctionsHandler", err, map[string]any{"status_filter": q.Status})
		return
	}
	if auctions == nil {
		auctions = []bidding.AuctionView{}
	}

	utils.JSONResponse(c, http.StatusOK, auctions, "auctions retrieved successfully")
	helpers.LogSuccess("ListAuctionsHandler", "auctions retrieved successfully", map[string]any{
		"status_filter": q.Status,
		"count":         len(auctions),
	})
}

// CreateAuctionHandler handles POST /auctions
func (h *AuctionHandler) CreateAuctionHandler(c *gin.Context) {
	var req helpers.CreateAuctionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "CreateAuctionHandler", err)
		return
	}

	id, err := h.service.CreateAuction(c.Request.Context(), bidding.CreateAuctionInput{
		ItemID:        req.ItemID,
		Title:         req.Title,
		Description:   req.Description,
		ImageURL:      req.ImageURL,
		StartingPrice: *req.StartingPrice,
		StartTime:     req.StartTime,
		EndTime:       req.EndTime,
		Tags:          req.Tags,
	})
	if err != nil {
		helpers.RespondError(c, "CreateAuctionHandler", err, map[string]any{"title": req.Title})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.CreateAuctionResponse{ID: id}, "auction created successfully")
	helpers.LogSuccess("CreateAuctionHandler", "auction created successfully", map[string]any{
		"auction_id": id,
		"title":      req.Title,
	})
}

// GetAuctionHandler handles GET /auctions/:auction_id
func (h *AuctionHandler) GetAuctionHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	detail, err := h.service.GetAuction(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetAuctionHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, detail, "auction retrieved successfully")
}

// PlaceBidHandler handles POST /auctions/:auction_id/bids
func (h *AuctionHandler) PlaceBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var req helpers.PlaceBidRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "PlaceBidHandler", err)
		return
	}

	res, err := h.service.PlaceBid(c.Request.Context(), auctionID, req.BidderName, *req.Amount)
	if err != nil {
		helpers.RespondError(c, "PlaceBidHandler", err, map[string]any{
			"auction_id":  auctionID,
			"bidder_name": req.BidderName,
			"amount":      *req.Amount,
		})
		return
	}

	resp := helpers.PlaceBidResponse{ID: res.BidID, CurrentPrice: res.CurrentPrice}
	utils.JSONResponse(c, http.StatusOK, resp, "bid accepted")
	helpers.LogSuccess("PlaceBidHandler", "bid accepted", map[string]any{
		"auction_id":    auctionID,
		"bid_id":        res.BidID,
		"bidder_name":   req.BidderName,
		"current_price": res.CurrentPrice,
	})
}

// GetTopBidsHandler handles GET /auctions/:auction_id/bids
func (h *AuctionHandler) GetTopBidsHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")

	var q helpers.TopBidsQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		helpers.HandleBindError(c, "GetTopBidsHandler", err)
		return
	}

	bids, err := h.service.TopBids(c.Request.Context(), auctionID, q.Limit)
	if err != nil {
		helpers.RespondError(c, "GetTopBidsHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	resp := make([]helpers.BidResponse, 0, len(bids))
	for _, b := range bids {
		resp = append(resp, helpers.ToBidResponse(b))
	}

	utils.JSONResponse(c, http.StatusOK, resp, "bids retrieved successfully")
	helpers.LogSuccess("GetTopBidsHandler", "bids retrieved successfully", map[string]any{
		"auction_id": auctionID,
		"count":      len(resp),
	})
}

// GetWinningBidHandler handles GET /auctions/:auction_id/winning
func (h *AuctionHandler) GetWinningBidHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	bid, err := h.service.GetWinningBid(c.Request.Context(), auctionID)
	if err != nil {
		helpers.RespondError(c, "GetWinningBidHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, helpers.ToBidResponse(bid), "winning bid retrieved successfully")
}

// LiveFeedHandler handles GET /auctions/:auction_id/live.
// The auction must exist before the connection is upgraded.
func (h *AuctionHandler) LiveFeedHandler(c *gin.Context) {
	auctionID := c.Param("auction_id")
	if _, err := h.service.GetAuction(c.Request.Context(), auctionID); err != nil {
		helpers.RespondError(c, "LiveFeedHandler", err, map[string]any{"auction_id": auctionID})
		return
	}

	if err := h.feed.Serve(c.Writer, c.Request, auctionID); err != nil {
		// the upgrader has already answered the client
		utils.Warn("LiveFeedHandler: websocket upgrade failed", map[string]any{
			"auction_id": auctionID,
			"error":      err.Error(),
		})
	}
}
