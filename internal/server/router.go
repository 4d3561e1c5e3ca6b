package server

import (
	"live-auction/services/auctions/handler"

	"github.com/gin-gonic/gin"
)

// Options carries the router level settings
type Options struct {
	CORSOrigins []string
}

// SetupRouter configures all Gin routes for the application
func SetupRouter(auctions *handler.AuctionHandler, system *handler.SystemHandler, opts Options) *gin.Engine {
	router := gin.New() // New router without default middleware for full control over middleware and logging

	router.Use(gin.Recovery())          // recover from panics
	router.Use(RequestIDMiddleware())   // X-Request-ID propagation
	router.Use(RequestLoggerMiddleware) // custom request logging
	router.Use(CORSMiddleware(opts.CORSOrigins))

	router.GET("/", system.RootHandler)
	router.GET("/test", system.DiagnosticsHandler)
	router.GET("/schema", system.SchemaHandler)

	group := router.Group("/auctions")
	{
		group.GET("", auctions.ListAuctionsHandler)
		group.POST("", auctions.CreateAuctionHandler)
		group.GET("/:auction_id", auctions.GetAuctionHandler)
		group.POST("/:auction_id/bids", auctions.PlaceBidHandler)
		group.GET("/:auction_id/bids", auctions.GetTopBidsHandler)
		group.GET("/:auction_id/winning", auctions.GetWinningBidHandler)
		group.GET("/:auction_id/live", auctions.LiveFeedHandler)
	}

	return router
}
