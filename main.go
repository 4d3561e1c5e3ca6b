package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	bidding "live-auction/internal/biddingService"
	"live-auction/internal/config"
	"live-auction/internal/events"
	"live-auction/internal/repository"
	"live-auction/internal/repository/mongostore"
	"live-auction/internal/repository/sqlstore"
	"live-auction/internal/scheduler"
	"live-auction/internal/server"
	"live-auction/services/auctions/handler"
	"live-auction/utils"

	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
)

const shutdownTimeout = 10 * time.Second

// store bundles what the rest of the app needs from a backend
type store interface {
	repository.AuctionStore
	repository.BidStore
	repository.Diagnoser
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	utils.SetLevel(cfg.Log.Level)
	gin.SetMode(cfg.Server.Mode)
	utils.Info("configuration loaded", map[string]any{"config": cfg.GetConfigString()})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		utils.Fatal("failed to open store", map[string]any{"driver": cfg.Store.Driver, "error": err.Error()})
	}
	defer closeStore()

	hub := events.NewHub()
	publisher := events.Multi{hub}
	if cfg.Redis.Address != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Address,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			utils.Warn("redis unreachable, events will retry per publish", map[string]any{"address": cfg.Redis.Address, "error": err.Error()})
		}
		publisher = append(publisher, events.NewRedisPublisher(client, cfg.Redis.Channel))
	}

	biddingSvc := bidding.NewBiddingService(repo, repo,
		bidding.WithPublisher(publisher),
		bidding.WithMaxAttempts(cfg.Bidding.MaxAttempts),
		bidding.WithTopBids(cfg.Bidding.TopBids),
		bidding.WithListLimits(cfg.API.DefaultLimit, cfg.API.MaxLimit),
	)

	if cfg.Lifecycle.Schedule != "" {
		watcher := scheduler.NewWatcher(repo, publisher, nil)
		if err := watcher.Start(ctx, cfg.Lifecycle.Schedule); err != nil {
			utils.Fatal("failed to start lifecycle watcher", map[string]any{"error": err.Error()})
		}
		defer watcher.Stop()
	}

	router := server.SetupRouter(
		handler.NewAuctionHandler(biddingSvc, hub),
		handler.NewSystemHandler(repo, cfg.Mongo.Database),
		server.Options{CORSOrigins: cfg.Server.CORSOrigins},
	)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		utils.Info("Starting auction server", map[string]any{"addr": srv.Addr, "driver": repo.Driver()})
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("server stopped unexpectedly", map[string]any{"error": err.Error()})
			stop()
		}
	}()

	<-ctx.Done()
	utils.Info("shutting down", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		utils.Error("graceful shutdown failed", map[string]any{"error": err.Error()})
	}
}

// openStore builds the configured backend and returns its release function
func openStore(ctx context.Context, cfg *config.Config) (store, func(), error) {
	switch cfg.Store.Driver {
	case config.DriverMongo:
		connectCtx, cancel := context.WithTimeout(ctx, cfg.Mongo.Timeout)
		defer cancel()
		s, err := mongostore.Connect(connectCtx, cfg.Mongo.URI, cfg.Mongo.Database, cfg.Mongo.Timeout)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				utils.Warn("closing mongo failed", map[string]any{"error": err.Error()})
			}
		}, nil
	case config.DriverSQLite:
		s, err := sqlstore.Open(cfg.SQLite.DSN)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			if err := s.Close(); err != nil {
				utils.Warn("closing sqlite failed", map[string]any{"error": err.Error()})
			}
		}, nil
	default:
		return repository.NewMemoryRepo(), func() {}, nil
	}
}
