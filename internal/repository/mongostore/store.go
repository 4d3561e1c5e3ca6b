// Package mongostore persists auctions and bids as MongoDB documents.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/lifecycle"
	"live-auction/internal/repository"
	model "live-auction/internal/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	auctionCollection = "auction"
	bidCollection     = "bid"
)

// Store implements repository.AuctionStore and repository.BidStore on MongoDB
type Store struct {
	client   *mongo.Client
	db       *mongo.Database
	auctions *mongo.Collection
	bids     *mongo.Collection
	timeout  time.Duration
}

var (
	_ repository.AuctionStore = (*Store)(nil)
	_ repository.BidStore     = (*Store)(nil)
	_ repository.Diagnoser    = (*Store)(nil)
)

// Connect dials uri, verifies the primary is reachable and ensures indexes.
// timeout bounds every store operation; expiry surfaces as ErrStorageUnavailable.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri).SetTimeout(timeout))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := client.Ping(pingCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		db:       db,
		auctions: db.Collection(auctionCollection),
		bids:     db.Collection(bidCollection),
		timeout:  timeout,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close disconnects the client
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.bids.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "auction_id", Value: 1}, {Key: "accepted", Value: 1}, {Key: "amount", Value: -1}, {Key: "created_at", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create bid index: %w", err)
	}
	_, err = s.auctions.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "start_time", Value: 1}, {Key: "end_time", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("create auction window index: %w", err)
	}
	return nil
}

type auctionDoc struct {
	ID            primitive.ObjectID `bson:"_id,omitempty"`
	ItemID        *string            `bson:"item_id"`
	Title         string             `bson:"title"`
	Description   *string            `bson:"description"`
	ImageURL      *string            `bson:"image_url"`
	StartingPrice float64            `bson:"starting_price"`
	CurrentPrice  *float64           `bson:"current_price"`
	StartTime     time.Time          `bson:"start_time"`
	EndTime       time.Time          `bson:"end_time"`
	Status        string             `bson:"status"`
	Tags          []string           `bson:"tags"`
	WinningBidID  *string            `bson:"winning_bid_id,omitempty"`
	UpdatedAt     *time.Time         `bson:"updated_at,omitempty"`
}

func (d auctionDoc) toModel() model.Auction {
	tags := d.Tags
	if tags == nil {
		tags = []string{}
	}
	a := model.Auction{
		ID:            d.ID.Hex(),
		ItemID:        d.ItemID,
		Title:         d.Title,
		Description:   d.Description,
		ImageURL:      d.ImageURL,
		StartingPrice: d.StartingPrice,
		CurrentPrice:  d.CurrentPrice,
		StartTime:     d.StartTime.UTC(),
		EndTime:       d.EndTime.UTC(),
		Status:        model.Status(d.Status),
		Tags:          tags,
		WinningBidID:  d.WinningBidID,
	}
	if d.UpdatedAt != nil {
		t := d.UpdatedAt.UTC()
		a.UpdatedAt = &t
	}
	return a
}

type bidDoc struct {
	ID         primitive.ObjectID `bson:"_id"`
	AuctionID  string             `bson:"auction_id"`
	BidderName string             `bson:"bidder_name"`
	Amount     float64            `bson:"amount"`
	CreatedAt  time.Time          `bson:"created_at"`
	Accepted   bool               `bson:"accepted"`
}

func (d bidDoc) toModel() model.Bid {
	return model.Bid{
		ID:         d.ID.Hex(),
		AuctionID:  d.AuctionID,
		BidderName: d.BidderName,
		Amount:     d.Amount,
		CreatedAt:  d.CreatedAt.UTC(),
		Accepted:   d.Accepted,
	}
}

// CreateAuction inserts a new auction document
func (s *Store) CreateAuction(ctx context.Context, auction *model.Auction) (string, error) {
	tags := auction.Tags
	if tags == nil {
		tags = []string{}
	}
	doc := auctionDoc{
		ID:            primitive.NewObjectID(),
		ItemID:        auction.ItemID,
		Title:         auction.Title,
		Description:   auction.Description,
		ImageURL:      auction.ImageURL,
		StartingPrice: auction.StartingPrice,
		CurrentPrice:  auction.CurrentPrice,
		StartTime:     auction.StartTime,
		EndTime:       auction.EndTime,
		Status:        string(auction.Status),
		Tags:          tags,
		WinningBidID:  auction.WinningBidID,
		UpdatedAt:     auction.UpdatedAt,
	}
	if _, err := s.auctions.InsertOne(ctx, doc); err != nil {
		return "", unavailable("create auction", err)
	}
	auction.ID = doc.ID.Hex()
	return auction.ID, nil
}

// ListAuctions returns up to limit auctions, newest first
func (s *Store) ListAuctions(ctx context.Context, filter repository.ListFilter, limit int) ([]model.Auction, error) {
	query, err := statusQuery(filter)
	if err != nil {
		return nil, fmt.Errorf("list auctions: %w", err)
	}

	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}

	cur, err := s.auctions.Find(ctx, query, opts)
	if err != nil {
		return nil, unavailable("list auctions", err)
	}
	var docs []auctionDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("list auctions", err)
	}

	out := make([]model.Auction, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toModel())
	}
	return out, nil
}

// statusQuery turns a derived-status filter into a time-window query at filter.Now.
// BSON dates hold milliseconds, so now is compared through its aligned bounds.
func statusQuery(filter repository.ListFilter) (bson.M, error) {
	if filter.Status == nil {
		return bson.M{}, nil
	}
	floor, ceil := lifecycle.Bounds(filter.Now)
	switch *filter.Status {
	case model.StatusScheduled:
		return bson.M{"start_time": bson.M{"$gt": floor}}, nil
	case model.StatusLive:
		return bson.M{"start_time": bson.M{"$lte": floor}, "end_time": bson.M{"$gte": ceil}}, nil
	case model.StatusEnded:
		return bson.M{"end_time": bson.M{"$lt": ceil}}, nil
	}
	return nil, fmt.Errorf("%w: %q", biddingerrors.ErrInvalidStatus, *filter.Status)
}

// GetAuction returns the auction with the given hex ObjectID
func (s *Store) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return model.Auction{}, fmt.Errorf("get auction %q: %w", id, biddingerrors.ErrInvalidAuctionID)
	}

	var doc auctionDoc
	err = s.auctions.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, unavailable("get auction", err)
	}
	return doc.toModel(), nil
}

// CompareAndSetPrice makes the expected price part of the update filter, so the
// server applies the write only while the stored price still matches.
// A nil expected becomes a null match, which also covers a missing field.
func (s *Store) CompareAndSetPrice(ctx context.Context, id string, expected *float64, newPrice float64, bidID string, now time.Time) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return fmt.Errorf("compare and set price for auction %q: %w", id, biddingerrors.ErrAuctionNotFound)
	}

	res, err := s.auctions.UpdateOne(ctx, casFilter(oid, expected),
		bson.M{"$set": bson.M{"current_price": newPrice, "winning_bid_id": bidID, "updated_at": now}})
	if err != nil {
		return unavailable("compare and set price", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	n, err := s.auctions.CountDocuments(ctx, bson.M{"_id": oid})
	if err != nil {
		return unavailable("compare and set price", err)
	}
	if n == 0 {
		return fmt.Errorf("compare and set price for auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	return fmt.Errorf("compare and set price for auction %s: %w", id, biddingerrors.ErrPriceConflict)
}

func casFilter(oid primitive.ObjectID, expected *float64) bson.M {
	if expected == nil {
		return bson.M{"_id": oid, "current_price": nil}
	}
	return bson.M{"_id": oid, "current_price": *expected}
}

// InsertBid appends an immutable bid document
func (s *Store) InsertBid(ctx context.Context, bid *model.Bid) (string, error) {
	doc := bidDoc{
		ID:         primitive.NewObjectID(),
		AuctionID:  bid.AuctionID,
		BidderName: bid.BidderName,
		Amount:     bid.Amount,
		CreatedAt:  bid.CreatedAt,
		Accepted:   bid.Accepted,
	}
	if _, err := s.bids.InsertOne(ctx, doc); err != nil {
		return "", unavailable("insert bid", err)
	}
	bid.ID = doc.ID.Hex()
	return bid.ID, nil
}

// GetBid returns a single bid by hex ObjectID
func (s *Store) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	oid, err := primitive.ObjectIDFromHex(bidID)
	if err != nil {
		return model.Bid{}, fmt.Errorf("get bid %q: %w", bidID, biddingerrors.ErrBidNotFound)
	}

	var doc bidDoc
	err = s.bids.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, unavailable("get bid", err)
	}
	return doc.toModel(), nil
}

// MarkAccepted flags the bid as the one that raised the price
func (s *Store) MarkAccepted(ctx context.Context, bidID string) error {
	oid, err := primitive.ObjectIDFromHex(bidID)
	if err != nil {
		return fmt.Errorf("mark bid %q accepted: %w", bidID, biddingerrors.ErrBidNotFound)
	}

	res, err := s.bids.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"accepted": true}})
	if err != nil {
		return unavailable("mark bid accepted", err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("mark bid %s accepted: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return nil
}

// TopBids returns the highest bids; created_at then _id keep ties in insertion order
func (s *Store) TopBids(ctx context.Context, auctionID string, n int) ([]model.Bid, error) {
	opts := options.Find().SetSort(bson.D{
		{Key: "amount", Value: -1},
		{Key: "created_at", Value: 1},
		{Key: "_id", Value: 1},
	})
	if n > 0 {
		opts.SetLimit(int64(n))
	}

	cur, err := s.bids.Find(ctx, bson.M{"auction_id": auctionID, "accepted": true}, opts)
	if err != nil {
		return nil, unavailable("top bids", err)
	}
	var docs []bidDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, unavailable("top bids", err)
	}

	bids := make([]model.Bid, 0, len(docs))
	for _, d := range docs {
		bids = append(bids, d.toModel())
	}
	return bids, nil
}

// Ping checks the primary
func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Driver names the backend for diagnostics
func (s *Store) Driver() string { return "mongo" }

// Collections lists collection names in the configured database
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	names, err := s.db.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, unavailable("list collections", err)
	}
	return names, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrStorageUnavailable, err)
}
