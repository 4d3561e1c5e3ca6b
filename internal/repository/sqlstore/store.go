// Package sqlstore persists auctions and bids in SQLite through sqlx.
package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"live-auction/internal/biddingerrors"
	"live-auction/internal/lifecycle"
	"live-auction/internal/repository"
	model "live-auction/internal/models"
	"live-auction/utils"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

// Store implements repository.AuctionStore and repository.BidStore on SQLite
type Store struct {
	db *sqlx.DB
}

var (
	_ repository.AuctionStore = (*Store)(nil)
	_ repository.BidStore     = (*Store)(nil)
	_ repository.Diagnoser    = (*Store)(nil)
)

// Open connects to dsn and creates the schema if needed
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// a single connection serialises writers and keeps ":memory:" databases shared
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Times are stored as Unix milliseconds, which covers every year a time.Time
// can render as JSON.
func ensureSchema(db *sqlx.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS auctions(
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  item_id TEXT,
  title TEXT NOT NULL,
  description TEXT,
  image_url TEXT,
  starting_price REAL NOT NULL CHECK (starting_price >= 0),
  current_price REAL CHECK (current_price IS NULL OR current_price >= 0),
  start_time INTEGER NOT NULL,
  end_time INTEGER NOT NULL,
  status TEXT NOT NULL,
  tags_json TEXT NOT NULL DEFAULT '[]',
  winning_bid_id TEXT,
  updated_at INTEGER
);
CREATE INDEX IF NOT EXISTS idx_auctions_window ON auctions(start_time, end_time);

CREATE TABLE IF NOT EXISTS bids(
  seq INTEGER PRIMARY KEY AUTOINCREMENT,
  id TEXT NOT NULL UNIQUE,
  auction_id TEXT NOT NULL,
  bidder_name TEXT NOT NULL,
  amount REAL NOT NULL CHECK (amount > 0),
  created_at INTEGER NOT NULL,
  accepted INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_bids_auction_amount ON bids(auction_id, accepted, amount DESC, seq);
`
	_, err := db.Exec(schema)
	return err
}

type auctionRow struct {
	ID            string          `db:"id"`
	ItemID        sql.NullString  `db:"item_id"`
	Title         string          `db:"title"`
	Description   sql.NullString  `db:"description"`
	ImageURL      sql.NullString  `db:"image_url"`
	StartingPrice float64         `db:"starting_price"`
	CurrentPrice  sql.NullFloat64 `db:"current_price"`
	StartTime     int64           `db:"start_time"`
	EndTime       int64           `db:"end_time"`
	Status        string          `db:"status"`
	TagsJSON      string          `db:"tags_json"`
	WinningBidID  sql.NullString  `db:"winning_bid_id"`
	UpdatedAt     sql.NullInt64   `db:"updated_at"`
}

const auctionColumns = `id, item_id, title, description, image_url, starting_price, current_price,
	start_time, end_time, status, tags_json, winning_bid_id, updated_at`

func (r auctionRow) toModel() (model.Auction, error) {
	a := model.Auction{
		ID:            r.ID,
		ItemID:        nullString(r.ItemID),
		Title:         r.Title,
		Description:   nullString(r.Description),
		ImageURL:      nullString(r.ImageURL),
		StartingPrice: r.StartingPrice,
		StartTime:     fromMillis(r.StartTime),
		EndTime:       fromMillis(r.EndTime),
		Status:        model.Status(r.Status),
		Tags:          []string{},
		WinningBidID:  nullString(r.WinningBidID),
	}
	if r.CurrentPrice.Valid {
		p := r.CurrentPrice.Float64
		a.CurrentPrice = &p
	}
	if r.UpdatedAt.Valid {
		t := fromMillis(r.UpdatedAt.Int64)
		a.UpdatedAt = &t
	}
	if err := json.Unmarshal([]byte(r.TagsJSON), &a.Tags); err != nil {
		return model.Auction{}, fmt.Errorf("decode tags for auction %s: %w", r.ID, err)
	}
	return a, nil
}

// CreateAuction inserts a new auction row
func (s *Store) CreateAuction(ctx context.Context, auction *model.Auction) (string, error) {
	tags := auction.Tags
	if tags == nil {
		tags = []string{}
	}
	tagsJSON, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("encode tags: %w", err)
	}

	id := utils.GenerateID()
	var current sql.NullFloat64
	if auction.CurrentPrice != nil {
		current = sql.NullFloat64{Float64: *auction.CurrentPrice, Valid: true}
	}
	var updated sql.NullInt64
	if auction.UpdatedAt != nil {
		updated = sql.NullInt64{Int64: auction.UpdatedAt.UnixMilli(), Valid: true}
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO auctions(`+auctionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, toNullString(auction.ItemID), auction.Title, toNullString(auction.Description),
		toNullString(auction.ImageURL), auction.StartingPrice, current,
		auction.StartTime.UnixMilli(), auction.EndTime.UnixMilli(),
		string(auction.Status), string(tagsJSON), toNullString(auction.WinningBidID), updated)
	if err != nil {
		return "", unavailable("create auction", err)
	}

	auction.ID = id
	return id, nil
}

// ListAuctions returns up to limit auctions, newest first
func (s *Store) ListAuctions(ctx context.Context, filter repository.ListFilter, limit int) ([]model.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	args := []any{}

	if filter.Status != nil {
		floor, ceil := lifecycle.Bounds(filter.Now)
		switch *filter.Status {
		case model.StatusScheduled:
			query += ` WHERE start_time > ?`
			args = append(args, floor.UnixMilli())
		case model.StatusLive:
			query += ` WHERE start_time <= ? AND end_time >= ?`
			args = append(args, floor.UnixMilli(), ceil.UnixMilli())
		case model.StatusEnded:
			query += ` WHERE end_time < ?`
			args = append(args, ceil.UnixMilli())
		default:
			return nil, fmt.Errorf("list auctions: %w: %q", biddingerrors.ErrInvalidStatus, *filter.Status)
		}
	}

	query += ` ORDER BY seq DESC`
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []auctionRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, unavailable("list auctions", err)
	}

	out := make([]model.Auction, 0, len(rows))
	for _, r := range rows {
		a, err := r.toModel()
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

// GetAuction returns the auction with the given ID
func (s *Store) GetAuction(ctx context.Context, id string) (model.Auction, error) {
	if !utils.IsValidID(id) {
		return model.Auction{}, fmt.Errorf("get auction %q: %w", id, biddingerrors.ErrInvalidAuctionID)
	}

	var row auctionRow
	err := s.db.GetContext(ctx, &row, `SELECT `+auctionColumns+` FROM auctions WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Auction{}, fmt.Errorf("get auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	if err != nil {
		return model.Auction{}, unavailable("get auction", err)
	}
	return row.toModel()
}

// CompareAndSetPrice relies on a single conditional UPDATE; IS compares NULL safely
func (s *Store) CompareAndSetPrice(ctx context.Context, id string, expected *float64, newPrice float64, bidID string, now time.Time) error {
	var want sql.NullFloat64
	if expected != nil {
		want = sql.NullFloat64{Float64: *expected, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE auctions SET current_price = ?, winning_bid_id = ?, updated_at = ? WHERE id = ? AND current_price IS ?`,
		newPrice, bidID, now.UnixMilli(), id, want)
	if err != nil {
		return unavailable("compare and set price", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("compare and set price", err)
	}
	if n == 1 {
		return nil
	}

	var exists int
	if err := s.db.GetContext(ctx, &exists, `SELECT COUNT(*) FROM auctions WHERE id = ?`, id); err != nil {
		return unavailable("compare and set price", err)
	}
	if exists == 0 {
		return fmt.Errorf("compare and set price for auction %s: %w", id, biddingerrors.ErrAuctionNotFound)
	}
	return fmt.Errorf("compare and set price for auction %s: %w", id, biddingerrors.ErrPriceConflict)
}

type bidRow struct {
	ID         string  `db:"id"`
	AuctionID  string  `db:"auction_id"`
	BidderName string  `db:"bidder_name"`
	Amount     float64 `db:"amount"`
	CreatedAt  int64   `db:"created_at"`
	Accepted   bool    `db:"accepted"`
}

const bidColumns = `id, auction_id, bidder_name, amount, created_at, accepted`

func (r bidRow) toModel() model.Bid {
	return model.Bid{
		ID:         r.ID,
		AuctionID:  r.AuctionID,
		BidderName: r.BidderName,
		Amount:     r.Amount,
		CreatedAt:  fromMillis(r.CreatedAt),
		Accepted:   r.Accepted,
	}
}

// InsertBid appends an immutable bid row
func (s *Store) InsertBid(ctx context.Context, bid *model.Bid) (string, error) {
	if bid.ID == "" {
		bid.ID = utils.GenerateID()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO bids(`+bidColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		bid.ID, bid.AuctionID, bid.BidderName, bid.Amount, bid.CreatedAt.UnixMilli(), bid.Accepted)
	if err != nil {
		return "", unavailable("insert bid", err)
	}
	return bid.ID, nil
}

// GetBid returns a single bid by ID
func (s *Store) GetBid(ctx context.Context, bidID string) (model.Bid, error) {
	var row bidRow
	err := s.db.GetContext(ctx, &row, `SELECT `+bidColumns+` FROM bids WHERE id = ?`, bidID)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Bid{}, fmt.Errorf("get bid %s: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	if err != nil {
		return model.Bid{}, unavailable("get bid", err)
	}
	return row.toModel(), nil
}

// MarkAccepted flags the bid as the one that raised the price
func (s *Store) MarkAccepted(ctx context.Context, bidID string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE bids SET accepted = 1 WHERE id = ?`, bidID)
	if err != nil {
		return unavailable("mark bid accepted", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return unavailable("mark bid accepted", err)
	}
	if n == 0 {
		return fmt.Errorf("mark bid %s accepted: %w", bidID, biddingerrors.ErrBidNotFound)
	}
	return nil
}

// TopBids orders by amount and falls back to seq, which follows insertion order
func (s *Store) TopBids(ctx context.Context, auctionID string, n int) ([]model.Bid, error) {
	query := `SELECT ` + bidColumns + ` FROM bids
		WHERE auction_id = ? AND accepted = 1 ORDER BY amount DESC, seq ASC`
	args := []any{auctionID}
	if n > 0 {
		query += ` LIMIT ?`
		args = append(args, n)
	}

	var rows []bidRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, unavailable("top bids", err)
	}

	bids := make([]model.Bid, 0, len(rows))
	for _, r := range rows {
		bids = append(bids, r.toModel())
	}
	return bids, nil
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return unavailable("ping", err)
	}
	return nil
}

// Driver names the backend for diagnostics
func (s *Store) Driver() string { return "sqlite" }

// Collections lists the user tables
func (s *Store) Collections(ctx context.Context) ([]string, error) {
	var names []string
	err := s.db.SelectContext(ctx, &names,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name`)
	if err != nil {
		return nil, unavailable("list tables", err)
	}
	return names, nil
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %v", op, biddingerrors.ErrStorageUnavailable, err)
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
