package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/auction-settlement/internal/model"
)

// ListingRepo provides access to the listings table.  All timestamps are
// stored and compared in UTC.
type ListingRepo struct {
	db *sql.DB
}

// NewListingRepo returns a new ListingRepo bound to the given database.
func NewListingRepo(db *sql.DB) *ListingRepo { return &ListingRepo{db: db} }

const listingColumns = `id, seller_id, seller_tier, title, starting_price_cents, current_high_bid_cents,
       high_bidder_id, auction_end, extensions_used, status, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanListing(row rowScanner) (*model.Listing, error) {
	var (
		l        model.Listing
		tier     string
		status   string
		bidderID sql.NullInt64
	)
	err := row.Scan(&l.ID, &l.SellerID, &tier, &l.Title, &l.StartingPriceCents, &l.CurrentHighBidCents,
		&bidderID, &l.AuctionEnd, &l.ExtensionsUsed, &status, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrListingNotFound
		}
		return nil, err
	}
	if l.SellerTier, err = model.ParseSellerTier(tier); err != nil {
		return nil, fmt.Errorf("listing %d: %v: %w", l.ID, err, ErrInvalidValue)
	}
	if l.Status, err = model.ParseListingStatus(status); err != nil {
		return nil, fmt.Errorf("listing %d: %v: %w", l.ID, err, ErrInvalidValue)
	}
	if bidderID.Valid {
		id := uint64(bidderID.Int64)
		l.HighBidderID = &id
	}
	l.AuctionEnd = l.AuctionEnd.UTC()
	return &l, nil
}

// GetByID reads a listing without locking it.  Returns ErrListingNotFound
// when the row does not exist.
func (r *ListingRepo) GetByID(ctx context.Context, id uint64) (*model.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE id = ?`
	return scanListing(r.db.QueryRowContext(ctx, q, id))
}

// GetForUpdateTx reads a listing and takes an exclusive row lock that is
// held until the caller's transaction ends.  Every completion attempt for
// the same listing queues behind this lock.
func (r *ListingRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Listing, error) {
	q := `SELECT ` + listingColumns + ` FROM listings WHERE id = ? FOR UPDATE`
	return scanListing(tx.QueryRowContext(ctx, q, id))
}

// UpdateStatusTx sets the listing status within the caller's transaction.
func (r *ListingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, status model.ListingStatus) error {
	res, err := tx.ExecContext(ctx, `UPDATE listings SET status = ?, updated_at = UTC_TIMESTAMP() WHERE id = ?`, string(status), id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrListingNotFound
	}
	return nil
}

// ListOverdue returns ids of active listings whose auction ended at or
// before cutoff, oldest first, at most limit rows.
func (r *ListingRepo) ListOverdue(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const q = `SELECT id FROM listings
               WHERE status = ? AND auction_end <= ?
               ORDER BY auction_end ASC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(model.ListingActive), cutoff.UTC(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	ids := make([]uint64, 0, limit)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
