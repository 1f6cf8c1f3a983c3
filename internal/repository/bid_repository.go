package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/auction-settlement/internal/model"
)

// BidRepo provides read access to the bids table.  Bids are written by the
// bidding service; settlement only reads the winning row.
type BidRepo struct {
	db *sql.DB
}

// NewBidRepo returns a new BidRepo bound to the given database.
func NewBidRepo(db *sql.DB) *BidRepo { return &BidRepo{db: db} }

// WinningBidTx returns the bid flagged is_winning for the listing, or nil
// when the listing received no bids.  The caller must hold the listing lock.
func (r *BidRepo) WinningBidTx(ctx context.Context, tx *sql.Tx, listingID uint64) (*model.Bid, error) {
	const q = `SELECT id, listing_id, bidder_id, amount_cents, is_winning, hold_ref, created_at
               FROM bids
               WHERE listing_id = ? AND is_winning = 1
               ORDER BY amount_cents DESC
               LIMIT 1`
	var (
		b    model.Bid
		hold sql.NullString
	)
	err := tx.QueryRowContext(ctx, q, listingID).Scan(
		&b.ID, &b.ListingID, &b.BidderID, &b.AmountCents, &b.IsWinning, &hold, &b.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if hold.Valid && hold.String != "" {
		h := hold.String
		b.HoldRef = &h
	}
	return &b, nil
}
