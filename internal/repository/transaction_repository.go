package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/auction-settlement/internal/model"
)

// TransactionRepo provides CRUD operations for settlement transactions.
// A transaction is created exactly once per listing by the completion
// engine and afterwards only moves forward through its status values.
type TransactionRepo struct {
	db *sql.DB
}

// NewTransactionRepo returns a new TransactionRepo bound to the given database.
func NewTransactionRepo(db *sql.DB) *TransactionRepo { return &TransactionRepo{db: db} }

const transactionColumns = `id, listing_id, buyer_id, seller_id, final_price_cents, platform_fee_cents,
       seller_earnings_cents, status, payment_ref, transfer_ref, shipped_at, delivered_at,
       created_at, updated_at`

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

func scanTransaction(row rowScanner) (*model.Transaction, error) {
	var (
		t                      model.Transaction
		status                 string
		paymentRef, transfer   sql.NullString
		shippedAt, deliveredAt sql.NullTime
	)
	err := row.Scan(&t.ID, &t.ListingID, &t.BuyerID, &t.SellerID, &t.FinalPriceCents, &t.PlatformFeeCents,
		&t.SellerEarningsCents, &status, &paymentRef, &transfer, &shippedAt, &deliveredAt,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	if t.Status, err = model.ParseTransactionStatus(status); err != nil {
		return nil, fmt.Errorf("transaction %d: %v: %w", t.ID, err, ErrInvalidValue)
	}
	if paymentRef.Valid {
		s := paymentRef.String
		t.PaymentRef = &s
	}
	if transfer.Valid {
		s := transfer.String
		t.TransferRef = &s
	}
	if shippedAt.Valid {
		ts := shippedAt.Time.UTC()
		t.ShippedAt = &ts
	}
	if deliveredAt.Valid {
		ts := deliveredAt.Time.UTC()
		t.DeliveredAt = &ts
	}
	return &t, nil
}

// GetByListing returns the transaction of a listing or ErrTransactionNotFound.
func (r *TransactionRepo) GetByListing(ctx context.Context, listingID uint64) (*model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE listing_id = ?`
	return scanTransaction(r.db.QueryRowContext(ctx, q, listingID))
}

// GetByListingTx is GetByListing inside the caller's transaction.
func (r *TransactionRepo) GetByListingTx(ctx context.Context, tx *sql.Tx, listingID uint64) (*model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE listing_id = ?`
	return scanTransaction(tx.QueryRowContext(ctx, q, listingID))
}

// GetByPaymentRef finds the transaction whose hold/capture reference matches.
func (r *TransactionRepo) GetByPaymentRef(ctx context.Context, paymentRef string) (*model.Transaction, error) {
	q := `SELECT ` + transactionColumns + ` FROM transactions WHERE payment_ref = ? LIMIT 1`
	return scanTransaction(r.db.QueryRowContext(ctx, q, paymentRef))
}

// CreateTx inserts a new transaction within the scope of an existing
// transaction and populates the generated ID and timestamps.  A duplicate
// listing_id is reported as ErrConflict.
func (r *TransactionRepo) CreateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	const q = `INSERT INTO transactions
               (listing_id, buyer_id, seller_id, final_price_cents, platform_fee_cents,
                seller_earnings_cents, status, payment_ref)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.ListingID, t.BuyerID, t.SellerID, t.FinalPriceCents,
		t.PlatformFeeCents, t.SellerEarningsCents, string(t.Status), nullString(t.PaymentRef))
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrConflict
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	t.ID = uint64(id)
	now := time.Now().UTC()
	t.CreatedAt = now
	t.UpdatedAt = now
	return nil
}

// UpdateTx persists the mutable columns of a transaction: status, transfer
// reference and the fulfilment timestamps.
func (r *TransactionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, t *model.Transaction) error {
	const q = `UPDATE transactions
               SET status = ?, transfer_ref = ?, shipped_at = ?, delivered_at = ?, updated_at = UTC_TIMESTAMP()
               WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, string(t.Status), nullString(t.TransferRef),
		nullTime(t.ShippedAt), nullTime(t.DeliveredAt), t.ID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrTransactionNotFound
	}
	return nil
}

// ListStaleShipped returns listing ids whose transaction has been shipped
// at or before cutoff without a delivery confirmation, oldest first.
func (r *TransactionRepo) ListStaleShipped(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	const q = `SELECT listing_id FROM transactions
               WHERE status = ? AND shipped_at IS NOT NULL AND shipped_at <= ?
               ORDER BY shipped_at ASC
               LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(model.TxShipped), cutoff.UTC(), limit)
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

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
