package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/auction-settlement/internal/model"
)

// Tx is the set of operations available while a listing row is locked.
// Implementations must run every call on the same underlying database
// transaction.  WinningBid and TransactionByListing return (nil, nil) when
// nothing exists.
type Tx interface {
	LockListing(ctx context.Context, listingID uint64) (*model.Listing, error)
	SetListingStatus(ctx context.Context, listingID uint64, status model.ListingStatus) error
	WinningBid(ctx context.Context, listingID uint64) (*model.Bid, error)
	TransactionByListing(ctx context.Context, listingID uint64) (*model.Transaction, error)
	InsertTransaction(ctx context.Context, t *model.Transaction) error
	UpdateTransaction(ctx context.Context, t *model.Transaction) error
	User(ctx context.Context, userID uint64) (*model.User, error)
}

// Store is the Settlement Transaction Store.  InTx runs fn inside a single
// database transaction and commits only when fn returns nil; the
// transaction is rolled back on every other exit path.  The read methods
// run outside any lock.
type Store interface {
	InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Listing(ctx context.Context, listingID uint64) (*model.Listing, error)
	TransactionByListing(ctx context.Context, listingID uint64) (*model.Transaction, error)
	TransactionByPaymentRef(ctx context.Context, paymentRef string) (*model.Transaction, error)
	OverdueListings(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	StaleShipped(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error)
	User(ctx context.Context, userID uint64) (*model.User, error)
}

// SQLStore implements Store on MySQL through the individual repositories.
type SQLStore struct {
	db           *sql.DB
	Listings     *ListingRepo
	Bids         *BidRepo
	Transactions *TransactionRepo
	Users        *UserRepo
}

// NewSQLStore wires the repositories around one *sql.DB.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{
		db:           db,
		Listings:     NewListingRepo(db),
		Bids:         NewBidRepo(db),
		Transactions: NewTransactionRepo(db),
		Users:        NewUserRepo(db),
	}
}

// InTx begins a READ COMMITTED transaction so reads issued after the
// listing lock observe rows committed by the previous lock holder.
func (s *SQLStore) InTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(ctx, &sqlTx{store: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SQLStore) Listing(ctx context.Context, listingID uint64) (*model.Listing, error) {
	return s.Listings.GetByID(ctx, listingID)
}

func (s *SQLStore) TransactionByListing(ctx context.Context, listingID uint64) (*model.Transaction, error) {
	return s.Transactions.GetByListing(ctx, listingID)
}

func (s *SQLStore) TransactionByPaymentRef(ctx context.Context, paymentRef string) (*model.Transaction, error) {
	return s.Transactions.GetByPaymentRef(ctx, paymentRef)
}

func (s *SQLStore) OverdueListings(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	return s.Listings.ListOverdue(ctx, cutoff, limit)
}

func (s *SQLStore) StaleShipped(ctx context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	return s.Transactions.ListStaleShipped(ctx, cutoff, limit)
}

func (s *SQLStore) User(ctx context.Context, userID uint64) (*model.User, error) {
	return s.Users.GetByID(ctx, userID)
}

// sqlTx adapts the repositories' ...Tx methods to the Tx interface.
type sqlTx struct {
	store *SQLStore
	tx    *sql.Tx
}

func (t *sqlTx) LockListing(ctx context.Context, listingID uint64) (*model.Listing, error) {
	return t.store.Listings.GetForUpdateTx(ctx, t.tx, listingID)
}

func (t *sqlTx) SetListingStatus(ctx context.Context, listingID uint64, status model.ListingStatus) error {
	return t.store.Listings.UpdateStatusTx(ctx, t.tx, listingID, status)
}

func (t *sqlTx) WinningBid(ctx context.Context, listingID uint64) (*model.Bid, error) {
	return t.store.Bids.WinningBidTx(ctx, t.tx, listingID)
}

func (t *sqlTx) TransactionByListing(ctx context.Context, listingID uint64) (*model.Transaction, error) {
	tr, err := t.store.Transactions.GetByListingTx(ctx, t.tx, listingID)
	if err == ErrTransactionNotFound {
		return nil, nil
	}
	return tr, err
}

func (t *sqlTx) InsertTransaction(ctx context.Context, tr *model.Transaction) error {
	return t.store.Transactions.CreateTx(ctx, t.tx, tr)
}

func (t *sqlTx) UpdateTransaction(ctx context.Context, tr *model.Transaction) error {
	return t.store.Transactions.UpdateTx(ctx, t.tx, tr)
}

func (t *sqlTx) User(ctx context.Context, userID uint64) (*model.User, error) {
	return t.store.Users.GetByIDTx(ctx, t.tx, userID)
}
