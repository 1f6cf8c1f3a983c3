// Package memory is an in-process repository.Store for tests.  A single
// mutex stands in for the listing row lock: InTx holds it for the whole
// unit, and restores a snapshot when the unit fails.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/repository"
)

type state struct {
	listings map[uint64]model.Listing
	bids     map[uint64][]model.Bid
	txs      map[uint64]model.Transaction
	users    map[uint64]model.User
	nextTxID uint64
}

func (s state) clone() state {
	c := state{
		listings: make(map[uint64]model.Listing, len(s.listings)),
		bids:     make(map[uint64][]model.Bid, len(s.bids)),
		txs:      make(map[uint64]model.Transaction, len(s.txs)),
		users:    make(map[uint64]model.User, len(s.users)),
		nextTxID: s.nextTxID,
	}
	for k, v := range s.listings {
		c.listings[k] = v
	}
	for k, v := range s.bids {
		c.bids[k] = append([]model.Bid(nil), v...)
	}
	for k, v := range s.txs {
		c.txs[k] = v
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	return c
}

// Store implements repository.Store in memory.
type Store struct {
	mu sync.Mutex
	st state

	// FailInsert, when set, is returned by InsertTransaction.
	FailInsert error
	// Locks counts LockListing calls.
	Locks int
}

var _ repository.Store = (*Store)(nil)

// New returns an empty Store.
func New() *Store {
	return &Store{st: state{
		listings: map[uint64]model.Listing{},
		bids:     map[uint64][]model.Bid{},
		txs:      map[uint64]model.Transaction{},
		users:    map[uint64]model.User{},
	}}
}

// PutListing inserts or replaces a listing.
func (s *Store) PutListing(l model.Listing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.listings[l.ID] = l
}

// PutBid appends a bid.
func (s *Store) PutBid(b model.Bid) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.bids[b.ListingID] = append(s.st.bids[b.ListingID], b)
}

// PutUser inserts or replaces a user.
func (s *Store) PutUser(u model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.users[u.ID] = u
}

// PutTransaction inserts or replaces the transaction of a listing.
func (s *Store) PutTransaction(t model.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t.ID == 0 {
		s.st.nextTxID++
		t.ID = s.st.nextTxID
	}
	s.st.txs[t.ListingID] = t
}

// ListingState returns the stored listing.
func (s *Store) ListingState(id uint64) (model.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.listings[id]
	return l, ok
}

// TransactionState returns the stored transaction of a listing.
func (s *Store) TransactionState(listingID uint64) (model.Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.txs[listingID]
	return t, ok
}

// TransactionCount returns the number of stored transactions.
func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.st.txs)
}

func (s *Store) InTx(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return err
	}
	snapshot := s.st.clone()
	if err := fn(ctx, &memTx{s: s}); err != nil {
		s.st = snapshot
		return err
	}
	return nil
}

func (s *Store) Listing(_ context.Context, id uint64) (*model.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.st.listings[id]
	if !ok {
		return nil, repository.ErrListingNotFound
	}
	return &l, nil
}

func (s *Store) TransactionByListing(_ context.Context, listingID uint64) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.st.txs[listingID]
	if !ok {
		return nil, repository.ErrTransactionNotFound
	}
	return &t, nil
}

func (s *Store) TransactionByPaymentRef(_ context.Context, ref string) (*model.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.st.txs {
		if t.PaymentRef != nil && *t.PaymentRef == ref {
			t := t
			return &t, nil
		}
	}
	return nil, repository.ErrTransactionNotFound
}

func (s *Store) OverdueListings(_ context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var due []model.Listing
	for _, l := range s.st.listings {
		if l.Status == model.ListingActive && !l.AuctionEnd.After(cutoff) {
			due = append(due, l)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].AuctionEnd.Before(due[j].AuctionEnd) })
	ids := make([]uint64, 0, len(due))
	for i := 0; i < len(due) && i < limit; i++ {
		ids = append(ids, due[i].ID)
	}
	return ids, nil
}

func (s *Store) StaleShipped(_ context.Context, cutoff time.Time, limit int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var stale []model.Transaction
	for _, t := range s.st.txs {
		if t.Status == model.TxShipped && t.ShippedAt != nil && !t.ShippedAt.After(cutoff) {
			stale = append(stale, t)
		}
	}
	sort.Slice(stale, func(i, j int) bool { return stale[i].ShippedAt.Before(*stale[j].ShippedAt) })
	ids := make([]uint64, 0, len(stale))
	for i := 0; i < len(stale) && i < limit; i++ {
		ids = append(ids, stale[i].ListingID)
	}
	return ids, nil
}

func (s *Store) User(_ context.Context, id uint64) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.st.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}

// memTx runs with Store.mu held.
type memTx struct {
	s *Store
}

func (t *memTx) LockListing(_ context.Context, id uint64) (*model.Listing, error) {
	t.s.Locks++
	l, ok := t.s.st.listings[id]
	if !ok {
		return nil, repository.ErrListingNotFound
	}
	return &l, nil
}

func (t *memTx) SetListingStatus(_ context.Context, id uint64, status model.ListingStatus) error {
	l, ok := t.s.st.listings[id]
	if !ok {
		return repository.ErrListingNotFound
	}
	l.Status = status
	t.s.st.listings[id] = l
	return nil
}

func (t *memTx) WinningBid(_ context.Context, listingID uint64) (*model.Bid, error) {
	for _, b := range t.s.st.bids[listingID] {
		if b.IsWinning {
			b := b
			return &b, nil
		}
	}
	return nil, nil
}

func (t *memTx) TransactionByListing(_ context.Context, listingID uint64) (*model.Transaction, error) {
	tr, ok := t.s.st.txs[listingID]
	if !ok {
		return nil, nil
	}
	return &tr, nil
}

func (t *memTx) InsertTransaction(_ context.Context, tr *model.Transaction) error {
	if t.s.FailInsert != nil {
		return t.s.FailInsert
	}
	if _, exists := t.s.st.txs[tr.ListingID]; exists {
		return repository.ErrConflict
	}
	t.s.st.nextTxID++
	tr.ID = t.s.st.nextTxID
	now := time.Now().UTC()
	tr.CreatedAt, tr.UpdatedAt = now, now
	t.s.st.txs[tr.ListingID] = *tr
	return nil
}

func (t *memTx) UpdateTransaction(_ context.Context, tr *model.Transaction) error {
	cur, ok := t.s.st.txs[tr.ListingID]
	if !ok || cur.ID != tr.ID {
		return repository.ErrTransactionNotFound
	}
	tr.UpdatedAt = time.Now().UTC()
	t.s.st.txs[tr.ListingID] = *tr
	return nil
}

func (t *memTx) User(_ context.Context, id uint64) (*model.User, error) {
	u, ok := t.s.st.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	return &u, nil
}
