package settlement

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/auction-settlement/internal/dispatch"
	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/payment/paymenttest"
	"github.com/iliyamo/auction-settlement/internal/repository/memory"
)

const (
	sellerID uint64 = 7
	buyerID  uint64 = 42
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type recordingDispatcher struct {
	mu    sync.Mutex
	tasks []dispatch.Task
}

func (d *recordingDispatcher) Submit(t dispatch.Task) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.tasks = append(d.tasks, t)
}

func (d *recordingDispatcher) Tasks() []dispatch.Task {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]dispatch.Task(nil), d.tasks...)
}

type fixture struct {
	store   *memory.Store
	gateway *paymenttest.Gateway
	disp    *recordingDispatcher
	engine  *Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		store:   memory.New(),
		gateway: paymenttest.New(nil),
		disp:    &recordingDispatcher{},
	}
	f.engine = NewEngine(f.store, f.gateway, f.disp, nil, Config{})
	f.engine.now = func() time.Time { return baseTime }
	f.store.PutUser(model.User{ID: sellerID, DisplayName: "Sam Seller", Role: model.RoleCurator})
	f.store.PutUser(model.User{ID: buyerID, DisplayName: "Bea Buyer", Role: model.RoleBuyer})
	return f
}

// activeListing stores an active listing that ended a minute before baseTime.
func (f *fixture) activeListing(id uint64, tier model.SellerTier) model.Listing {
	l := model.Listing{
		ID:                 id,
		SellerID:           sellerID,
		SellerTier:         tier,
		Title:              fmt.Sprintf("Lot %d", id),
		StartingPriceCents: 10000,
		AuctionEnd:         baseTime.Add(-time.Minute),
		Status:             model.ListingActive,
	}
	f.store.PutListing(l)
	return l
}

// winningBid stores a winning bid backed by a hold of the same amount.
func (f *fixture) winningBid(listingID uint64, amount int64, holdRef string) {
	b := model.Bid{ID: listingID * 100, ListingID: listingID, BidderID: buyerID, AmountCents: amount, IsWinning: true}
	if holdRef != "" {
		b.HoldRef = &holdRef
		f.gateway.Holds[holdRef] = amount
	}
	f.store.PutBid(b)
}

func kinds(tasks []dispatch.Task) map[dispatch.Kind]int {
	out := map[dispatch.Kind]int{}
	for _, t := range tasks {
		out[t.Kind]++
	}
	return out
}
