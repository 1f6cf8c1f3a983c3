package sweep

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/iliyamo/auction-settlement/internal/lease"
	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/payment/paymenttest"
	"github.com/iliyamo/auction-settlement/internal/repository/memory"
	"github.com/iliyamo/auction-settlement/internal/settlement"
)

const (
	sellerID uint64 = 7
	buyerID  uint64 = 42
)

func seedListing(store *memory.Store, gw *paymenttest.Gateway, id uint64, end time.Time, bid int64) {
	store.PutListing(model.Listing{
		ID:                 id,
		SellerID:           sellerID,
		SellerTier:         model.TierFree,
		StartingPriceCents: 100,
		AuctionEnd:         end,
		Status:             model.ListingActive,
	})
	if bid > 0 {
		ref := "pi_" + strconv.FormatUint(id, 10)
		gw.Holds[ref] = bid
		store.PutBid(model.Bid{ID: id, ListingID: id, BidderID: buyerID, AmountCents: bid, IsWinning: true, HoldRef: &ref})
	}
}

func TestAuctionSweepCounts(t *testing.T) {
	store := memory.New()
	gw := paymenttest.New(nil)
	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	now := time.Now().UTC()

	seedListing(store, gw, 1, now.Add(-2*time.Hour), 50000)
	seedListing(store, gw, 2, now.Add(-time.Hour), 0)
	seedListing(store, gw, 3, now.Add(-time.Minute), 9000) // inside the sweep grace
	seedListing(store, gw, 4, now.Add(-3*time.Hour), 0)
	l4, _ := store.ListingState(4)
	l4.Status = model.ListingCancelled
	store.PutListing(l4)

	sw := NewAuctionSweeper(store, engine, nil, nil, Config{})
	rep, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 2 || rep.SettledWithWinner != 1 || rep.SettledWithoutWinner != 1 || len(rep.Errors) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if l, _ := store.ListingState(3); l.Status != model.ListingActive {
		t.Fatalf("listing inside grace swept: %s", l.Status)
	}

	rep, err = sw.Run(context.Background())
	if err != nil || rep.Processed != 0 {
		t.Fatalf("second run = %+v, %v", rep, err)
	}
}

type flakyCompleter struct {
	inner Completer
	fail  uint64
}

func (f flakyCompleter) Complete(ctx context.Context, id uint64, reason model.CompletionReason, actor settlement.Actor) (settlement.Result, error) {
	if id == f.fail {
		return settlement.Result{}, &settlement.TransientError{Op: "complete", Err: errors.New("deadlock found")}
	}
	return f.inner.Complete(ctx, id, reason, actor)
}

func TestAuctionSweepContinuesPastFailures(t *testing.T) {
	store := memory.New()
	gw := paymenttest.New(nil)
	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	now := time.Now().UTC()
	for id := uint64(1); id <= 3; id++ {
		seedListing(store, gw, id, now.Add(-time.Duration(10-id)*time.Hour), 0)
	}

	sw := NewAuctionSweeper(store, flakyCompleter{inner: engine, fail: 2}, nil, nil, Config{})
	rep, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 3 || rep.SettledWithoutWinner != 2 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.Errors) != 1 || rep.Errors[0].ListingID != 2 {
		t.Fatalf("errors = %+v", rep.Errors)
	}
}

func TestAuctionSweepSeparatesBadData(t *testing.T) {
	store := memory.New()
	gw := paymenttest.New(nil)
	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	now := time.Now().UTC()
	seedListing(store, gw, 1, now.Add(-2*time.Hour), 50000)
	seedListing(store, gw, 2, now.Add(-time.Hour), 50)

	sw := NewAuctionSweeper(store, engine, nil, nil, Config{})
	rep, err := sw.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.SettledWithWinner != 1 || len(rep.Errors) != 0 {
		t.Fatalf("report = %+v", rep)
	}
	if len(rep.NeedsRepair) != 1 || rep.NeedsRepair[0].ListingID != 2 {
		t.Fatalf("needs repair = %+v", rep.NeedsRepair)
	}
}

func TestAuctionSweepRacesClient(t *testing.T) {
	store := memory.New()
	gw := paymenttest.New(nil)
	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	seedListing(store, gw, 1, time.Now().UTC().Add(-10*time.Minute), 50000)
	sw := NewAuctionSweeper(store, engine, nil, nil, Config{})

	var (
		wg     sync.WaitGroup
		rep    Report
		client settlement.Result
		errs   [2]error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		rep, errs[0] = sw.Run(context.Background())
	}()
	go func() {
		defer wg.Done()
		client, errs[1] = engine.Complete(context.Background(), 1, model.ReasonTimerExpired, settlement.Actor{UserID: buyerID})
	}()
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			t.Fatalf("err = %v", err)
		}
	}
	if store.TransactionCount() != 1 {
		t.Fatalf("transactions = %d, want 1", store.TransactionCount())
	}
	if l, _ := store.ListingState(1); l.Status != model.ListingSold {
		t.Fatalf("listing status = %s", l.Status)
	}
	sold := rep.SettledWithWinner
	if client.Status == settlement.OutcomeSold {
		sold++
	}
	if sold != 1 {
		t.Fatalf("sold by both paths: report=%+v client=%+v", rep, client)
	}
}

func TestAuctionSweepSkipsWhenLeaseHeld(t *testing.T) {
	store := memory.New()
	gw := paymenttest.New(nil)
	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	seedListing(store, gw, 1, time.Now().UTC().Add(-time.Hour), 0)

	locker := lease.NewLocalLocker()
	release, ok, _ := locker.Acquire(context.Background(), auctionLeaseKey, time.Minute)
	if !ok {
		t.Fatal("could not take lease")
	}
	sw := NewAuctionSweeper(store, engine, locker, nil, Config{})

	rep, err := sw.Run(context.Background())
	if err != nil || !rep.Skipped || rep.Processed != 0 {
		t.Fatalf("held lease: %+v, %v", rep, err)
	}

	_ = release(context.Background())
	rep, err = sw.Run(context.Background())
	if err != nil || rep.Skipped || rep.Processed != 1 {
		t.Fatalf("free lease: %+v, %v", rep, err)
	}
}

func TestAuctionSweepStopsAtBudget(t *testing.T) {
	store := memory.New()
	gw := paymenttest.New(nil)
	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	now := time.Now().UTC()
	for id := uint64(1); id <= 3; id++ {
		seedListing(store, gw, id, now.Add(-time.Hour), 0)
	}
	sw := NewAuctionSweeper(store, engine, nil, nil, Config{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rep, err := sw.Run(ctx)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if rep.Processed != 0 || rep.Remaining != 3 {
		t.Fatalf("report = %+v", rep)
	}
	if l, _ := store.ListingState(1); l.Status != model.ListingActive {
		t.Fatalf("listing status = %s", l.Status)
	}
}
