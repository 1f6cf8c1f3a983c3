// Package settlement is the Auction Completion Engine.  Every path that
// ends an auction, whether a client timer, a curator closing early or the
// reconciliation sweep, funnels through Engine.Complete, which serializes on
// the listing row lock and is idempotent per listing.
package settlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/dispatch"
	"github.com/iliyamo/auction-settlement/internal/fees"
	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/payment"
	"github.com/iliyamo/auction-settlement/internal/repository"
)

// Dispatcher accepts side effects after commit.  Submit must not block.
type Dispatcher interface {
	Submit(t dispatch.Task)
}

// Config holds the engine's timing knobs.
type Config struct {
	TimerGrace     time.Duration
	CaptureTimeout time.Duration
	UnitTimeout    time.Duration
}

func (c Config) withDefaults() Config {
	if c.TimerGrace <= 0 {
		c.TimerGrace = 5 * time.Second
	}
	if c.CaptureTimeout <= 0 {
		c.CaptureTimeout = 15 * time.Second
	}
	if c.UnitTimeout <= 0 {
		c.UnitTimeout = 30 * time.Second
	}
	return c
}

// Actor is the identity a completion runs under.  System is set for the
// reconciliation sweep.
type Actor struct {
	UserID uint64
	System bool
}

// SystemActor is the identity used by scheduled jobs.
func SystemActor() Actor { return Actor{System: true} }

// Outcome is the status reported to the caller.
type Outcome string

const (
	OutcomeSold             Outcome = "sold"
	OutcomeExpired          Outcome = "expired"
	OutcomeAlreadyCompleted Outcome = "already_completed"
)

// TransactionSummary identifies the settlement created for a sold listing.
type TransactionSummary struct {
	ID              uint64
	WinnerID        uint64
	WinnerName      string
	FinalPriceCents int64
}

// Result is the success envelope of Complete.  CurrentStatus is set for
// already_completed; PaymentStatus and Transaction for sold.  Reconciled is
// true when a transaction already existed and only the listing status was
// advanced.
type Result struct {
	Status        Outcome
	CurrentStatus model.ListingStatus
	PaymentStatus model.TransactionStatus
	Transaction   *TransactionSummary
	Reconciled    bool
}

// Engine completes auctions.  It holds no per-listing state; all
// coordination happens through the store's row lock.
type Engine struct {
	store      repository.Store
	gateway    payment.Gateway
	dispatcher Dispatcher
	log        *zap.Logger
	cfg        Config
	now        func() time.Time
}

// NewEngine wires an Engine.  dispatcher may be nil, in which case side
// effects are skipped.
func NewEngine(store repository.Store, gateway payment.Gateway, dispatcher Dispatcher, log *zap.Logger, cfg Config) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{
		store:      store,
		gateway:    gateway,
		dispatcher: dispatcher,
		log:        log.Named("settlement"),
		cfg:        cfg.withDefaults(),
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Complete ends the auction for listingID.  Within one locked unit it
// re-reads the listing, returns already_completed for terminal listings,
// expires listings without a winning bid, and otherwise splits fees,
// captures the winner's hold and records the settlement.  Capture failure
// is recorded as payment_failed and does not stop the sale.  Side effects
// are submitted only after commit.
func (e *Engine) Complete(ctx context.Context, listingID uint64, reason model.CompletionReason, actor Actor) (Result, error) {
	if listingID == 0 {
		return Result{}, ErrInvalidListingID
	}
	if _, err := model.ParseCompletionReason(string(reason)); err != nil {
		return Result{}, ErrInvalidReason
	}

	// The unit must not be cut short by a caller disconnecting between the
	// capture and the commit.
	uctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.cfg.UnitTimeout)
	defer cancel()

	var (
		res     Result
		effects []dispatch.Task
	)
	err := e.store.InTx(uctx, func(ctx context.Context, tx repository.Tx) error {
		res, effects = Result{}, nil

		l, err := tx.LockListing(ctx, listingID)
		if err != nil {
			return err
		}
		if reason == model.ReasonCuratorClosed && (actor.System || actor.UserID != l.SellerID) {
			return ErrNotSeller
		}
		if l.Status.IsTerminal() {
			res = Result{Status: OutcomeAlreadyCompleted, CurrentStatus: l.Status}
			return nil
		}
		if l.Status != model.ListingActive {
			return ErrListingNotActive
		}
		if reason == model.ReasonTimerExpired && e.now().Before(l.AuctionEnd.Add(-e.cfg.TimerGrace)) {
			return &TooEarlyError{EndsAt: l.AuctionEnd}
		}

		bid, err := tx.WinningBid(ctx, l.ID)
		if err != nil {
			return err
		}
		if bid == nil {
			if err := tx.SetListingStatus(ctx, l.ID, model.ListingExpired); err != nil {
				return err
			}
			res = Result{Status: OutcomeExpired}
			effects = expiredEffects(l)
			return nil
		}

		existing, err := tx.TransactionByListing(ctx, l.ID)
		if err != nil {
			return err
		}
		if existing != nil {
			if err := tx.SetListingStatus(ctx, l.ID, model.ListingSold); err != nil {
				return err
			}
			res = Result{
				Status:        OutcomeSold,
				PaymentStatus: existing.Status,
				Transaction:   e.summary(ctx, tx, existing),
				Reconciled:    true,
			}
			return nil
		}

		split, err := fees.CalculateFees(bid.AmountCents, l.StartingPriceCents, l.SellerTier)
		if err != nil {
			return err
		}
		status := e.capture(ctx, l, bid)
		t := &model.Transaction{
			ListingID:           l.ID,
			BuyerID:             bid.BidderID,
			SellerID:            l.SellerID,
			FinalPriceCents:     bid.AmountCents,
			PlatformFeeCents:    split.PlatformFeeCents,
			SellerEarningsCents: split.SellerEarningsCents,
			Status:              status,
			PaymentRef:          bid.HoldRef,
		}
		if err := tx.InsertTransaction(ctx, t); err != nil {
			return err
		}
		if err := tx.SetListingStatus(ctx, l.ID, model.ListingSold); err != nil {
			return err
		}
		res = Result{
			Status:        OutcomeSold,
			PaymentStatus: status,
			Transaction:   e.summary(ctx, tx, t),
		}
		effects = soldEffects(t)
		return nil
	})
	if err != nil {
		err = classify("complete listing "+strconv.FormatUint(listingID, 10), err)
		var transient *TransientError
		var bad *DataError
		switch {
		case errors.As(err, &transient):
			e.log.Error("completion rolled back", zap.Uint64("listing_id", listingID), zap.Error(err))
		case errors.As(err, &bad):
			e.log.Error("listing data prevents settlement", zap.Uint64("listing_id", listingID), zap.Error(err))
		}
		return Result{}, err
	}

	e.log.Info("auction completion",
		zap.Uint64("listing_id", listingID),
		zap.String("reason", string(reason)),
		zap.Bool("system", actor.System),
		zap.String("outcome", string(res.Status)),
		zap.String("payment_status", string(res.PaymentStatus)),
		zap.Bool("reconciled", res.Reconciled))
	e.submit(effects)
	return res, nil
}

// capture converts the winning bid's hold into a charge and returns the
// payment status to record.  It never fails the unit.  A capture for any
// amount other than the winning bid is recorded as payment_failed; the sale
// never settles at a reduced price.  A capture still processing at the
// gateway is recorded as pending_payment and resolved by the gateway's
// payment webhook.
func (e *Engine) capture(ctx context.Context, l *model.Listing, bid *model.Bid) model.TransactionStatus {
	if bid.HoldRef == nil {
		e.log.Warn("winning bid has no payment hold", zap.Uint64("listing_id", l.ID), zap.Uint64("bid_id", bid.ID))
		return model.TxPendingPayment
	}
	cctx, cancel := context.WithTimeout(ctx, e.cfg.CaptureTimeout)
	defer cancel()
	got, err := e.gateway.CapturePreAuthorizedHold(cctx, *bid.HoldRef)
	if err != nil {
		e.log.Warn("hold capture failed",
			zap.Uint64("listing_id", l.ID),
			zap.String("hold_ref", *bid.HoldRef),
			zap.Error(err))
		return model.TxPaymentFailed
	}
	if got.Status == payment.CapturePending {
		return model.TxPendingPayment
	}
	if got.CapturedCents != bid.AmountCents {
		e.log.Error("captured amount differs from winning bid",
			zap.Uint64("listing_id", l.ID),
			zap.String("hold_ref", *bid.HoldRef),
			zap.Int64("bid_cents", bid.AmountCents),
			zap.Int64("captured_cents", got.CapturedCents))
		return model.TxPaymentFailed
	}
	return model.TxPaid
}

func (e *Engine) summary(ctx context.Context, tx repository.Tx, t *model.Transaction) *TransactionSummary {
	s := &TransactionSummary{ID: t.ID, WinnerID: t.BuyerID, FinalPriceCents: t.FinalPriceCents}
	u, err := tx.User(ctx, t.BuyerID)
	if err != nil {
		e.log.Warn("winner lookup failed", zap.Uint64("user_id", t.BuyerID), zap.Error(err))
		return s
	}
	s.WinnerName = u.DisplayName
	return s
}

func (e *Engine) submit(tasks []dispatch.Task) {
	if e.dispatcher == nil {
		return
	}
	for _, t := range tasks {
		e.dispatcher.Submit(t)
	}
}

func expiredEffects(l *model.Listing) []dispatch.Task {
	payload := map[string]string{"listing_id": strconv.FormatUint(l.ID, 10), "title": l.Title}
	return []dispatch.Task{
		dispatch.NewTask(dispatch.KindNotifySeller, l.SellerID, l.ID, dispatch.EventAuctionExpired, payload),
	}
}

func soldEffects(t *model.Transaction) []dispatch.Task {
	payload := map[string]string{
		"listing_id":      strconv.FormatUint(t.ListingID, 10),
		"transaction_id":  strconv.FormatUint(t.ID, 10),
		"final_price":     model.FormatCents(t.FinalPriceCents),
		"seller_earnings": model.FormatCents(t.SellerEarningsCents),
	}
	switch t.Status {
	case model.TxPaid:
		return []dispatch.Task{
			dispatch.NewTask(dispatch.KindNotifySeller, t.SellerID, t.ListingID, dispatch.EventPaymentReceived, payload),
			dispatch.NewTask(dispatch.KindNotifyBuyer, t.BuyerID, t.ListingID, dispatch.EventAuctionWon, payload),
			dispatch.NewTask(dispatch.KindAwardMilestones, t.BuyerID, t.ListingID, "", nil),
			dispatch.NewTask(dispatch.KindAwardMilestones, t.SellerID, t.ListingID, "", nil),
		}
	case model.TxPaymentFailed:
		return []dispatch.Task{
			dispatch.NewTask(dispatch.KindNotifyBuyer, t.BuyerID, t.ListingID, dispatch.EventPaymentFailed, payload),
		}
	case model.TxPendingPayment:
		return []dispatch.Task{
			dispatch.NewTask(dispatch.KindNotifyBuyer, t.BuyerID, t.ListingID, dispatch.EventPaymentRequired, payload),
		}
	case model.TxShipped, model.TxDelivered, model.TxPayoutComplete, model.TxDisputed:
	}
	return nil
}
