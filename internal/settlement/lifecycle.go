package settlement

import (
	"context"
	"errors"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/payment"
	"github.com/iliyamo/auction-settlement/internal/repository"
)

// Post-settlement transitions.  They run under the same listing lock as
// Complete so that webhook, sweep and payout writers never interleave on a
// transaction row.

// AutoConfirm force-advances a shipped transaction to delivered when it was
// shipped at or before cutoff.  It reports whether the row changed.
func (e *Engine) AutoConfirm(ctx context.Context, listingID uint64, cutoff time.Time) (bool, error) {
	changed := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		changed = false
		if _, err := tx.LockListing(ctx, listingID); err != nil {
			return err
		}
		t, err := tx.TransactionByListing(ctx, listingID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTransactionNotFound
		}
		if t.Status != model.TxShipped || t.ShippedAt == nil || t.ShippedAt.After(cutoff) {
			return nil
		}
		now := e.now()
		t.Status = model.TxDelivered
		t.DeliveredAt = &now
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, classify("auto-confirm listing "+strconv.FormatUint(listingID, 10), err)
	}
	if changed {
		e.log.Info("transaction auto-confirmed as delivered", zap.Uint64("listing_id", listingID))
	}
	return changed, nil
}

// PayoutResult reports the transfer made (or found) for a listing.
type PayoutResult struct {
	TransferRef string
	AlreadyPaid bool
}

// Payout transfers the seller's earnings for a delivered transaction and
// marks it payout_complete.  A transaction that already carries a transfer
// reference is returned unchanged.
func (e *Engine) Payout(ctx context.Context, listingID uint64) (PayoutResult, error) {
	var out PayoutResult
	err := e.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		out = PayoutResult{}
		if _, err := tx.LockListing(ctx, listingID); err != nil {
			return err
		}
		t, err := tx.TransactionByListing(ctx, listingID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTransactionNotFound
		}
		if t.TransferRef != nil {
			out = PayoutResult{TransferRef: *t.TransferRef, AlreadyPaid: true}
			return nil
		}
		if !t.Status.CanTransitionTo(model.TxPayoutComplete) {
			return ErrInvalidTransition
		}
		seller, err := tx.User(ctx, t.SellerID)
		if err != nil {
			return err
		}
		if seller.PayoutAccountRef == nil {
			return ErrNoPayoutAccount
		}
		pctx, cancel := context.WithTimeout(ctx, e.cfg.CaptureTimeout)
		defer cancel()
		tr, err := e.gateway.TransferToSeller(pctx, t.SellerEarningsCents, *seller.PayoutAccountRef, map[string]string{
			"listing_id":     strconv.FormatUint(t.ListingID, 10),
			"transaction_id": strconv.FormatUint(t.ID, 10),
		})
		if err != nil {
			return err
		}
		t.TransferRef = &tr.TransferID
		t.Status = model.TxPayoutComplete
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		out.TransferRef = tr.TransferID
		return nil
	})
	if err != nil {
		return PayoutResult{}, classify("payout listing "+strconv.FormatUint(listingID, 10), err)
	}
	if !out.AlreadyPaid {
		e.log.Info("seller payout executed", zap.Uint64("listing_id", listingID), zap.String("transfer_ref", out.TransferRef))
	}
	return out, nil
}

// ApplyGatewayEvent applies a verified webhook event.  It reports whether a
// transaction changed.  Events for unknown payments are ignored.
func (e *Engine) ApplyGatewayEvent(ctx context.Context, ev payment.Event) (bool, error) {
	switch ev.Type {
	case payment.EventPaymentSucceeded, payment.EventPaymentFailed:
		if ev.PaymentRef == "" {
			return false, nil
		}
		t, err := e.store.TransactionByPaymentRef(ctx, ev.PaymentRef)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			return false, nil
		}
		if err != nil {
			return false, classify("lookup payment "+ev.PaymentRef, err)
		}
		return e.resolvePayment(ctx, t.ListingID, ev)
	case payment.EventDisputeCreated:
		if ev.PaymentRef == "" {
			return false, nil
		}
		t, err := e.store.TransactionByPaymentRef(ctx, ev.PaymentRef)
		if errors.Is(err, repository.ErrTransactionNotFound) {
			e.log.Warn("dispute for unknown payment", zap.String("payment_ref", ev.PaymentRef), zap.String("event_id", ev.ID))
			return false, nil
		}
		if err != nil {
			return false, classify("lookup payment "+ev.PaymentRef, err)
		}
		return e.markDisputed(ctx, t.ListingID, ev.ID)
	case payment.EventTransferCreated:
		if ev.ListingID == 0 || ev.TransferRef == "" {
			return false, nil
		}
		return e.recordTransfer(ctx, ev.ListingID, ev.TransferRef)
	case payment.EventIgnored:
	}
	return false, nil
}

// resolvePayment settles a capture the gateway reported as still
// processing.  A success for a different amount than the sale is recorded
// as payment_failed, the same rule capture applies.
func (e *Engine) resolvePayment(ctx context.Context, listingID uint64, ev payment.Event) (bool, error) {
	changed := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		changed = false
		if _, err := tx.LockListing(ctx, listingID); err != nil {
			return err
		}
		t, err := tx.TransactionByListing(ctx, listingID)
		if err != nil {
			return err
		}
		if t == nil || t.Status != model.TxPendingPayment {
			return nil
		}
		next := model.TxPaymentFailed
		if ev.Type == payment.EventPaymentSucceeded {
			next = model.TxPaid
			if ev.AmountCents != t.FinalPriceCents {
				e.log.Error("captured amount differs from sale",
					zap.Uint64("listing_id", listingID),
					zap.Int64("final_price_cents", t.FinalPriceCents),
					zap.Int64("captured_cents", ev.AmountCents),
					zap.String("event_id", ev.ID))
				next = model.TxPaymentFailed
			}
		}
		t.Status = next
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, classify("resolve payment listing "+strconv.FormatUint(listingID, 10), err)
	}
	return changed, nil
}

func (e *Engine) markDisputed(ctx context.Context, listingID uint64, eventID string) (bool, error) {
	changed := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		changed = false
		if _, err := tx.LockListing(ctx, listingID); err != nil {
			return err
		}
		t, err := tx.TransactionByListing(ctx, listingID)
		if err != nil {
			return err
		}
		if t == nil {
			return ErrTransactionNotFound
		}
		if !t.Status.CanTransitionTo(model.TxDisputed) {
			if t.Status != model.TxDisputed {
				e.log.Warn("dispute ignored for transaction state",
					zap.Uint64("listing_id", listingID),
					zap.String("status", string(t.Status)),
					zap.String("event_id", eventID))
			}
			return nil
		}
		t.Status = model.TxDisputed
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, classify("dispute listing "+strconv.FormatUint(listingID, 10), err)
	}
	return changed, nil
}

func (e *Engine) recordTransfer(ctx context.Context, listingID uint64, transferRef string) (bool, error) {
	changed := false
	err := e.store.InTx(ctx, func(ctx context.Context, tx repository.Tx) error {
		changed = false
		if _, err := tx.LockListing(ctx, listingID); err != nil {
			return err
		}
		t, err := tx.TransactionByListing(ctx, listingID)
		if err != nil {
			return err
		}
		if t == nil || t.TransferRef != nil {
			return nil
		}
		t.TransferRef = &transferRef
		if t.Status.CanTransitionTo(model.TxPayoutComplete) {
			t.Status = model.TxPayoutComplete
		}
		if err := tx.UpdateTransaction(ctx, t); err != nil {
			return err
		}
		changed = true
		return nil
	})
	if err != nil {
		return false, classify("record transfer listing "+strconv.FormatUint(listingID, 10), err)
	}
	return changed, nil
}
