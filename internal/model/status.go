package model

import "fmt"

// ListingStatus is the lifecycle state of an auction listing.  The string
// values are persisted in listings.status and read by collaborators outside
// the settlement engine, so they must stay stable.
type ListingStatus string

const (
	ListingDraft     ListingStatus = "draft"
	ListingActive    ListingStatus = "active"
	ListingSold      ListingStatus = "sold"
	ListingExpired   ListingStatus = "expired"
	ListingCancelled ListingStatus = "cancelled"
)

// ParseListingStatus rejects any value that is not a known listing status.
func ParseListingStatus(s string) (ListingStatus, error) {
	switch st := ListingStatus(s); st {
	case ListingDraft, ListingActive, ListingSold, ListingExpired, ListingCancelled:
		return st, nil
	}
	return "", fmt.Errorf("unknown listing status %q", s)
}

// IsTerminal reports whether the listing can no longer change state.
func (s ListingStatus) IsTerminal() bool {
	switch s {
	case ListingSold, ListingExpired, ListingCancelled:
		return true
	case ListingDraft, ListingActive:
		return false
	}
	return false
}

// TransactionStatus is the state of a settlement transaction.  The same
// values are written by the shipping, delivery and dispute flows.
type TransactionStatus string

const (
	TxPendingPayment TransactionStatus = "pending_payment"
	TxPaid           TransactionStatus = "paid"
	TxPaymentFailed  TransactionStatus = "payment_failed"
	TxShipped        TransactionStatus = "shipped"
	TxDelivered      TransactionStatus = "delivered"
	TxPayoutComplete TransactionStatus = "payout_complete"
	TxDisputed       TransactionStatus = "disputed"
)

// ParseTransactionStatus rejects any value that is not a known transaction status.
func ParseTransactionStatus(s string) (TransactionStatus, error) {
	switch st := TransactionStatus(s); st {
	case TxPendingPayment, TxPaid, TxPaymentFailed, TxShipped, TxDelivered, TxPayoutComplete, TxDisputed:
		return st, nil
	}
	return "", fmt.Errorf("unknown transaction status %q", s)
}

// CanTransitionTo reports whether moving from s to next is a legal step.
// Progression is forward only; disputed may be entered from paid, shipped
// or delivered.  A payment_failed transaction may still become paid once the
// buyer settles out of band.
func (s TransactionStatus) CanTransitionTo(next TransactionStatus) bool {
	switch s {
	case TxPendingPayment:
		return next == TxPaid || next == TxPaymentFailed
	case TxPaymentFailed:
		return next == TxPaid
	case TxPaid:
		return next == TxShipped || next == TxDisputed
	case TxShipped:
		return next == TxDelivered || next == TxDisputed
	case TxDelivered:
		return next == TxPayoutComplete || next == TxDisputed
	case TxPayoutComplete, TxDisputed:
		return false
	}
	return false
}

// SellerTier is the curator's subscription level.  It selects the platform
// fee percentage.
type SellerTier string

const (
	TierFree    SellerTier = "free"
	TierStarter SellerTier = "starter"
	TierPro     SellerTier = "pro"
	TierPremium SellerTier = "premium"
)

// ParseSellerTier rejects unknown tiers.
func ParseSellerTier(s string) (SellerTier, error) {
	switch t := SellerTier(s); t {
	case TierFree, TierStarter, TierPro, TierPremium:
		return t, nil
	}
	return "", fmt.Errorf("unknown seller tier %q", s)
}

// CompletionReason says why an auction completion was requested.
type CompletionReason string

const (
	ReasonTimerExpired  CompletionReason = "timer_expired"
	ReasonCuratorClosed CompletionReason = "curator_closed"
)

// ParseCompletionReason rejects anything other than the two known reasons.
func ParseCompletionReason(s string) (CompletionReason, error) {
	switch r := CompletionReason(s); r {
	case ReasonTimerExpired, ReasonCuratorClosed:
		return r, nil
	}
	return "", fmt.Errorf("unknown completion reason %q", s)
}
