// Package payment is the boundary to the external payment gateway.  The
// settlement engine only ever captures holds, transfers seller earnings and
// verifies webhook signatures through the Gateway interface.
package payment

import (
	"context"
	"errors"
)

// ErrCaptureFailed wraps declines, expired holds and gateway errors raised
// while capturing a hold.
var ErrCaptureFailed = errors.New("payment capture failed")

// ErrInvalidSignature is returned when a webhook payload cannot be verified.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// CaptureStatus is the gateway's view of a capture attempt.
type CaptureStatus string

const (
	CaptureSucceeded CaptureStatus = "succeeded"
	CapturePending   CaptureStatus = "pending"
)

// CaptureResult describes a captured hold.
type CaptureResult struct {
	Status        CaptureStatus
	CapturedCents int64
	Currency      string
}

// TransferResult identifies a payout to a seller account.
type TransferResult struct {
	TransferID string
}

// EventType enumerates the webhook events settlement reacts to.
type EventType string

const (
	EventPaymentSucceeded EventType = "payment.succeeded"
	EventPaymentFailed    EventType = "payment.failed"
	EventDisputeCreated   EventType = "dispute.created"
	EventTransferCreated  EventType = "transfer.created"
	EventIgnored          EventType = "ignored"
)

// Event is a verified gateway notification reduced to the fields
// settlement needs.  PaymentRef is the hold reference the event concerns;
// AmountCents is the captured amount on payment events.  TransferRef and
// ListingID are set for transfer events.
type Event struct {
	ID          string
	Type        EventType
	RawType     string
	PaymentRef  string
	AmountCents int64
	TransferRef string
	ListingID   uint64
}

// Gateway is the contract the settlement core depends on.
type Gateway interface {
	CapturePreAuthorizedHold(ctx context.Context, holdRef string) (CaptureResult, error)
	TransferToSeller(ctx context.Context, amountCents int64, sellerAccountRef string, metadata map[string]string) (TransferResult, error)
	VerifyWebhookSignature(payload []byte, signature string) (Event, error)
}
