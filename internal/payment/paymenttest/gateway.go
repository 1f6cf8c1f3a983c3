// Package paymenttest provides an in-memory payment.Gateway for tests.
package paymenttest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/iliyamo/auction-settlement/internal/payment"
)

// Transfer records one TransferToSeller call.
type Transfer struct {
	AmountCents int64
	AccountRef  string
	Metadata    map[string]string
}

// Gateway captures holds listed in Holds.  Capturing an already captured
// hold succeeds again, matching the production adapter.
type Gateway struct {
	mu sync.Mutex

	// Holds maps hold references to the amount the gateway will capture.
	Holds map[string]int64
	// CaptureErr, when set, fails every capture.
	CaptureErr error
	// TransferErr, when set, fails every transfer.
	TransferErr error
	// Secret is the only signature VerifyWebhookSignature accepts.
	Secret string

	Captures  []string
	Transfers []Transfer
}

var _ payment.Gateway = (*Gateway)(nil)

// New returns a Gateway with the given holds.
func New(holds map[string]int64) *Gateway {
	if holds == nil {
		holds = map[string]int64{}
	}
	return &Gateway{Holds: holds, Secret: "test-signature"}
}

func (g *Gateway) CapturePreAuthorizedHold(_ context.Context, holdRef string) (payment.CaptureResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.Captures = append(g.Captures, holdRef)
	if g.CaptureErr != nil {
		return payment.CaptureResult{}, fmt.Errorf("%w: %v", payment.ErrCaptureFailed, g.CaptureErr)
	}
	amt, ok := g.Holds[holdRef]
	if !ok {
		return payment.CaptureResult{}, fmt.Errorf("%w: no such hold %s", payment.ErrCaptureFailed, holdRef)
	}
	return payment.CaptureResult{Status: payment.CaptureSucceeded, CapturedCents: amt, Currency: "usd"}, nil
}

func (g *Gateway) TransferToSeller(_ context.Context, amountCents int64, accountRef string, metadata map[string]string) (payment.TransferResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.TransferErr != nil {
		return payment.TransferResult{}, g.TransferErr
	}
	g.Transfers = append(g.Transfers, Transfer{AmountCents: amountCents, AccountRef: accountRef, Metadata: metadata})
	return payment.TransferResult{TransferID: fmt.Sprintf("tr_%d", len(g.Transfers))}, nil
}

// VerifyWebhookSignature accepts payloads signed with Secret.  The payload
// is the JSON encoding of a payment.Event.
func (g *Gateway) VerifyWebhookSignature(payload []byte, signature string) (payment.Event, error) {
	if signature != g.Secret {
		return payment.Event{}, payment.ErrInvalidSignature
	}
	var ev payment.Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return payment.Event{}, errors.Join(payment.ErrInvalidSignature, err)
	}
	return ev, nil
}

// CaptureCount returns the number of capture attempts.
func (g *Gateway) CaptureCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Captures)
}

// TransferCount returns the number of transfers made.
func (g *Gateway) TransferCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.Transfers)
}
