package payment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"
	"go.uber.org/zap"
)

// StripeGateway implements Gateway on top of Stripe PaymentIntents created
// with capture_method=manual at bid time.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	currency      string
	log           *zap.Logger
}

// NewStripeGateway builds a gateway using the given secret key.  currency is
// the lower-case ISO code used for transfers (e.g. "usd").
func NewStripeGateway(secretKey, webhookSecret, currency string, log *zap.Logger) *StripeGateway {
	if log == nil {
		log = zap.NewNop()
	}
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	return &StripeGateway{
		api:           client.New(secretKey, nil),
		webhookSecret: webhookSecret,
		currency:      strings.ToLower(currency),
		log:           log,
	}
}

// CapturePreAuthorizedHold captures the full amount of a manual-capture
// PaymentIntent.  A retry after a capture that already succeeded is
// reported as success so replays stay idempotent.
func (g *StripeGateway) CapturePreAuthorizedHold(ctx context.Context, holdRef string) (CaptureResult, error) {
	params := &stripe.PaymentIntentCaptureParams{}
	params.Context = ctx
	pi, err := g.api.PaymentIntents.Capture(holdRef, params)
	if err != nil {
		var serr *stripe.Error
		if errors.As(err, &serr) && serr.Code == stripe.ErrorCodePaymentIntentUnexpectedState {
			get := &stripe.PaymentIntentParams{}
			get.Context = ctx
			if cur, gerr := g.api.PaymentIntents.Get(holdRef, get); gerr == nil && cur.Status == stripe.PaymentIntentStatusSucceeded {
				g.log.Info("hold already captured", zap.String("hold_ref", holdRef))
				return captureResult(cur), nil
			}
		}
		return CaptureResult{}, fmt.Errorf("%w: %s", ErrCaptureFailed, describeStripeError(err))
	}
	switch pi.Status {
	case stripe.PaymentIntentStatusSucceeded:
		return captureResult(pi), nil
	case stripe.PaymentIntentStatusProcessing:
		res := captureResult(pi)
		res.Status = CapturePending
		return res, nil
	}
	return CaptureResult{}, fmt.Errorf("%w: unexpected intent status %s", ErrCaptureFailed, pi.Status)
}

func captureResult(pi *stripe.PaymentIntent) CaptureResult {
	return CaptureResult{
		Status:        CaptureSucceeded,
		CapturedCents: pi.AmountReceived,
		Currency:      string(pi.Currency),
	}
}

// TransferToSeller moves amountCents to a connected account.
func (g *StripeGateway) TransferToSeller(ctx context.Context, amountCents int64, sellerAccountRef string, metadata map[string]string) (TransferResult, error) {
	params := &stripe.TransferParams{
		Amount:      stripe.Int64(amountCents),
		Currency:    stripe.String(g.currency),
		Destination: stripe.String(sellerAccountRef),
	}
	params.Context = ctx
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	if lid := metadata["listing_id"]; lid != "" {
		params.TransferGroup = stripe.String("listing_" + lid)
	}
	// One transfer per settlement even if the payout unit is retried.
	if txID := metadata["transaction_id"]; txID != "" {
		params.IdempotencyKey = stripe.String("payout_tx_" + txID)
	}
	tr, err := g.api.Transfers.New(params)
	if err != nil {
		return TransferResult{}, fmt.Errorf("transfer to seller: %s", describeStripeError(err))
	}
	return TransferResult{TransferID: tr.ID}, nil
}

// VerifyWebhookSignature checks the Stripe-Signature header and reduces the
// event to the settlement view.
func (g *StripeGateway) VerifyWebhookSignature(payload []byte, signature string) (Event, error) {
	ev, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	return translateEvent(ev)
}

func translateEvent(ev stripe.Event) (Event, error) {
	out := Event{ID: ev.ID, RawType: string(ev.Type), Type: EventIgnored}
	if ev.Data == nil {
		return out, nil
	}
	switch ev.Type {
	case "payment_intent.succeeded", "payment_intent.payment_failed":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(ev.Data.Raw, &pi); err != nil {
			return Event{}, fmt.Errorf("decode payment intent: %w", err)
		}
		out.Type = EventPaymentFailed
		if ev.Type == "payment_intent.succeeded" {
			out.Type = EventPaymentSucceeded
		}
		out.PaymentRef = pi.ID
		out.AmountCents = pi.AmountReceived
	case "charge.dispute.created":
		var d stripe.Dispute
		if err := json.Unmarshal(ev.Data.Raw, &d); err != nil {
			return Event{}, fmt.Errorf("decode dispute: %w", err)
		}
		out.Type = EventDisputeCreated
		if d.PaymentIntent != nil {
			out.PaymentRef = d.PaymentIntent.ID
		}
	case "transfer.created":
		var tr stripe.Transfer
		if err := json.Unmarshal(ev.Data.Raw, &tr); err != nil {
			return Event{}, fmt.Errorf("decode transfer: %w", err)
		}
		out.Type = EventTransferCreated
		out.TransferRef = tr.ID
		if id, err := strconv.ParseUint(tr.Metadata["listing_id"], 10, 64); err == nil {
			out.ListingID = id
		}
	}
	return out, nil
}

func describeStripeError(err error) string {
	var serr *stripe.Error
	if errors.As(err, &serr) {
		if serr.DeclineCode != "" {
			return fmt.Sprintf("%s (%s/%s)", serr.Msg, serr.Code, serr.DeclineCode)
		}
		return fmt.Sprintf("%s (%s)", serr.Msg, serr.Code)
	}
	return err.Error()
}
