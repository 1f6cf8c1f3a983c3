package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"testing"
	"time"
)

func sign(t *testing.T, secret string, payload []byte) string {
	t.Helper()
	ts := time.Now().Unix()
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(mac.Sum(nil)))
}

func TestVerifyWebhookSignatureDispute(t *testing.T) {
	g := NewStripeGateway("sk_test_x", "whsec_test", "usd", nil)
	payload := []byte(`{"id":"evt_1","object":"event","type":"charge.dispute.created","data":{"object":{"id":"dp_1","object":"dispute","payment_intent":"pi_123"}}}`)

	ev, err := g.VerifyWebhookSignature(payload, sign(t, "whsec_test", payload))
	if err != nil {
		t.Fatalf("VerifyWebhookSignature: %v", err)
	}
	if ev.Type != EventDisputeCreated || ev.PaymentRef != "pi_123" || ev.ID != "evt_1" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestVerifyWebhookSignatureTransfer(t *testing.T) {
	g := NewStripeGateway("sk_test_x", "whsec_test", "usd", nil)
	payload := []byte(`{"id":"evt_2","object":"event","type":"transfer.created","data":{"object":{"id":"tr_9","object":"transfer","metadata":{"listing_id":"42"}}}}`)

	ev, err := g.VerifyWebhookSignature(payload, sign(t, "whsec_test", payload))
	if err != nil {
		t.Fatalf("VerifyWebhookSignature: %v", err)
	}
	if ev.Type != EventTransferCreated || ev.TransferRef != "tr_9" || ev.ListingID != 42 {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestVerifyWebhookSignaturePaymentIntent(t *testing.T) {
	g := NewStripeGateway("sk_test_x", "whsec_test", "usd", nil)
	cases := []struct {
		typ    string
		want   EventType
		amount int64
	}{
		{"payment_intent.succeeded", EventPaymentSucceeded, 50000},
		{"payment_intent.payment_failed", EventPaymentFailed, 0},
	}
	for _, tc := range cases {
		payload := []byte(fmt.Sprintf(`{"id":"evt_pi","object":"event","type":%q,"data":{"object":{"id":"pi_7","object":"payment_intent","amount_received":%d}}}`, tc.typ, tc.amount))
		ev, err := g.VerifyWebhookSignature(payload, sign(t, "whsec_test", payload))
		if err != nil {
			t.Fatalf("%s: %v", tc.typ, err)
		}
		if ev.Type != tc.want || ev.PaymentRef != "pi_7" || ev.AmountCents != tc.amount {
			t.Errorf("%s: unexpected event %+v", tc.typ, ev)
		}
	}
}

func TestVerifyWebhookSignatureRejectsTampering(t *testing.T) {
	g := NewStripeGateway("sk_test_x", "whsec_test", "usd", nil)
	payload := []byte(`{"id":"evt_3","object":"event","type":"transfer.created","data":{"object":{"id":"tr_1"}}}`)
	header := sign(t, "whsec_other", payload)

	if _, err := g.VerifyWebhookSignature(payload, header); !errors.Is(err, ErrInvalidSignature) {
		t.Fatalf("expected ErrInvalidSignature, got %v", err)
	}
}

func TestVerifyWebhookSignatureIgnoresOtherEvents(t *testing.T) {
	g := NewStripeGateway("sk_test_x", "whsec_test", "usd", nil)
	payload := []byte(`{"id":"evt_4","object":"event","type":"customer.created","data":{"object":{"id":"cus_1","object":"customer"}}}`)

	ev, err := g.VerifyWebhookSignature(payload, sign(t, "whsec_test", payload))
	if err != nil {
		t.Fatalf("VerifyWebhookSignature: %v", err)
	}
	if ev.Type != EventIgnored || ev.RawType != "customer.created" {
		t.Errorf("unexpected event %+v", ev)
	}
}
