package router

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/iliyamo/auction-settlement/internal/handler"
	"github.com/iliyamo/auction-settlement/internal/middleware"
	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/payment/paymenttest"
	"github.com/iliyamo/auction-settlement/internal/repository/memory"
	"github.com/iliyamo/auction-settlement/internal/settlement"
	"github.com/iliyamo/auction-settlement/internal/sweep"
	"github.com/iliyamo/auction-settlement/internal/utils"
)

const (
	jwtSecret   = "test-jwt-secret"
	sweepSecret = "test-sweep-secret"

	sellerID   uint64 = 7
	buyerID    uint64 = 42
	strangerID uint64 = 99
	adminID    uint64 = 1
)

type server struct {
	e       *echo.Echo
	store   *memory.Store
	gateway *paymenttest.Gateway
}

func newServer(t *testing.T) *server {
	t.Helper()
	store := memory.New()
	gw := paymenttest.New(nil)
	store.PutUser(model.User{ID: sellerID, DisplayName: "Sam Seller", Role: model.RoleCurator})
	store.PutUser(model.User{ID: buyerID, DisplayName: "Bea Buyer", Role: model.RoleBuyer})

	engine := settlement.NewEngine(store, gw, nil, nil, settlement.Config{})
	hash, err := bcrypt.GenerateFromPassword([]byte(sweepSecret), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	e := echo.New()
	RegisterRoutes(e, nil)
	RegisterSettlement(e, handler.NewSettlementHandler(engine, store, nil), jwtSecret, nil)
	RegisterInternal(e, handler.NewSweepHandler(
		sweep.NewAuctionSweeper(store, engine, nil, nil, sweep.Config{}),
		sweep.NewAutoConfirmSweeper(store, engine, nil, nil, sweep.AutoConfirmConfig{}),
		nil,
	), string(hash))
	RegisterWebhooks(e, handler.NewWebhookHandler(gw, engine, nil))
	return &server{e: e, store: store, gateway: gw}
}

func (s *server) listing(id uint64, end time.Time, bid int64) {
	s.store.PutListing(model.Listing{
		ID: id, SellerID: sellerID, SellerTier: model.TierFree, Title: "Lot",
		StartingPriceCents: 100, AuctionEnd: end, Status: model.ListingActive,
	})
	if bid > 0 {
		ref := "pi_test"
		s.gateway.Holds[ref] = bid
		s.store.PutBid(model.Bid{ID: 1, ListingID: id, BidderID: buyerID, AmountCents: bid, IsWinning: true, HoldRef: &ref})
	}
}

func (s *server) do(t *testing.T, method, path string, userID uint64, role, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if userID != 0 {
		tok, err := utils.NewAccessToken(jwtSecret, userID, role, time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		req.Header.Set("Authorization", "Bearer "+tok.Token)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	out := map[string]any{}
	_ = json.Unmarshal(rec.Body.Bytes(), &out)
	return rec, out
}

func TestHealth(t *testing.T) {
	s := newServer(t)
	rec, _ := s.do(t, http.MethodGet, "/healthz", 0, "", "")
	if rec.Code != http.StatusOK || rec.Body.String() != "ok" {
		t.Fatalf("healthz: %d %q", rec.Code, rec.Body)
	}
}

func TestCompleteExpiredWithoutBids(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-10*time.Minute), 0)

	rec, body := s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)
	if rec.Code != http.StatusOK || body["status"] != "expired" {
		t.Fatalf("%d %v", rec.Code, body)
	}
}

func TestCompleteSoldThenAlreadyCompleted(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-time.Minute), 50000)

	rec, body := s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("%d %v", rec.Code, body)
	}
	if body["status"] != "sold" || body["payment_status"] != "paid" {
		t.Fatalf("body = %v", body)
	}
	tx, _ := body["transaction"].(map[string]any)
	if tx["final_price"] != "500.00" || tx["winner_name"] != "Bea Buyer" {
		t.Fatalf("transaction = %v", tx)
	}

	rec, body = s.do(t, http.MethodPost, "/v1/listings/1/complete", sellerID, model.RoleCurator, `{"reason":"timer_expired"}`)
	if rec.Code != http.StatusOK || body["status"] != "already_completed" || body["current_status"] != "sold" {
		t.Fatalf("repeat: %d %v", rec.Code, body)
	}
}

func TestCompleteErrors(t *testing.T) {
	s := newServer(t)
	end := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	s.listing(1, end, 50000)

	rec, body := s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)
	if rec.Code != http.StatusConflict || body["code"] != handler.CodeAuctionActive {
		t.Fatalf("too early: %d %v", rec.Code, body)
	}
	if body["ends_at"] != end.Format(time.RFC3339) {
		t.Fatalf("ends_at = %v, want %s", body["ends_at"], end.Format(time.RFC3339))
	}

	cases := []struct {
		name   string
		path   string
		user   uint64
		role   string
		body   string
		status int
		code   string
	}{
		{"non-seller close", "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"curator_closed"}`, http.StatusForbidden, handler.CodeForbidden},
		{"bad reason", "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"bored"}`, http.StatusBadRequest, handler.CodeValidation},
		{"bad id", "/v1/listings/abc/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`, http.StatusBadRequest, handler.CodeValidation},
		{"unknown listing", "/v1/listings/404/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`, http.StatusNotFound, handler.CodeNotFound},
		{"no token", "/v1/listings/1/complete", 0, "", `{"reason":"timer_expired"}`, http.StatusUnauthorized, "UNAUTHORIZED"},
		{"unknown role", "/v1/listings/1/complete", buyerID, "GUEST", `{"reason":"timer_expired"}`, http.StatusForbidden, handler.CodeForbidden},
	}
	for _, tc := range cases {
		rec, body := s.do(t, http.MethodPost, tc.path, tc.user, tc.role, tc.body)
		if rec.Code != tc.status || body["code"] != tc.code {
			t.Errorf("%s: %d %v", tc.name, rec.Code, body)
		}
	}
	if l, _ := s.store.ListingState(1); l.Status != model.ListingActive {
		t.Fatalf("rejected calls changed listing to %s", l.Status)
	}

	rec, body = s.do(t, http.MethodPost, "/v1/listings/1/complete", sellerID, model.RoleCurator, `{"reason":"curator_closed"}`)
	if rec.Code != http.StatusOK || body["status"] != "sold" {
		t.Fatalf("seller close: %d %v", rec.Code, body)
	}
}

func TestCompleteUnsettleableBid(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-time.Minute), 50)

	rec, body := s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)
	if rec.Code != http.StatusUnprocessableEntity || body["code"] != handler.CodeDataInvalid {
		t.Fatalf("%d %v", rec.Code, body)
	}
	if l, _ := s.store.ListingState(1); l.Status != model.ListingActive {
		t.Fatalf("listing status = %s", l.Status)
	}
}

func TestGetSettlement(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-time.Minute), 50000)
	s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)

	for _, who := range []struct {
		id   uint64
		role string
	}{{sellerID, model.RoleCurator}, {buyerID, model.RoleBuyer}, {adminID, model.RoleAdmin}} {
		rec, body := s.do(t, http.MethodGet, "/v1/listings/1/settlement", who.id, who.role, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("user %d: %d %v", who.id, rec.Code, body)
		}
		if body["platform_fee"] != "50.00" || body["seller_earnings"] != "450.00" || body["status"] != "paid" {
			t.Fatalf("body = %v", body)
		}
	}

	rec, _ := s.do(t, http.MethodGet, "/v1/listings/1/settlement", strangerID, model.RoleBuyer, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("stranger: %d", rec.Code)
	}
	rec, _ = s.do(t, http.MethodGet, "/v1/listings/77/settlement", adminID, model.RoleAdmin, "")
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing: %d", rec.Code)
	}
}

func TestPayoutRequiresDelivery(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-time.Minute), 50000)
	s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)

	rec, _ := s.do(t, http.MethodPost, "/v1/listings/1/payout", sellerID, model.RoleCurator, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("seller payout: %d", rec.Code)
	}
	rec, body := s.do(t, http.MethodPost, "/v1/listings/1/payout", adminID, model.RoleAdmin, "")
	if rec.Code != http.StatusConflict || body["code"] != handler.CodeInvalidTransition {
		t.Fatalf("paid payout: %d %v", rec.Code, body)
	}
}

func TestSweepTrigger(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-time.Hour), 0)

	req := httptest.NewRequest(http.MethodPost, "/internal/sweeps/auctions", nil)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("no secret: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/sweeps/auctions", nil)
	req.Header.Set(middleware.SweepSecretHeader, sweepSecret)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	var rep sweep.Report
	if err := json.Unmarshal(rec.Body.Bytes(), &rep); err != nil || rec.Code != http.StatusOK {
		t.Fatalf("sweep: %d %s", rec.Code, rec.Body)
	}
	if rep.Processed != 1 || rep.SettledWithoutWinner != 1 {
		t.Fatalf("report = %+v", rep)
	}

	req = httptest.NewRequest(http.MethodPost, "/internal/sweeps/auto-confirm", nil)
	req.Header.Set(middleware.SweepSecretHeader, sweepSecret)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("auto-confirm: %d %s", rec.Code, rec.Body)
	}
}

func TestWebhook(t *testing.T) {
	s := newServer(t)
	s.listing(1, time.Now().Add(-time.Minute), 50000)
	s.do(t, http.MethodPost, "/v1/listings/1/complete", buyerID, model.RoleBuyer, `{"reason":"timer_expired"}`)

	payload := `{"ID":"evt_1","Type":"dispute.created","RawType":"charge.dispute.created","PaymentRef":"pi_test"}`

	req := httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", "forged")
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("forged: %d", rec.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/webhooks/payments", strings.NewReader(payload))
	req.Header.Set("Stripe-Signature", s.gateway.Secret)
	rec = httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"applied":true`) {
		t.Fatalf("signed: %d %s", rec.Code, rec.Body)
	}
	if tr, _ := s.store.TransactionState(1); tr.Status != model.TxDisputed {
		t.Fatalf("status = %s", tr.Status)
	}
}
