package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/middleware"
	"github.com/iliyamo/auction-settlement/internal/model"
	"github.com/iliyamo/auction-settlement/internal/repository"
	"github.com/iliyamo/auction-settlement/internal/settlement"
)

// Settler is the engine surface used by the HTTP layer.
type Settler interface {
	Complete(ctx context.Context, listingID uint64, reason model.CompletionReason, actor settlement.Actor) (settlement.Result, error)
	Payout(ctx context.Context, listingID uint64) (settlement.PayoutResult, error)
}

// SettlementReader loads settlement state outside the lock.
type SettlementReader interface {
	Listing(ctx context.Context, id uint64) (*model.Listing, error)
	TransactionByListing(ctx context.Context, listingID uint64) (*model.Transaction, error)
}

// SettlementHandler serves completion, payout and settlement reads.
type SettlementHandler struct {
	Engine Settler
	Store  SettlementReader
	Log    *zap.Logger
}

// NewSettlementHandler panics on missing dependencies.
func NewSettlementHandler(engine Settler, store SettlementReader, log *zap.Logger) *SettlementHandler {
	if engine == nil || store == nil {
		panic("nil dependency passed to NewSettlementHandler")
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &SettlementHandler{Engine: engine, Store: store, Log: log.Named("http")}
}

type completeReq struct {
	Reason string `json:"reason"`
}

type transactionPart struct {
	ID              uint64 `json:"id"`
	WinnerID        uint64 `json:"winner_id"`
	WinnerName      string `json:"winner_name,omitempty"`
	FinalPrice      string `json:"final_price"`
	FinalPriceCents int64  `json:"final_price_cents"`
}

type completeResp struct {
	Status        string           `json:"status"`
	CurrentStatus string           `json:"current_status,omitempty"`
	PaymentStatus string           `json:"payment_status,omitempty"`
	Transaction   *transactionPart `json:"transaction,omitempty"`
}

// Complete handles POST /v1/listings/:id/complete with {"reason": ...}.
func (h *SettlementHandler) Complete(c echo.Context) error {
	id, ok := parseListingID(c)
	if !ok {
		return fail(c, http.StatusBadRequest, CodeValidation, "invalid listing id")
	}
	var req completeReq
	if err := c.Bind(&req); err != nil {
		return fail(c, http.StatusBadRequest, CodeValidation, "invalid body")
	}
	reason, err := model.ParseCompletionReason(strings.TrimSpace(req.Reason))
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeValidation, settlement.ErrInvalidReason.Error())
	}
	uid, ok := middleware.UserID(c)
	if !ok {
		return fail(c, http.StatusUnauthorized, "UNAUTHORIZED", "unauthenticated")
	}

	res, err := h.Engine.Complete(c.Request().Context(), id, reason, settlement.Actor{UserID: uid})
	if err != nil {
		return writeError(c, h.Log, err)
	}
	out := completeResp{Status: string(res.Status)}
	switch res.Status {
	case settlement.OutcomeAlreadyCompleted:
		out.CurrentStatus = string(res.CurrentStatus)
	case settlement.OutcomeSold:
		out.PaymentStatus = string(res.PaymentStatus)
		if t := res.Transaction; t != nil {
			out.Transaction = &transactionPart{
				ID:              t.ID,
				WinnerID:        t.WinnerID,
				WinnerName:      t.WinnerName,
				FinalPrice:      model.FormatCents(t.FinalPriceCents),
				FinalPriceCents: t.FinalPriceCents,
			}
		}
	case settlement.OutcomeExpired:
	}
	return c.JSON(http.StatusOK, out)
}

type settlementView struct {
	ListingID      uint64  `json:"listing_id"`
	ListingStatus  string  `json:"listing_status"`
	AuctionEnd     string  `json:"auction_end"`
	TransactionID  uint64  `json:"transaction_id,omitempty"`
	Status         string  `json:"status,omitempty"`
	BuyerID        uint64  `json:"buyer_id,omitempty"`
	SellerID       uint64  `json:"seller_id"`
	FinalPrice     string  `json:"final_price,omitempty"`
	PlatformFee    string  `json:"platform_fee,omitempty"`
	SellerEarnings string  `json:"seller_earnings,omitempty"`
	TransferRef    *string `json:"transfer_ref,omitempty"`
}

// Get handles GET /v1/listings/:id/settlement for the seller, the buyer
// and admins.
func (h *SettlementHandler) Get(c echo.Context) error {
	id, ok := parseListingID(c)
	if !ok {
		return fail(c, http.StatusBadRequest, CodeValidation, "invalid listing id")
	}
	uid, _ := middleware.UserID(c)
	admin := middleware.Role(c) == model.RoleAdmin

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	l, err := h.Store.Listing(ctx, id)
	if errors.Is(err, repository.ErrListingNotFound) {
		return fail(c, http.StatusNotFound, CodeNotFound, "listing not found")
	}
	if err != nil {
		return writeError(c, h.Log, err)
	}
	t, err := h.Store.TransactionByListing(ctx, id)
	if err != nil && !errors.Is(err, repository.ErrTransactionNotFound) {
		return writeError(c, h.Log, err)
	}

	allowed := admin || uid == l.SellerID || (t != nil && uid == t.BuyerID)
	if !allowed {
		return fail(c, http.StatusForbidden, CodeForbidden, "not a party to this settlement")
	}

	view := settlementView{
		ListingID:     l.ID,
		ListingStatus: string(l.Status),
		AuctionEnd:    l.AuctionEnd.UTC().Format(time.RFC3339),
		SellerID:      l.SellerID,
	}
	if t != nil {
		view.TransactionID = t.ID
		view.Status = string(t.Status)
		view.BuyerID = t.BuyerID
		view.FinalPrice = model.FormatCents(t.FinalPriceCents)
		view.PlatformFee = model.FormatCents(t.PlatformFeeCents)
		view.SellerEarnings = model.FormatCents(t.SellerEarningsCents)
		view.TransferRef = t.TransferRef
	}
	return c.JSON(http.StatusOK, view)
}

// Payout handles POST /v1/listings/:id/payout for admins.
func (h *SettlementHandler) Payout(c echo.Context) error {
	id, ok := parseListingID(c)
	if !ok {
		return fail(c, http.StatusBadRequest, CodeValidation, "invalid listing id")
	}
	res, err := h.Engine.Payout(c.Request().Context(), id)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"transfer_ref": res.TransferRef, "already_paid": res.AlreadyPaid})
}
