package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/sweep"
)

// AuctionSweeper runs the overdue-auction reconciliation.
type AuctionSweeper interface {
	Run(ctx context.Context) (sweep.Report, error)
}

// AutoConfirmSweeper runs the stale-shipment pass.
type AutoConfirmSweeper interface {
	Run(ctx context.Context) (sweep.AutoConfirmReport, error)
}

// SweepHandler exposes the scheduled sweeps as secret-protected triggers.
type SweepHandler struct {
	Auctions    AuctionSweeper
	AutoConfirm AutoConfirmSweeper
	Log         *zap.Logger
}

func NewSweepHandler(auctions AuctionSweeper, autoConfirm AutoConfirmSweeper, log *zap.Logger) *SweepHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &SweepHandler{Auctions: auctions, AutoConfirm: autoConfirm, Log: log.Named("http")}
}

// RunAuctions handles POST /internal/sweeps/auctions.  Per-listing
// failures are part of the 200 report; only a failed batch load is a 500.
func (h *SweepHandler) RunAuctions(c echo.Context) error {
	rep, err := h.Auctions.Run(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rep)
}

// RunAutoConfirm handles POST /internal/sweeps/auto-confirm.
func (h *SweepHandler) RunAutoConfirm(c echo.Context) error {
	rep, err := h.AutoConfirm.Run(c.Request().Context())
	if err != nil {
		return writeError(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, rep)
}
