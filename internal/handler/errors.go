package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/settlement"
)

// Machine-readable error codes returned in the "code" field.
const (
	CodeValidation        = "VALIDATION_ERROR"
	CodeForbidden         = "FORBIDDEN"
	CodeNotFound          = "NOT_FOUND"
	CodeAuctionActive     = "AUCTION_ACTIVE"
	CodeListingNotActive  = "LISTING_NOT_ACTIVE"
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeNoPayoutAccount   = "NO_PAYOUT_ACCOUNT"
	CodeDataInvalid       = "DATA_INVALID"
	CodeInternal          = "INTERNAL_ERROR"
)

func fail(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"code": code, "error": msg})
}

// writeError maps engine errors to responses.  Unexpected errors are logged
// and reported without detail.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var tooEarly *settlement.TooEarlyError
	var bad *settlement.DataError
	switch {
	case errors.As(err, &tooEarly):
		return c.JSON(http.StatusConflict, echo.Map{
			"code":    CodeAuctionActive,
			"error":   err.Error(),
			"ends_at": tooEarly.EndsAt.UTC().Format(time.RFC3339),
		})
	case errors.Is(err, settlement.ErrInvalidListingID), errors.Is(err, settlement.ErrInvalidReason):
		return fail(c, http.StatusBadRequest, CodeValidation, err.Error())
	case errors.Is(err, settlement.ErrNotSeller):
		return fail(c, http.StatusForbidden, CodeForbidden, err.Error())
	case errors.Is(err, settlement.ErrListingNotFound), errors.Is(err, settlement.ErrTransactionNotFound):
		return fail(c, http.StatusNotFound, CodeNotFound, err.Error())
	case errors.Is(err, settlement.ErrListingNotActive):
		return fail(c, http.StatusConflict, CodeListingNotActive, err.Error())
	case errors.Is(err, settlement.ErrInvalidTransition):
		return fail(c, http.StatusConflict, CodeInvalidTransition, err.Error())
	case errors.Is(err, settlement.ErrNoPayoutAccount):
		return fail(c, http.StatusConflict, CodeNoPayoutAccount, err.Error())
	case errors.As(err, &bad):
		log.Error("listing data needs repair", zap.String("path", c.Path()), zap.Error(err))
		return fail(c, http.StatusUnprocessableEntity, CodeDataInvalid, "listing data cannot be settled")
	}
	log.Error("request failed",
		zap.String("method", c.Request().Method),
		zap.String("path", c.Path()),
		zap.Error(err))
	return fail(c, http.StatusInternalServerError, CodeInternal, "internal error")
}

// parseListingID reads the :id path parameter.
func parseListingID(c echo.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	return id, err == nil && id != 0
}
