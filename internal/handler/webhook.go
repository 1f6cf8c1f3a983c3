package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/auction-settlement/internal/payment"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 64 << 10

// EventApplier applies verified gateway events.
type EventApplier interface {
	ApplyGatewayEvent(ctx context.Context, ev payment.Event) (bool, error)
}

// WebhookHandler receives payment gateway callbacks.
type WebhookHandler struct {
	Verifier        payment.Gateway
	Engine          EventApplier
	SignatureHeader string
	Log             *zap.Logger
}

func NewWebhookHandler(gw payment.Gateway, engine EventApplier, log *zap.Logger) *WebhookHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &WebhookHandler{Verifier: gw, Engine: engine, SignatureHeader: "Stripe-Signature", Log: log.Named("webhook")}
}

// Receive handles POST /webhooks/payments.  A bad signature is a 400; a
// failure to apply is a 500 so the gateway redelivers.
func (h *WebhookHandler) Receive(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return fail(c, http.StatusBadRequest, CodeValidation, "unreadable body")
	}
	if len(body) > maxWebhookBody {
		return fail(c, http.StatusRequestEntityTooLarge, CodeValidation, "payload too large")
	}
	ev, err := h.Verifier.VerifyWebhookSignature(body, c.Request().Header.Get(h.SignatureHeader))
	if err != nil {
		if errors.Is(err, payment.ErrInvalidSignature) {
			h.Log.Warn("rejected webhook", zap.Error(err))
			return fail(c, http.StatusBadRequest, CodeValidation, "invalid signature")
		}
		return writeError(c, h.Log, err)
	}
	applied, err := h.Engine.ApplyGatewayEvent(c.Request().Context(), ev)
	if err != nil {
		return writeError(c, h.Log, err)
	}
	h.Log.Info("webhook processed",
		zap.String("event_id", ev.ID),
		zap.String("type", ev.RawType),
		zap.Bool("applied", applied))
	return c.JSON(http.StatusOK, echo.Map{"received": true, "applied": applied})
}
