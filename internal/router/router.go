package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auction-settlement/internal/handler"
	"github.com/iliyamo/auction-settlement/internal/middleware"
	"github.com/iliyamo/auction-settlement/internal/model"
)

// RegisterRoutes registers the unauthenticated probes.  db may be nil in
// tests, in which case only liveness is exposed.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	if db != nil {
		e.GET("/readyz", handler.Ready(db))
	}
}

// RegisterSettlement registers the caller-facing settlement API under /v1.
// Every route requires a valid access token; limiter runs after
// authentication so buckets are keyed per caller.
func RegisterSettlement(e *echo.Echo, h *handler.SettlementHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/listings")
	g.Use(middleware.JWTAuth(jwtSecret))
	if limiter != nil {
		g.Use(limiter)
	}
	g.POST("/:id/complete", h.Complete, middleware.RequireRole(model.RoleBuyer, model.RoleCurator, model.RoleAdmin))
	g.GET("/:id/settlement", h.Get)
	g.POST("/:id/payout", h.Payout, middleware.RequireRole(model.RoleAdmin))
}

// RegisterInternal registers the scheduler triggers.  They authenticate with
// the shared sweep secret instead of a user token.
func RegisterInternal(e *echo.Echo, h *handler.SweepHandler, secretHash string) {
	g := e.Group("/internal/sweeps")
	g.Use(middleware.RequireSecret(secretHash))
	g.POST("/auctions", h.RunAuctions)
	g.POST("/auto-confirm", h.RunAutoConfirm)
}

// RegisterWebhooks registers gateway callbacks.  They are authenticated by
// payload signature inside the handler.
func RegisterWebhooks(e *echo.Echo, h *handler.WebhookHandler) {
	e.POST("/webhooks/payments", h.Receive)
}
