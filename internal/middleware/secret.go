package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/auction-settlement/internal/utils"
)

// SweepSecretHeader carries the shared secret of internal trigger endpoints.
const SweepSecretHeader = "X-Sweep-Secret"

// RequireSecret admits requests whose SweepSecretHeader matches the bcrypt
// hash.  An empty hash disables the endpoints entirely.
func RequireSecret(hash string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if hash == "" {
				return c.JSON(http.StatusNotFound, echo.Map{"code": "NOT_FOUND", "error": "not found"})
			}
			got := c.Request().Header.Get(SweepSecretHeader)
			if got == "" || !utils.VerifySecret(hash, got) {
				return c.JSON(http.StatusUnauthorized, echo.Map{"code": "UNAUTHORIZED", "error": "invalid sweep secret"})
			}
			return next(c)
		}
	}
}
