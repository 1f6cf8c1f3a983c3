package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated caller's id.  ok is false for anonymous
// requests.
func UserID(c echo.Context) (uint64, bool) {
	switch v := c.Get("user_id").(type) {
	case uint64:
		return v, v != 0
	case int64:
		return uint64(v), v > 0
	case float64:
		return uint64(v), v > 0
	case string:
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n, n != 0
		}
	}
	return 0, false
}

// Role returns the authenticated caller's role, or "".
func Role(c echo.Context) string {
	r, _ := c.Get("role").(string)
	return r
}

// rateKeyUser identifies the caller for rate limiting.
func rateKeyUser(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
