package mw

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// InternalAuth guards the bridge API with a static bearer secret shared with
// the IdP extension. Comparison is constant-time.
func InternalAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if !strings.HasPrefix(authHeader, "Bearer ") {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
			}
			token := strings.TrimPrefix(authHeader, "Bearer ")

			if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				log.Warn().Str("path", c.Path()).Msg("rejected request with invalid internal secret")
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}
			return next(c)
		}
	}
}
