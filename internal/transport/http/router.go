package http

import (
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"vn.io.arda/idbridge/internal/transport/mw"
)

// NewRouter sets up all Echo routes and middleware. internalSecret guards the
// /v1 surface; when empty the API is open (local development only).
func NewRouter(h *Handler, internalSecret string) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
	}))

	// Health (no auth required)
	e.GET("/health", h.Health)

	v1 := e.Group("/v1")
	if internalSecret != "" {
		v1.Use(mw.InternalAuth(internalSecret))
	}

	v1.GET("/realms/:realm/users/count", h.CountUsers)
	v1.GET("/realms/:realm/users/:username", h.GetUser)
	v1.GET("/realms/:realm/users", h.ListUsers)
	v1.POST("/realms/:realm/users/:username/credentials/validate", h.ValidateCredential)

	return e
}
