package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"vn.io.arda/idbridge/internal/application"
	"vn.io.arda/idbridge/internal/domain"
)

// Handler holds all HTTP handler methods.
type Handler struct {
	gw *application.Gateway
}

// NewHandler creates a new Handler.
func NewHandler(gw *application.Gateway) *Handler {
	return &Handler{gw: gw}
}

// userResponse is the wire shape of a federated profile.
type userResponse struct {
	Username   string            `json:"username"`
	FirstName  string            `json:"firstName"`
	LastName   string            `json:"lastName"`
	Email      string            `json:"email,omitempty"`
	Enabled    bool              `json:"enabled"`
	Tenant     string            `json:"tenant"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func toResponse(u *domain.User) userResponse {
	return userResponse{
		Username:   u.Username,
		FirstName:  u.FirstName,
		LastName:   u.LastName,
		Email:      u.Email,
		Enabled:    u.Enabled,
		Tenant:     u.Tenant,
		Attributes: u.Attributes,
	}
}

// GetUser GET /v1/realms/:realm/users/:username
func (h *Handler) GetUser(c echo.Context) error {
	realm := c.Param("realm")
	username := c.Param("username")

	u, err := h.gw.LookupByUsername(c.Request().Context(), realm, username)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "user not found")
		}
		return echo.ErrInternalServerError
	}
	return c.JSON(http.StatusOK, toResponse(u))
}

// ListUsers GET /v1/realms/:realm/users?email=|search=&offset=&limit=
//
// With email= the response carries at most one entry; with search= it is a
// substring match over username, name and email.
func (h *Handler) ListUsers(c echo.Context) error {
	realm := c.Param("realm")

	if email := c.QueryParam("email"); email != "" {
		u, err := h.gw.LookupByEmail(c.Request().Context(), realm, email)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				return c.JSON(http.StatusOK, map[string]any{"data": []userResponse{}})
			}
			return echo.ErrInternalServerError
		}
		return c.JSON(http.StatusOK, map[string]any{"data": []userResponse{toResponse(u)}})
	}

	filter := domain.SearchFilter{
		Query:  c.QueryParam("search"),
		Offset: parseIntQuery(c, "offset", 0),
		Limit:  parseIntQuery(c, "limit", 20),
	}
	users, err := h.gw.SearchUsers(c.Request().Context(), realm, filter)
	if err != nil {
		return echo.ErrInternalServerError
	}

	out := make([]userResponse, 0, len(users))
	for _, u := range users {
		out = append(out, toResponse(u))
	}
	return c.JSON(http.StatusOK, map[string]any{
		"data":   out,
		"offset": filter.Offset,
		"limit":  filter.Limit,
	})
}

// CountUsers GET /v1/realms/:realm/users/count
func (h *Handler) CountUsers(c echo.Context) error {
	realm := c.Param("realm")
	count := h.gw.CountUsers(c.Request().Context(), realm)
	return c.JSON(http.StatusOK, map[string]int{"count": count})
}

type validateRequest struct {
	Password string `json:"password"`
}

// ValidateCredential POST /v1/realms/:realm/users/:username/credentials/validate
//
// Always answers 200 with a boolean; a wrong password is not an HTTP error.
func (h *Handler) ValidateCredential(c echo.Context) error {
	realm := c.Param("realm")
	username := c.Param("username")

	var req validateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "password is required")
	}

	valid := h.gw.ValidateCredential(c.Request().Context(), realm, username, req.Password)
	return c.JSON(http.StatusOK, map[string]bool{"valid": valid})
}

// Health GET /health
func (h *Handler) Health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

func parseIntQuery(c echo.Context, key string, def int) int {
	v, err := strconv.Atoi(c.QueryParam(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
