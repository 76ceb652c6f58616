package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"stream-proxy-go/internal/ratelimit"
)

// Version is a string type for dependency injection of the build version.
type Version string

// HealthHandler serves health and status endpoints.
type HealthHandler struct {
	limiter *ratelimit.Limiter
	version Version
}

// NewHealthHandler creates a HealthHandler. The limiter may be nil when
// rate limiting is disabled.
func NewHealthHandler(limiter *ratelimit.Limiter, v Version) *HealthHandler {
	return &HealthHandler{limiter: limiter, version: v}
}

// Healthz returns a simple OK response for liveness probes.
func (h *HealthHandler) Healthz(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status": "ok",
	})
}

// Status returns proxy status information.
func (h *HealthHandler) Status(c echo.Context) error {
	body := map[string]any{
		"status":  "ok",
		"version": string(h.version),
	}
	if h.limiter != nil {
		body["rate_limit"] = map[string]any{
			"max_requests": h.limiter.Max(),
			"window_ms":    h.limiter.Window().Milliseconds(),
		}
	}
	return c.JSON(http.StatusOK, body)
}
