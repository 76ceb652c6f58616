package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stream-proxy-go/internal/config"
	"stream-proxy-go/internal/metrics"
	"stream-proxy-go/internal/middleware"
	"stream-proxy-go/internal/ratelimit"
)

// RegisterRoutes wires all route handlers onto the Echo instance. The
// limiter applies to the stream route only; health and metrics stay
// reachable when a client has exhausted its window.
func RegisterRoutes(e *echo.Echo, cfg *config.Config, stream *StreamHandler, health *HealthHandler, limiter *ratelimit.Limiter, m *metrics.Metrics) {
	e.GET("/healthz", health.Healthz)
	e.GET("/status", health.Status)

	var streamMW []echo.MiddlewareFunc
	if limiter != nil {
		streamMW = append(streamMW, middleware.RateLimit(limiter, m))
	}

	e.GET("/stream", stream.Handle, streamMW...)
	e.HEAD("/stream", stream.Handle, streamMW...)
	e.OPTIONS("/stream", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})

	if cfg.Metrics.Enabled {
		e.GET(cfg.Metrics.Path, echo.WrapHandler(
			promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}),
		))
	}
}
