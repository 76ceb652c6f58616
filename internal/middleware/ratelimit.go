package middleware

import (
	"math"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"stream-proxy-go/internal/metrics"
	"stream-proxy-go/internal/ratelimit"
)

// RateLimit returns an Echo middleware that admits each request through the
// fixed-window limiter before any upstream work happens. Rejections carry
// Retry-After (seconds, rounded up) and a JSON body naming the retry delay;
// admitted requests carry X-RateLimit-Remaining. The metrics parameter is
// optional.
func RateLimit(limiter *ratelimit.Limiter, m *metrics.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			res := limiter.Admit(ratelimit.ClientID(c.Request().Header))

			c.Response().Header().Set("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))

			if !res.Allowed {
				if m != nil {
					m.RateLimitRejections.Inc()
				}
				retryAfterMs := res.RetryAfter.Milliseconds()
				retryAfterSec := int(math.Ceil(res.RetryAfter.Seconds()))
				c.Response().Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
				return c.JSON(http.StatusTooManyRequests, map[string]any{
					"error":        "rate_limit_exceeded",
					"retryAfterMs": retryAfterMs,
					"message":      "Too many requests, retry after " + strconv.FormatInt(retryAfterMs, 10) + "ms",
				})
			}

			return next(c)
		}
	}
}
