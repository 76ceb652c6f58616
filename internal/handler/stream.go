package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"

	"github.com/labstack/echo/v4"

	"stream-proxy-go/internal/metrics"
	"stream-proxy-go/internal/model"
	"stream-proxy-go/internal/rewrite"
	"stream-proxy-go/internal/service"
)

// relayedHeaders are the upstream response headers preserved on the relay
// path. Range semantics (206, Content-Range) must survive for segment
// seeking to work.
var relayedHeaders = []string{
	"Content-Type",
	"Content-Length",
	"Content-Range",
	"Accept-Ranges",
}

// StreamHandler serves the /stream proxy endpoint.
type StreamHandler struct {
	service *service.ProxyService
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewStreamHandler creates a StreamHandler. The metrics parameter is optional.
func NewStreamHandler(svc *service.ProxyService, logger *slog.Logger, m *metrics.Metrics) *StreamHandler {
	return &StreamHandler{
		service: svc,
		logger:  logger.With("component", "stream_handler"),
		metrics: m,
	}
}

// Handle validates the proxy request, fetches the target, and either
// rewrites the manifest or streams the body back.
func (h *StreamHandler) Handle(c echo.Context) error {
	req := c.Request()

	pr, err := h.service.ParseRequest(
		req.Context(),
		c.QueryParam("url"),
		c.QueryParam("mode"),
		req.Method,
		req.Header,
	)
	if err != nil {
		var ve *service.ValidationError
		if errors.As(err, &ve) {
			return c.JSON(http.StatusBadRequest, map[string]string{
				"error":   "validation_failed",
				"message": ve.Reason,
			})
		}
		return c.JSON(http.StatusBadRequest, map[string]string{
			"error":   "validation_failed",
			"message": "Invalid request",
		})
	}

	resp, err := h.service.Forward(pr)
	if err != nil {
		return h.mapUpstreamError(c, pr, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if pr.Method != http.MethodHead && rewrite.IsHLSContent(resp.Header.Get("Content-Type"), resp.FinalURL) {
		return h.serveManifest(c, pr, resp)
	}

	h.recordRewrite("passthrough")
	return h.relay(c, resp)
}

// serveManifest buffers a suspected playlist, sniffs it, and rewrites every
// URI to route back through the proxy. A body that fails the sniff is
// relayed verbatim: a lying content type is not an error.
func (h *StreamHandler) serveManifest(c echo.Context, pr *model.ProxyRequest, resp *model.UpstreamResponse) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return h.mapUpstreamError(c, pr, err)
	}

	manifest := string(body)
	if !rewrite.SniffManifest(manifest) {
		h.recordRewrite("fallthrough")
		h.logger.Debug("manifest sniff failed, relaying verbatim",
			"host", pr.Target.Host,
			"content_type", resp.Header.Get("Content-Type"),
		)
		copyRelayedHeaders(c, resp)
		ct := resp.Header.Get("Content-Type")
		if ct == "" {
			ct = echo.MIMEOctetStream
		}
		return c.Blob(resp.StatusCode, ct, body)
	}

	prefix := rewrite.Prefix(selfOrigin(c), c.Request().URL.Path, string(pr.Mode))
	rewritten := rewrite.Rewrite(manifest, resp.FinalURL, prefix)

	h.recordRewrite("rewritten")
	return c.Blob(resp.StatusCode, rewrite.ContentType, []byte(rewritten))
}

// relay streams a non-manifest upstream body to the client unmodified,
// preserving range/partial-content semantics and the upstream status code.
func (h *StreamHandler) relay(c echo.Context, resp *model.UpstreamResponse) error {
	copyRelayedHeaders(c, resp)
	c.Response().WriteHeader(resp.StatusCode)

	// If the copy fails mid-stream the status has already been sent; the
	// player sees a truncated segment and re-requests it. Log and move on.
	if _, err := io.Copy(c.Response(), resp.Body); err != nil {
		h.logger.Debug("streaming body interrupted", "err", err)
	}
	return nil
}

func copyRelayedHeaders(c echo.Context, resp *model.UpstreamResponse) {
	for _, key := range relayedHeaders {
		if v := resp.Header.Get(key); v != "" {
			c.Response().Header().Set(key, v)
		}
	}
}

// selfOrigin reconstructs the externally visible origin of this proxy from
// forwarding headers, falling back to the request host.
func selfOrigin(c echo.Context) string {
	req := c.Request()

	proto := req.Header.Get("X-Forwarded-Proto")
	if proto == "" {
		proto = c.Scheme()
	}
	host := req.Header.Get("X-Forwarded-Host")
	if host == "" {
		host = req.Host
	}
	return proto + "://" + host
}

func (h *StreamHandler) mapUpstreamError(c echo.Context, pr *model.ProxyRequest, err error) error {
	h.logger.Error("upstream fetch failed",
		"err", err,
		"host", pr.Target.Host,
	)

	if isTimeout(err) {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error":   "upstream_timeout",
			"message": "Upstream request timed out",
		})
	}

	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error":   "upstream_error",
		"message": "Failed to fetch upstream content",
	})
}

// isTimeout distinguishes a deadline expiry from other network failures so
// timeouts surface as a distinct failure. Whole-fetch timeouts show up as
// net.Error during the header exchange or mid-body read.
func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func (h *StreamHandler) recordRewrite(outcome string) {
	if h.metrics != nil {
		h.metrics.RewriteOutcomes.WithLabelValues(outcome).Inc()
	}
}
