// Package client provides the outbound HTTP fetcher for proxy targets.
package client

import (
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"stream-proxy-go/internal/config"
	"stream-proxy-go/internal/metrics"
	"stream-proxy-go/internal/model"
)

// UpstreamClient fetches media content from target origins on behalf of
// the player. One whole-fetch timeout governs each request, covering the
// body read; cancellation aborts the in-flight connection.
type UpstreamClient struct {
	httpClient *http.Client
	userAgent  string
	throttle   *rate.Limiter // optional global outbound RPS cap; nil when disabled
	logger     *slog.Logger
	metrics    *metrics.Metrics
}

// NewUpstreamClient creates an UpstreamClient with connection pooling and
// timeouts from config. The metrics parameter is optional; pass nil to
// disable upstream metrics recording. Redirects are followed by the default
// http.Client policy.
func NewUpstreamClient(cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) *UpstreamClient {
	transport := &http.Transport{
		MaxIdleConns:        cfg.Upstream.IdleConnections,
		MaxIdleConnsPerHost: cfg.Upstream.IdleConnections,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}

	var throttle *rate.Limiter
	if cfg.Upstream.MaxRPS > 0 {
		throttle = rate.NewLimiter(rate.Limit(cfg.Upstream.MaxRPS), int(cfg.Upstream.MaxRPS)+1)
	}

	return &UpstreamClient{
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   time.Duration(cfg.Upstream.TimeoutSeconds) * time.Second,
		},
		userAgent: cfg.Upstream.UserAgent,
		throttle:  throttle,
		logger:    logger.With("component", "upstream_client"),
		metrics:   m,
	}
}

// Fetch issues the outbound request for pr and returns the raw upstream
// response. The caller is responsible for closing the response body. The
// request context controls cancellation: when the client disconnects, the
// upstream request is aborted too.
func (c *UpstreamClient) Fetch(pr *model.ProxyRequest) (*model.UpstreamResponse, error) {
	if c.throttle != nil {
		if err := c.throttle.Wait(pr.Ctx); err != nil {
			return nil, fmt.Errorf("outbound throttle: %w", err)
		}
	}

	// The proxy only ever reads upstream: anything that isn't HEAD goes
	// out as GET.
	method := http.MethodGet
	if pr.Method == http.MethodHead {
		method = http.MethodHead
	}

	req, err := http.NewRequestWithContext(pr.Ctx, method, pr.Target.String(), http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build upstream request: %w", err)
	}
	req.Header = c.buildHeader(pr)

	c.logger.Debug("upstream request",
		"method", method,
		"host", pr.Target.Host,
		"mode", string(pr.Mode),
	)

	start := time.Now()
	resp, err := c.httpClient.Do(req) //nolint:bodyclose // body ownership transfers to caller via UpstreamResponse
	duration := time.Since(start).Seconds()

	if err != nil {
		if c.metrics != nil {
			c.metrics.UpstreamDuration.WithLabelValues("error").Observe(duration)
		}
		return nil, fmt.Errorf("upstream request: %w", err)
	}

	if c.metrics != nil {
		status := strconv.Itoa(resp.StatusCode)
		c.metrics.UpstreamDuration.WithLabelValues("ok").Observe(duration)
		c.metrics.UpstreamResponses.WithLabelValues(status).Inc()
	}

	finalURL := pr.Target
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL
	}

	return &model.UpstreamResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       resp.Body,
		FinalURL:   finalURL,
	}, nil
}

// buildHeader assembles the curated upstream header set: a small subset of
// client headers forwarded verbatim, a guaranteed User-Agent, cache
// busting for dynamic manifests, and referer/origin per the request mode.
func (c *UpstreamClient) buildHeader(pr *model.ProxyRequest) http.Header {
	h := make(http.Header)

	for _, key := range []string{"Range", "Accept", "Accept-Language"} {
		if v := pr.Header.Get(key); v != "" {
			h.Set(key, v)
		}
	}

	if ua := pr.Header.Get("User-Agent"); ua != "" {
		h.Set("User-Agent", ua)
	} else {
		h.Set("User-Agent", c.userAgent)
	}

	// Manifests are dynamic; defeat intermediate caching.
	h.Set("Cache-Control", "no-cache")
	h.Set("Pragma", "no-cache")

	targetOrigin := pr.Target.Scheme + "://" + pr.Target.Host

	if pr.Mode.Spoof() {
		h.Set("Referer", targetOrigin)
		h.Set("Origin", targetOrigin)
		return h
	}

	if ref := pr.Header.Get("Referer"); ref != "" {
		h.Set("Referer", ref)
	} else {
		h.Set("Referer", targetOrigin)
	}
	if origin := pr.Header.Get("Origin"); origin != "" {
		h.Set("Origin", origin)
	} else {
		h.Set("Origin", targetOrigin)
	}

	return h
}
