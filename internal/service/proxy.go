// Package service implements the core proxy pipeline: request validation,
// private-network guarding, and the upstream fetch.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"

	"stream-proxy-go/internal/client"
	"stream-proxy-go/internal/guard"
	"stream-proxy-go/internal/metrics"
	"stream-proxy-go/internal/model"
)

// maxURLLength bounds the target URL; anything longer is rejected outright.
const maxURLLength = 4096

// ValidationError marks a request that was rejected before any upstream
// fetch. Mapped to HTTP 400 and never retried.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return e.Reason
}

// ProxyService validates inbound proxy requests and relays them upstream.
type ProxyService struct {
	client       *client.UpstreamClient
	logger       *slog.Logger
	metrics      *metrics.Metrics
	allowPrivate bool
}

// NewProxyService creates a ProxyService. The metrics parameter is optional.
func NewProxyService(c *client.UpstreamClient, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	return &ProxyService{
		client:  c,
		logger:  logger.With("component", "proxy_service"),
		metrics: m,
	}
}

// NewProxyServiceForTest creates a ProxyService without the private-network
// guard. This is intended only for tests that use httptest servers on
// localhost.
func NewProxyServiceForTest(c *client.UpstreamClient, logger *slog.Logger, m *metrics.Metrics) *ProxyService {
	s := NewProxyService(c, logger, m)
	s.allowPrivate = true
	return s
}

// ParseRequest validates the raw url/mode query parameters and produces a
// ProxyRequest, or a *ValidationError describing the rejection. Validation
// covers presence, length, absoluteness, scheme, and the private-network
// guard; it runs strictly before any network call.
func (s *ProxyService) ParseRequest(ctx context.Context, rawURL, rawMode, method string, header http.Header) (*model.ProxyRequest, error) {
	if rawURL == "" {
		return nil, &ValidationError{Reason: "Missing url parameter"}
	}
	if len(rawURL) > maxURLLength {
		return nil, &ValidationError{Reason: "URL too long"}
	}

	target, err := url.Parse(rawURL)
	if err != nil || !target.IsAbs() || target.Host == "" {
		return nil, &ValidationError{Reason: "Invalid URL"}
	}
	if target.Scheme != "http" && target.Scheme != "https" {
		return nil, &ValidationError{Reason: "Unsupported URL scheme"}
	}

	if !s.allowPrivate && guard.IsPrivateHost(target.Hostname()) {
		if s.metrics != nil {
			s.metrics.BlockedHosts.Inc()
		}
		s.logger.Info("blocked private target", "host", target.Hostname())
		return nil, &ValidationError{Reason: "Blocked host"}
	}

	return &model.ProxyRequest{
		Ctx:    ctx,
		Target: target,
		Mode:   model.ParseMode(rawMode),
		Method: method,
		Header: header,
	}, nil
}

// Forward fetches the validated target and returns the upstream response.
// The caller is responsible for closing the response body. Failures are
// surfaced immediately; retry policy belongs to the media player, which
// naturally re-requests segments.
func (s *ProxyService) Forward(pr *model.ProxyRequest) (*model.UpstreamResponse, error) {
	s.logger.Debug("forwarding request",
		"method", pr.Method,
		"host", pr.Target.Host,
		"mode", string(pr.Mode),
	)

	resp, err := s.client.Fetch(pr)
	if err != nil {
		return nil, fmt.Errorf("forward to upstream: %w", err)
	}
	return resp, nil
}
