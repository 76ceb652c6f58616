package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"

	"stream-proxy-go/internal/client"
	"stream-proxy-go/internal/config"
	"stream-proxy-go/internal/metrics"
	"stream-proxy-go/internal/ratelimit"
	"stream-proxy-go/internal/service"
)

func newTestRouter(t *testing.T, cfg *config.Config, limiter *ratelimit.Limiter) *echo.Echo {
	t.Helper()
	m := metrics.New()
	c := client.NewUpstreamClient(cfg, testLogger(), nil)
	svc := service.NewProxyServiceForTest(c, testLogger(), nil)
	stream := NewStreamHandler(svc, testLogger(), nil)
	health := NewHealthHandler(limiter, "test")

	e := echo.New()
	RegisterRoutes(e, cfg, stream, health, limiter, m)
	return e
}

func baseConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Upstream.TimeoutSeconds = 10
	cfg.Upstream.IdleConnections = 10
	cfg.Upstream.UserAgent = "test-agent"
	cfg.Metrics.Path = "/metrics"
	return cfg
}

func TestRegisterRoutes_Health(t *testing.T) {
	e := newTestRouter(t, baseConfig(), nil)

	for _, path := range []string{"/healthz", "/status"} {
		req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestRegisterRoutes_StreamPreflight(t *testing.T) {
	e := newTestRouter(t, baseConfig(), nil)

	req := httptest.NewRequest(http.MethodOptions, "/stream", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Errorf("OPTIONS /stream = %d, want 204", rec.Code)
	}
	if rec.Body.Len() != 0 {
		t.Errorf("preflight has body: %q", rec.Body.String())
	}
}

func TestRegisterRoutes_MetricsGated(t *testing.T) {
	cfg := baseConfig()
	cfg.Metrics.Enabled = true
	e := newTestRouter(t, cfg, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /metrics = %d, want 200 when enabled", rec.Code)
	}

	e = newTestRouter(t, baseConfig(), nil)
	req = httptest.NewRequest(http.MethodGet, "/metrics", http.NoBody)
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Errorf("GET /metrics = %d, want 404 when disabled", rec.Code)
	}
}

func TestRegisterRoutes_LimiterSparesHealth(t *testing.T) {
	limiter := ratelimit.New(1, time.Minute)
	e := newTestRouter(t, baseConfig(), limiter)

	// Exhaust the stream budget.
	for range 2 {
		req := httptest.NewRequest(http.MethodGet, "/stream", http.NoBody)
		req.Header.Set("X-Forwarded-For", "1.2.3.4")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
	}

	req := httptest.NewRequest(http.MethodGet, "/stream", http.NoBody)
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("GET /stream = %d, want 429 after exhaustion", rec.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/healthz", http.NoBody)
	req.Header.Set("X-Forwarded-For", "1.2.3.4")
	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("GET /healthz = %d, want 200; health must not be rate limited", rec.Code)
	}
}
