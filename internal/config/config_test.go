package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoad_FullConfig(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "127.0.0.1"
port = 9000

[upstream]
timeout_seconds = 15
idle_connections = 50
user_agent = "test-agent"
max_rps = 25.5

[rate_limit]
enabled = true
max_requests = 10
window_ms = 5000

[log]
level = "debug"
format = "text"

[metrics]
enabled = true
path = "/prom"
`)

	cfg, err := Load(&CLI{Config: path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 9000 {
		t.Errorf("server = %s:%d, want 127.0.0.1:9000", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Upstream.TimeoutSeconds != 15 {
		t.Errorf("upstream.timeout_seconds = %d, want 15", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Upstream.UserAgent != "test-agent" {
		t.Errorf("upstream.user_agent = %q, want %q", cfg.Upstream.UserAgent, "test-agent")
	}
	if cfg.Upstream.MaxRPS != 25.5 {
		t.Errorf("upstream.max_rps = %v, want 25.5", cfg.Upstream.MaxRPS)
	}
	if !cfg.RateLimit.Enabled || cfg.RateLimit.MaxRequests != 10 || cfg.RateLimit.WindowMs != 5000 {
		t.Errorf("rate_limit = %+v, want enabled 10/5000ms", cfg.RateLimit)
	}
	if cfg.Metrics.Path != "/prom" {
		t.Errorf("metrics.path = %q, want %q", cfg.Metrics.Path, "/prom")
	}
}

func TestLoad_NoConfigFileUsesDefaults(t *testing.T) {
	// Run from a directory with no configs/config.toml.
	t.Chdir(t.TempDir())

	cfg, err := Load(&CLI{})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" || cfg.Server.Port != 8000 {
		t.Errorf("server = %s:%d, want 0.0.0.0:8000", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Upstream.TimeoutSeconds != 30 {
		t.Errorf("upstream.timeout_seconds = %d, want 30", cfg.Upstream.TimeoutSeconds)
	}
	if cfg.Upstream.UserAgent == "" {
		t.Error("upstream.user_agent default missing")
	}
	if cfg.RateLimit.MaxRequests != 60 || cfg.RateLimit.WindowMs != 60000 {
		t.Errorf("rate_limit defaults = %+v, want 60/60000ms", cfg.RateLimit)
	}
	if cfg.Log.Level != "info" || cfg.Log.Format != "json" {
		t.Errorf("log defaults = %+v, want info/json", cfg.Log)
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics.path default = %q, want /metrics", cfg.Metrics.Path)
	}
}

func TestLoad_CLIOverrides(t *testing.T) {
	path := writeConfig(t, `
[server]
host = "0.0.0.0"
port = 9000

[log]
level = "info"
`)

	cfg, err := Load(&CLI{Config: path, Host: "127.0.0.1", Port: 8080, LogLevel: "debug"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "127.0.0.1" {
		t.Errorf("host = %q, want CLI override %q", cfg.Server.Host, "127.0.0.1")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("port = %d, want CLI override 8080", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("log.level = %q, want CLI override %q", cfg.Log.Level, "debug")
	}
}

func TestLoad_MissingExplicitConfig(t *testing.T) {
	_, err := Load(&CLI{Config: filepath.Join(t.TempDir(), "nope.toml")})
	if err == nil {
		t.Fatal("Load() should fail for a missing explicit config path")
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "port out of range",
			content: "[server]\nport = 70000\n",
			wantErr: "server.port",
		},
		{
			name:    "negative timeout",
			content: "[upstream]\ntimeout_seconds = -1\n",
			wantErr: "upstream.timeout_seconds",
		},
		{
			name:    "negative max_rps",
			content: "[upstream]\nmax_rps = -2.0\n",
			wantErr: "upstream.max_rps",
		},
		{
			name:    "negative window",
			content: "[rate_limit]\nwindow_ms = -5\n",
			wantErr: "rate_limit.window_ms",
		},
		{
			name:    "bad log level",
			content: "[log]\nlevel = \"verbose\"\n",
			wantErr: "log.level",
		},
		{
			name:    "bad log format",
			content: "[log]\nformat = \"xml\"\n",
			wantErr: "log.format",
		},
		{
			name:    "metrics path without slash",
			content: "[metrics]\nenabled = true\npath = \"prom\"\n",
			wantErr: "metrics.path",
		},
		{
			name:    "metrics path conflicts with stream route",
			content: "[metrics]\nenabled = true\npath = \"/stream\"\n",
			wantErr: "reserved route",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := Load(&CLI{Config: path})
			if err == nil {
				t.Fatal("Load() should fail")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error %q does not mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestFindConfigInPaths(t *testing.T) {
	dir := t.TempDir()
	existing := filepath.Join(dir, "present.toml")
	if err := os.WriteFile(existing, []byte(""), 0o600); err != nil {
		t.Fatal(err)
	}

	got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml"), existing})
	if got != existing {
		t.Errorf("findConfigInPaths = %q, want %q", got, existing)
	}

	if got := findConfigInPaths([]string{filepath.Join(dir, "missing.toml")}); got != "" {
		t.Errorf("findConfigInPaths = %q, want empty", got)
	}
}

func TestAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8000}
	if got := s.Addr(); got != "127.0.0.1:8000" {
		t.Errorf("Addr() = %q, want %q", got, "127.0.0.1:8000")
	}
}
