// Package model defines shared types for the stream proxy.
package model

import (
	"context"
	"io"
	"net/http"
	"net/url"
)

// Mode selects how referer/origin headers are built for the upstream fetch.
type Mode string

const (
	// ModePassthrough forwards the client's referer/origin when present,
	// falling back to the target's own origin.
	ModePassthrough Mode = "passthrough"

	// ModeSpoof always sets referer/origin to the target's own origin,
	// overriding client-supplied values. Used for origins that reject
	// cross-origin requests.
	ModeSpoof Mode = "spoof"
)

// ParseMode maps a raw mode literal to a Mode. Unrecognized literals are
// kept by value but behave as passthrough.
func ParseMode(raw string) Mode {
	if raw == "" {
		return ModePassthrough
	}
	return Mode(raw)
}

// Spoof reports whether this mode requests header spoofing. Anything other
// than the spoof literal degrades to passthrough semantics.
func (m Mode) Spoof() bool {
	return m == ModeSpoof
}

// ProxyRequest is a validated inbound request to be relayed upstream.
type ProxyRequest struct {
	Ctx    context.Context
	Target *url.URL
	Mode   Mode
	Method string
	Header http.Header
}

// UpstreamResponse is the upstream response to be rewritten or streamed back.
// FinalURL is the URL that actually served the response after redirects;
// relative manifest URIs resolve against it, not the requested target.
type UpstreamResponse struct {
	StatusCode int
	Header     http.Header
	Body       io.ReadCloser
	FinalURL   *url.URL
}
