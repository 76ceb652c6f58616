// Package ratelimit implements a fixed-window per-client request limiter.
//
// The algorithm is a fixed-window counter, not a sliding log: each client
// gets a counter that resets at fixed boundaries. Up to 2x the configured
// maximum can be admitted across a window edge; that burst is an accepted
// property of the design, traded for O(1) admission.
package ratelimit

import (
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// sweepProbability is the per-call chance of garbage-collecting expired
// windows. The sweep is opportunistic; memory is bounded statistically, not
// by a hard TTL. The ledger is in-process only, so a restart clears it.
const sweepProbability = 0.01

type entry struct {
	count   int
	resetAt time.Time
}

// Result reports the outcome of an admission check.
type Result struct {
	Allowed    bool
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

// Limiter admits or rejects requests per client using a fixed window.
// Safe for concurrent use: per-key increments are atomic via the concurrent
// map's Compute.
type Limiter struct {
	entries *xsync.MapOf[string, entry]
	max     int
	window  time.Duration

	now func() time.Time // stubbed in tests
}

// New creates a Limiter admitting max requests per window per client.
func New(max int, window time.Duration) *Limiter {
	return &Limiter{
		entries: xsync.NewMapOf[string, entry](),
		max:     max,
		window:  window,
		now:     time.Now,
	}
}

// Max returns the configured per-window request budget.
func (l *Limiter) Max() int {
	return l.max
}

// Window returns the configured window length.
func (l *Limiter) Window() time.Duration {
	return l.window
}

// Admit checks and consumes one request slot for clientID.
func (l *Limiter) Admit(clientID string) Result {
	now := l.now()

	e, _ := l.entries.Compute(clientID, func(old entry, loaded bool) (entry, bool) {
		if !loaded || !now.Before(old.resetAt) {
			old = entry{resetAt: now.Add(l.window)}
		}
		old.count++
		return old, false
	})

	if rand.Float64() < sweepProbability {
		l.sweep(now)
	}

	res := Result{
		Allowed: e.count <= l.max,
		ResetAt: e.resetAt,
	}
	if res.Allowed {
		res.Remaining = l.max - e.count
	} else {
		res.RetryAfter = e.resetAt.Sub(now)
	}
	return res
}

// sweep drops entries whose window has expired. Entries racing with a
// concurrent Admit are simply recreated on the next request, so a stale
// delete here loses nothing.
func (l *Limiter) sweep(now time.Time) {
	l.entries.Range(func(key string, e entry) bool {
		if !now.Before(e.resetAt) {
			l.entries.Delete(key)
		}
		return true
	})
}

// ClientID derives a client identifier from forwarding headers: the first
// X-Forwarded-For entry, else X-Real-IP, else the literal "unknown". All
// unidentified clients therefore share one bucket; degraded fairness is
// intentional for a soft throttle behind known proxies.
func ClientID(header http.Header) string {
	if fwd := header.Get("X-Forwarded-For"); fwd != "" {
		first, _, _ := strings.Cut(fwd, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if ip := header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	return "unknown"
}
