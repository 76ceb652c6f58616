// Package guard classifies target hostnames as public or private to block
// SSRF-prone proxy targets before any network call is issued.
package guard

import (
	"strconv"
	"strings"
)

// IsPrivateHost reports whether hostname names a private, loopback, or
// link-local target. The check operates on the literal hostname/IP string
// only; DNS names are never resolved, so a public-looking domain that
// resolves to a private address is not blocked. Known limitation, kept
// deliberately: closing it requires resolving at fetch time and pinning the
// resolved address, which the current threat model does not demand.
func IsPrivateHost(hostname string) bool {
	host := strings.ToLower(strings.TrimSpace(hostname))

	if host == "localhost" || strings.HasSuffix(host, ".local") {
		return true
	}

	if strings.Contains(host, ":") {
		return isPrivateIPv6(host)
	}

	if octets, ok := parseDottedQuad(host); ok {
		return isPrivateIPv4(octets)
	}

	// Everything else is a DNS name; treated as public (see above).
	return false
}

// parseDottedQuad parses a strict a.b.c.d IPv4 literal. The second return is
// false when host is not shaped like a dotted quad at all; a malformed quad
// (octet out of range, non-numeric part) returns ok=true with a nil slice so
// the caller treats it as private rather than letting it through.
func parseDottedQuad(host string) ([4]int, bool) {
	parts := strings.Split(host, ".")
	if len(parts) != 4 || !allDigits(parts) {
		// Not shaped like an IP; a DNS name, handled by the caller.
		return [4]int{}, false
	}

	var octets [4]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n > 255 {
			return [4]int{-1, -1, -1, -1}, true
		}
		octets[i] = n
	}
	return octets, true
}

func allDigits(parts []string) bool {
	for _, p := range parts {
		if p == "" {
			return false
		}
		for _, r := range p {
			if r < '0' || r > '9' {
				return false
			}
		}
	}
	return true
}

func isPrivateIPv4(o [4]int) bool {
	if o[0] < 0 {
		// Malformed quad: fail closed.
		return true
	}
	switch {
	case o[0] == 10, o[0] == 127, o[0] == 0:
		return true
	case o[0] == 169 && o[1] == 254:
		return true
	case o[0] == 192 && o[1] == 168:
		return true
	case o[0] == 172 && o[1] >= 16 && o[1] <= 31:
		return true
	}
	return false
}

func isPrivateIPv6(host string) bool {
	// Bracketed literals arrive stripped by url.Hostname(), but tolerate both.
	host = strings.Trim(host, "[]")
	if host == "::1" {
		return true
	}
	return strings.HasPrefix(host, "fc") ||
		strings.HasPrefix(host, "fd") ||
		strings.HasPrefix(host, "fe80")
}
