package http

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for IP extraction and validation
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP extracts the real client IP address from the request.
// The network origin anchors every identity key, so two rules apply that a
// plain logging-oriented extractor would not need:
//
//   - forwarded headers are honored only when the request arrives from a
//     trusted proxy, otherwise an attacker could rotate identities (and
//     escape escalation) by spoofing X-Forwarded-For;
//   - the returned IP is canonicalized, so the same client cannot appear
//     under several keys by varying its textual representation.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config != nil && isTrustedProxy(remoteIP, config.TrustedProxies) {
		// X-Forwarded-For can contain multiple IPs, take the first real one
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, ip := range strings.Split(xff, ",") {
				if canonical := canonicalIP(strings.TrimSpace(ip)); canonical != "" {
					return canonical
				}
			}
		}

		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			if canonical := canonicalIP(xri); canonical != "" {
				return canonical
			}
		}
	}

	if canonical := canonicalIP(remoteIP); canonical != "" {
		return canonical
	}
	return remoteIP
}

// getRemoteAddr extracts the IP address from RemoteAddr (removing port if present)
func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

// isTrustedProxy checks if an IP address is within any of the trusted proxy CIDR ranges
func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue // Skip invalid CIDR ranges
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

// canonicalIP parses and re-renders an IP so equivalent textual forms
// (IPv6 case, leading zeros, IPv4-mapped IPv6) collapse to one key.
// Returns "" for anything that is not a valid address.
func canonicalIP(ip string) string {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return ""
	}
	if v4 := parsed.To4(); v4 != nil {
		return v4.String()
	}
	return parsed.String()
}
