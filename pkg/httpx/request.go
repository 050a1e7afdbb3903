package httpx

import (
	"net"
	"net/http"
	"strings"
)

// IPConfig holds configuration for client IP extraction.
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP returns the canonical client IP for the request. Forwarding
// headers are honored only when the direct peer is a trusted proxy, so a
// client cannot spoof its identity by setting X-Forwarded-For itself.
// IPv6 addresses are lowercased so map lookups are case-insensitive.
func ExtractClientIP(r *http.Request, cfg *IPConfig) string {
	remote := remoteAddr(r)

	if cfg != nil && isTrustedProxy(remote, cfg.TrustedProxies) {
		// X-Forwarded-For may contain a chain; take the first valid address.
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip := strings.TrimSpace(part); isValidIP(ip) {
					return CanonicalIP(ip)
				}
			}
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" && isValidIP(xri) {
			return CanonicalIP(xri)
		}
	}

	return CanonicalIP(remote)
}

// CanonicalIP normalizes an IP string for use as a map key.
func CanonicalIP(ip string) string {
	return strings.ToLower(strings.TrimSpace(ip))
}

func remoteAddr(r *http.Request) string {
	if r.RemoteAddr == "" {
		return "unknown"
	}
	if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return ip
	}
	return r.RemoteAddr
}

func isTrustedProxy(ip string, trusted []string) bool {
	if len(trusted) == 0 {
		return false
	}
	peer := net.ParseIP(ip)
	if peer == nil {
		return false
	}
	for _, cidr := range trusted {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(peer) {
			return true
		}
	}
	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
