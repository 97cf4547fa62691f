// Package netutil normalizes client network addresses into the origin
// keys used by the presence registry.
package netutil

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// Normalize strips any port suffix and surrounding brackets from a raw
// address, yielding the bare host used as a presence origin key. Inputs
// that are not host:port pairs are returned trimmed but otherwise as-is.
func Normalize(addr string) string {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return addr
	}
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

// IsLocal reports whether an address belongs to a loopback or private
// range (or is the literal "localhost"). Such origins resolve to a
// local-network region instead of a geo lookup.
func IsLocal(addr string) bool {
	host := Normalize(addr)
	if host == "localhost" {
		return true
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast()
}

// ClientAddr extracts the originating client address of a request,
// preferring proxy-set headers over the socket peer. X-Forwarded-For may
// carry a chain; the first hop is the client.
func ClientAddr(r *http.Request) string {
	if v := r.Header.Get("X-Client-IP"); v != "" {
		return strings.TrimSpace(v)
	}
	if v := r.Header.Get("X-Real-IP"); v != "" {
		return strings.TrimSpace(v)
	}
	if v := r.Header.Get("X-Forwarded-For"); v != "" {
		first, _, _ := strings.Cut(v, ",")
		return strings.TrimSpace(first)
	}
	if v := r.Header.Get("Forwarded"); v != "" {
		for _, part := range strings.Split(v, ";") {
			part = strings.TrimSpace(part)
			if strings.HasPrefix(strings.ToLower(part), "for=") {
				return strings.Trim(part[4:], `"[]`)
			}
		}
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr // Fallback
	}
	return ip
}
