package api

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// extractClientIP returns the client address used for device binding and
// rate limiting. Forwarded headers are only honored when the direct peer
// falls inside one of the configured trusted proxy ranges — otherwise any
// client could spoof its way around the device limit by setting
// X-Forwarded-For.
//
// When no trusted proxies are configured (the default), RemoteAddr is
// always used.
func (a *API) extractClientIP(r *http.Request) string {
	remoteIP, _ := parseIPCandidate(r.RemoteAddr)

	proxyTrusted := false
	if len(a.trustedProxies) > 0 && remoteIP != "" {
		if addr, err := netip.ParseAddr(remoteIP); err == nil {
			for _, prefix := range a.trustedProxies {
				if prefix.Contains(addr) {
					proxyTrusted = true
					break
				}
			}
		}
	}

	if proxyTrusted {
		if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
			for _, part := range strings.Split(xff, ",") {
				if ip, ok := parseIPCandidate(part); ok {
					return ip
				}
			}
		}
		if xrip := strings.TrimSpace(r.Header.Get("X-Real-IP")); xrip != "" {
			if ip, ok := parseIPCandidate(xrip); ok {
				return ip
			}
		}
	}

	return remoteIP
}

// parseIPCandidate normalizes a raw address that may carry a port, IPv6
// brackets, or a zone suffix.
func parseIPCandidate(raw string) (string, bool) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return "", false
	}
	if host, _, err := net.SplitHostPort(s); err == nil {
		s = host
	}
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}
	if addr, err := netip.ParseAddr(s); err == nil {
		return addr.String(), true
	}
	return "", false
}

// ParseTrustedProxies parses a list of CIDR ranges (bare addresses are
// accepted as /32 or /128) for WithTrustedProxies.
func ParseTrustedProxies(specs []string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if !strings.Contains(spec, "/") {
			addr, err := netip.ParseAddr(spec)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(spec)
		if err != nil {
			return nil, err
		}
		prefixes = append(prefixes, prefix)
	}
	return prefixes, nil
}
