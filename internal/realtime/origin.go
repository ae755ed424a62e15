package realtime

import (
	"net"
	"net/http"
	"net/url"
	"strings"
)

type originPolicy struct {
	any     bool
	allowed map[string]struct{}
}

func newOriginPolicy(origins []string) originPolicy {
	policy := originPolicy{allowed: make(map[string]struct{}, len(origins))}
	for _, origin := range origins {
		origin = canonicalOrigin(origin)
		switch origin {
		case "":
		case "*":
			policy.any = true
		default:
			policy.allowed[origin] = struct{}{}
		}
	}
	return policy
}

// accepts is the upgrader's CheckOrigin. Requests without an Origin header
// come from non-browser clients and are accepted.
func (p originPolicy) accepts(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || p.any {
		return true
	}
	if _, ok := p.allowed[canonicalOrigin(origin)]; ok {
		return true
	}

	host := originHost(origin)
	if host == "" {
		return false
	}
	return strings.EqualFold(host, stripPort(r.Host)) || isLoopback(host)
}

func canonicalOrigin(origin string) string {
	return strings.ToLower(strings.TrimRight(strings.TrimSpace(origin), "/"))
}

func originHost(origin string) string {
	parsed, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || parsed.Host == "" {
		return ""
	}
	return parsed.Hostname()
}

func stripPort(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}
