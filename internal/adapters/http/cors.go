package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strings"
)

const (
	corsAllowMethods = "GET, POST, DELETE, OPTIONS"
	corsAllowHeaders = "Accept, Content-Type, Authorization, " + RequestIDHeader
	corsMaxAge       = "86400"
)

// originPolicy decides which browser origins may call the API. Patterns are
// exact origins, "*.domain" for any subdomain, or "*" for every origin.
type originPolicy struct {
	any      bool
	exact    map[string]struct{}
	suffixes []string
}

func newOriginPolicy(patterns []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(patterns))}
	for _, pattern := range patterns {
		pattern = strings.TrimSpace(pattern)
		switch {
		case pattern == "*":
			p.any = true
		case strings.HasPrefix(pattern, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(pattern[1:]))
		case pattern != "":
			p.exact[strings.TrimSuffix(pattern, "/")] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if origin == "" {
		return false
	}
	if p.any {
		return true
	}
	if _, ok := p.exact[origin]; ok {
		return true
	}

	host := originHost(origin)
	for _, suffix := range p.suffixes {
		// "*.example.com" covers sub.example.com, never example.com itself
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// originHost returns the lower-cased host of an Origin header value.
func originHost(origin string) string {
	if !strings.Contains(origin, "://") {
		origin = "//" + origin
	}
	u, err := url.Parse(origin)
	if err != nil {
		return ""
	}
	return strings.ToLower(u.Hostname())
}

// corsMiddleware answers preflights and decorates responses for allowed
// origins.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	policy := newOriginPolicy(s.config.CORS.AllowedOrigins)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := r.Header.Get("Origin"); policy.allows(origin) {
			h := w.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Expose-Headers", RequestIDHeader)
			h.Set("Access-Control-Max-Age", corsMaxAge)
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}
