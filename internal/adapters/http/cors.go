package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/url"
	"strings"
)

// originPolicy decides which browser origins may call the export API.
// Entries are either full origins ("https://ops.example.com") or host
// wildcards ("*.example.com", any scheme and port, apex excluded).
type originPolicy struct {
	exact    map[string]struct{}
	suffixes []string // ".example.com"
}

func newOriginPolicy(allowed []string) originPolicy {
	p := originPolicy{exact: make(map[string]struct{}, len(allowed))}
	for _, o := range allowed {
		o = strings.TrimSpace(o)
		switch {
		case o == "":
		case strings.HasPrefix(o, "*."):
			p.suffixes = append(p.suffixes, strings.ToLower(o[1:]))
		default:
			p.exact[strings.TrimSuffix(strings.ToLower(o), "/")] = struct{}{}
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if _, ok := p.exact[strings.ToLower(origin)]; ok {
		return true
	}
	if len(p.suffixes) == 0 {
		return false
	}
	host := originHost(origin)
	for _, suffix := range p.suffixes {
		if len(host) > len(suffix) && strings.HasSuffix(host, suffix) {
			return true
		}
	}
	return false
}

// originHost returns the lower-cased host of an Origin header value,
// without port. Bare hosts are accepted.
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

// corsMiddleware answers preflights and marks responses for allowed origins.
// Retry-After is exposed so browser clients can back off on 409 and 429.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Add("Vary", "Origin")

		if origin := r.Header.Get("Origin"); origin != "" && s.origins.allows(origin) {
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Accept, Content-Type, Authorization")
			h.Set("Access-Control-Expose-Headers", "Retry-After")
			h.Set("Access-Control-Max-Age", "86400")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
