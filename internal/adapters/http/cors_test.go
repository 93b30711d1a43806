package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jobrunner/geoexport/internal/config"
)

func TestOriginHost(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"https://example.com", "example.com"},
		{"https://Example.COM:8080", "example.com"},
		{"https://deep.sub.example.com", "deep.sub.example.com"},
		{"http://localhost:3000", "localhost"},
		{"http://192.168.1.1:8080", "192.168.1.1"},
		{"http://[::1]:8080", "::1"},
		{"example.com", "example.com"},
		{"null", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := originHost(tt.origin); got != tt.want {
				t.Errorf("originHost(%q) = %q, want %q", tt.origin, got, tt.want)
			}
		})
	}
}

func TestOriginPolicy(t *testing.T) {
	policy := newOriginPolicy([]string{"https://maps.example.com/", "*.Example.org", " ", "http://[::1]:8080"})

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"exact", "https://maps.example.com", true},
		{"exact is case-insensitive", "https://MAPS.example.com", true},
		{"exact scheme mismatch", "http://maps.example.com", false},
		{"exact port mismatch", "https://maps.example.com:8443", false},
		{"wildcard subdomain", "https://ops.example.org", true},
		{"wildcard with port", "http://ops.example.org:8443", true},
		{"wildcard deep subdomain", "https://a.b.example.org", true},
		{"wildcard excludes apex", "https://example.org", false},
		{"wildcard suffix trick", "https://evilexample.org", false},
		{"ipv6 exact", "http://[::1]:8080", true},
		{"different domain", "https://example.net", false},
		{"opaque origin", "null", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := policy.allows(tt.origin); got != tt.want {
				t.Errorf("allows(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}

	if newOriginPolicy(nil).allows("https://maps.example.com") {
		t.Error("empty policy should allow nothing")
	}
}

func corsServer(origins ...string) *Server {
	return &Server{origins: newOriginPolicy(origins)}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name       string
		allowed    []string
		origin     string
		method     string
		wantOrigin string
		wantStatus int
	}{
		{"allowed POST", []string{"https://ops.example.com"}, "https://ops.example.com", http.MethodPost, "https://ops.example.com", http.StatusOK},
		{"allowed preflight", []string{"https://ops.example.com"}, "https://ops.example.com", http.MethodOptions, "https://ops.example.com", http.StatusNoContent},
		{"wildcard", []string{"*.example.com"}, "https://ops.example.com", http.MethodGet, "https://ops.example.com", http.StatusOK},
		{"not allowed", []string{"https://ops.example.com"}, "https://evil.com", http.MethodGet, "", http.StatusOK},
		{"no origin header", []string{"https://ops.example.com"}, "", http.MethodGet, "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := corsServer(tt.allowed...).corsMiddleware(next)

			req := httptest.NewRequest(tt.method, "/api/v1/exports", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}
			if got := rr.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
			if got := rr.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if tt.wantOrigin != "" {
				if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
					t.Errorf("Access-Control-Allow-Methods = %q", got)
				}
				if got := rr.Header().Get("Access-Control-Expose-Headers"); got != "Retry-After" {
					t.Errorf("Access-Control-Expose-Headers = %q, want Retry-After", got)
				}
			}
		})
	}
}

func TestCORSPreflightDoesNotStartExport(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/exports", nil)
	req.Header.Set("Origin", "https://ops.example.com")
	rr := httptest.NewRecorder()
	corsServer("https://ops.example.com").corsMiddleware(next).ServeHTTP(rr, req)

	if called {
		t.Error("preflight request should not reach the export handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}

func TestCORSConfigEnabled(t *testing.T) {
	if (&config.CORSConfig{}).Enabled() {
		t.Error("Enabled() = true for no origins")
	}
	if !(&config.CORSConfig{AllowedOrigins: []string{"*.example.com"}}).Enabled() {
		t.Error("Enabled() = false with an origin configured")
	}
}
