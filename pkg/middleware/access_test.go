package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nsriram/docsearch/pkg/ratelimit"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h := RateLimit(ratelimit.New(ctx, 2, time.Hour))(okHandler)

	send := func(path, remote, fwd string) int {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		req.RemoteAddr = remote
		if fwd != "" {
			req.Header.Set("X-Forwarded-For", fwd)
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for range 2 {
		if code := send("/api/v1/search", "10.0.0.1:5000", ""); code != http.StatusOK {
			t.Fatalf("status = %d", code)
		}
	}
	if code := send("/api/v1/search", "10.0.0.1:6000", ""); code != http.StatusTooManyRequests {
		t.Fatalf("third request status = %d, want 429", code)
	}
	if code := send("/health/ready", "10.0.0.1:6000", ""); code != http.StatusOK {
		t.Fatalf("health check limited: %d", code)
	}
	if code := send("/api/v1/search", "10.0.0.1:6000", "192.168.1.9, 10.0.0.1"); code != http.StatusOK {
		t.Fatalf("forwarded client shares a bucket: %d", code)
	}
}

func TestCORS(t *testing.T) {
	h := CORS(DefaultCORSConfig([]string{"https://docs.example.com"}))(okHandler)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://docs.example.com")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://docs.example.com" {
		t.Fatalf("allow origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/api/v1/search", nil)
	req.Header.Set("Origin", "https://evil.example.com")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("disallowed origin got CORS headers: %d %v", rec.Code, rec.Header())
	}
}
