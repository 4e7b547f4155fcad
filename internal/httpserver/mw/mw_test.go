package mw

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/fleetmx/fleetmx/internal/logger"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func doRequest(h http.Handler, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestAllowOnlyCIDRS(t *testing.T) {
	log := logger.New("error", false, "")

	tests := []struct {
		name       string
		allowed    []string
		remoteAddr string
		want       int
	}{
		{"exact ip allowed", []string{"10.0.0.5"}, "10.0.0.5:4431", http.StatusOK},
		{"cidr allowed", []string{"10.0.0.0/8"}, "10.1.2.3:999", http.StatusOK},
		{"outside cidr rejected", []string{"10.0.0.0/8"}, "192.168.1.9:999", http.StatusForbidden},
		{"empty list passes everyone", nil, "203.0.113.7:80", http.StatusOK},
		{"garbage entries ignored", []string{" ", "not-an-ip"}, "203.0.113.7:80", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := AllowOnlyCIDRS(tt.allowed, log)(okHandler())
			if got := doRequest(h, tt.remoteAddr).Code; got != tt.want {
				t.Errorf("status = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestRateLimitExhaustsBurst(t *testing.T) {
	h := RateLimit(RateLimitConfig{Burst: 3, PerMinute: 1})(okHandler())

	for i := 0; i < 3; i++ {
		if got := doRequest(h, "10.0.0.5:1000").Code; got != http.StatusOK {
			t.Fatalf("request %d: status = %d, want 200", i+1, got)
		}
	}

	rec := doRequest(h, "10.0.0.5:1000")
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429 after burst", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After header")
	}
	if rec.Header().Get("X-RateLimit-Remaining") != "0" {
		t.Errorf("remaining = %q, want 0", rec.Header().Get("X-RateLimit-Remaining"))
	}
}

func TestRateLimitIsolatesPeers(t *testing.T) {
	h := RateLimit(RateLimitConfig{Burst: 1, PerMinute: 1})(okHandler())

	if got := doRequest(h, "10.0.0.5:1000").Code; got != http.StatusOK {
		t.Fatalf("first peer: status = %d, want 200", got)
	}
	if got := doRequest(h, "10.0.0.5:2000").Code; got != http.StatusTooManyRequests {
		t.Fatalf("same ip, new port: status = %d, want 429", got)
	}
	if got := doRequest(h, "10.0.0.6:1000").Code; got != http.StatusOK {
		t.Fatalf("other peer: status = %d, want 200", got)
	}
}

func TestRateLimitRefills(t *testing.T) {
	l := newLimiter(RateLimitConfig{Burst: 1, PerMinute: 60})

	now := time.Now()
	if ok, _, _ := l.allow("10.0.0.5", now); !ok {
		t.Fatal("first request should pass")
	}
	if ok, _, retry := l.allow("10.0.0.5", now); ok || retry < 1 {
		t.Fatalf("second request should wait, got ok=%v retry=%d", ok, retry)
	}
	if ok, _, _ := l.allow("10.0.0.5", now.Add(2*time.Second)); !ok {
		t.Fatal("bucket should refill after two seconds at 60/min")
	}
}

func TestStatusWriterDefaultsTo200(t *testing.T) {
	rec := httptest.NewRecorder()
	ww := &statusWriter{ResponseWriter: rec}

	if _, err := ww.Write([]byte("body")); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ww.status != http.StatusOK {
		t.Errorf("status = %d, want 200 when handler never calls WriteHeader", ww.status)
	}
	if ww.bytes != 4 {
		t.Errorf("bytes = %d, want 4", ww.bytes)
	}
}
