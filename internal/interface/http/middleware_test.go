package http

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/hostel-hub/hostel-registry/pkg/logger"
)

func newLimitedServer(t *testing.T, perMinute int, trusted ...string) *Server {
	t.Helper()

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = perMinute
	cfg.Clock = testclock.NewClock(time.Date(2024, time.September, 2, 8, 0, 0, 0, time.UTC))
	for _, p := range trusted {
		cfg.TrustedProxies = append(cfg.TrustedProxies, netip.MustParsePrefix(p))
	}

	srv := NewServer(cfg, Dependencies{Logger: logger.Nop()})
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func liveRequest(remote string, header map[string]string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/live", nil)
	req.RemoteAddr = remote
	for k, v := range header {
		req.Header.Set(k, v)
	}
	return req
}

func TestClientIP(t *testing.T) {
	srv := newLimitedServer(t, 0, "10.0.0.0/8")

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{"direct peer", "203.0.113.7:51000", nil, "203.0.113.7"},
		{"spoofed xff from untrusted peer", "203.0.113.7:51000", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "203.0.113.7"},
		{"spoofed real ip from untrusted peer", "203.0.113.7:51000", map[string]string{"X-Real-IP": "198.51.100.1"}, "203.0.113.7"},
		{"trusted proxy", "10.0.0.2:443", map[string]string{"X-Forwarded-For": "198.51.100.1"}, "198.51.100.1"},
		{"client-supplied hop before proxy", "10.0.0.2:443", map[string]string{"X-Forwarded-For": "1.2.3.4, 198.51.100.1"}, "198.51.100.1"},
		{"proxy chain", "10.0.0.2:443", map[string]string{"X-Forwarded-For": "198.51.100.1, 10.1.1.1"}, "198.51.100.1"},
		{"trusted proxy real ip", "10.0.0.2:443", map[string]string{"X-Real-IP": "198.51.100.9"}, "198.51.100.9"},
		{"trusted proxy without headers", "10.0.0.2:443", nil, "10.0.0.2"},
		{"ipv6 peer", "[2001:db8::1]:8080", nil, "2001:db8::1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, srv.clientIP(liveRequest(tt.remote, tt.header)))
		})
	}
}

func TestRateLimit_IgnoresSpoofedForwardedFor(t *testing.T) {
	srv := newLimitedServer(t, 2)
	h := srv.Handler()

	for i, xff := range []string{"198.51.100.1", "198.51.100.2", "198.51.100.3"} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, liveRequest("203.0.113.7:51000", map[string]string{"X-Forwarded-For": xff}))
		if i < 2 {
			assert.Equal(t, http.StatusOK, rec.Code, xff)
			continue
		}
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))
	}

	// Another peer has its own budget.
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, liveRequest("203.0.113.8:51000", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimiter_WindowResets(t *testing.T) {
	clk := testclock.NewClock(time.Date(2024, time.September, 2, 8, 0, 0, 0, time.UTC))
	rl := newRateLimiter(clk, 1, time.Minute)
	defer rl.close()

	ok, _ := rl.allow("a")
	assert.True(t, ok)

	clk.Advance(20 * time.Second)
	ok, wait := rl.allow("a")
	assert.False(t, ok)
	assert.Equal(t, 40*time.Second, wait)

	clk.Advance(40 * time.Second)
	ok, _ = rl.allow("a")
	assert.True(t, ok)

	clk.Advance(time.Minute)
	rl.sweep()
	assert.Zero(t, rl.size())
}

func TestShutdown_StopsRateLimiter(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 10
	srv := NewServer(cfg, Dependencies{Logger: logger.Nop()})

	require.NoError(t, srv.Shutdown(context.Background()))
	require.NoError(t, srv.Shutdown(context.Background()))
}

func TestCORS_AllowsAdminKeyHeader(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RateLimitPerMinute = 0
	cfg.AllowedOrigins = []string{"https://warden.example"}
	h := NewServer(cfg, Dependencies{Logger: logger.Nop()}).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/counters/A", nil)
	req.Header.Set("Origin", "https://warden.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	req.Header.Set("Access-Control-Request-Headers", "x-admin-key, content-type")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://warden.example", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "X-Admin-Key")
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPut)

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/counters/A", nil)
	req.Header.Set("Origin", "https://elsewhere.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
