package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"net/netip"
	"testing"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func newTestLimiter(t *testing.T, r rate.Limit, b int, proxies []string) *Limiter {
	t.Helper()
	l := New(r, b, time.Hour, proxies, zap.NewNop())
	t.Cleanup(l.Close)
	return l
}

func TestAllowBurstPerClient(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(0.001), 2, nil)
	a := netip.MustParseAddr("192.0.2.1")
	b := netip.MustParseAddr("192.0.2.2")

	if !l.Allow(a) || !l.Allow(a) {
		t.Fatal("burst should allow two requests")
	}
	if l.Allow(a) {
		t.Fatal("third request should be limited")
	}
	if !l.Allow(b) {
		t.Fatal("other client should have its own bucket")
	}
}

func TestEvictsOldestWhenFull(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(1), 1, nil)
	l.max = 2
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	tick := 0
	l.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Second)
	}

	first := netip.MustParseAddr("198.51.100.1")
	l.Allow(first)
	l.Allow(netip.MustParseAddr("198.51.100.2"))
	l.Allow(netip.MustParseAddr("198.51.100.3"))

	if l.size() != 2 {
		t.Fatalf("size = %d, want 2", l.size())
	}
	l.mu.Lock()
	_, ok := l.clients[first]
	l.mu.Unlock()
	if ok {
		t.Fatal("oldest client should have been evicted")
	}
}

func TestRemoveIdle(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(1), 1, nil)
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }
	l.Allow(netip.MustParseAddr("203.0.113.9"))

	now = now.Add(3 * time.Hour)
	l.removeIdle()
	if l.size() != 0 {
		t.Fatalf("size = %d, want 0", l.size())
	}
}

func TestClientAddr(t *testing.T) {
	tests := []struct {
		name    string
		proxies []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies trusts forwarded", nil, "10.0.0.1:1234", map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, "203.0.113.5"},
		{"untrusted peer ignores headers", []string{"10.0.0.0/8"}, "192.0.2.7:80", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "192.0.2.7"},
		{"trusted peer uses forwarded", []string{"10.0.0.0/8"}, "10.1.2.3:80", map[string]string{"X-Forwarded-For": "203.0.113.5"}, "203.0.113.5"},
		{"single ip proxy", []string{"10.1.2.3"}, "10.1.2.3:80", map[string]string{"X-Real-IP": "203.0.113.6"}, "203.0.113.6"},
		{"bad forwarded falls back", []string{"10.0.0.0/8"}, "10.1.2.3:80", map[string]string{"X-Forwarded-For": "junk"}, "10.1.2.3"},
		{"mapped ipv4", nil, "[::ffff:192.0.2.9]:443", nil, "192.0.2.9"},
		{"ipv6", []string{"2001:db8::/32"}, "[2001:db8::1]:443", map[string]string{"X-Forwarded-For": "2001:db8:ffff::2"}, "2001:db8:ffff::2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLimiter(t, rate.Limit(1), 1, tt.proxies)
			r := httptest.NewRequest(http.MethodGet, "/", nil)
			r.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				r.Header.Set(k, v)
			}
			if got := l.ClientAddr(r).String(); got != tt.want {
				t.Fatalf("ClientAddr() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestInvalidProxyEntriesSkipped(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(1), 1, []string{"not-an-ip", "10.0.0.0/8", "300.1.1.1/24"})
	if len(l.proxies) != 1 {
		t.Fatalf("proxies = %v, want one valid entry", l.proxies)
	}
}

func TestMiddleware(t *testing.T) {
	l := newTestLimiter(t, rate.Limit(0.001), 1, nil)
	h := l.Middleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))

	do := func() *httptest.ResponseRecorder {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.RemoteAddr = "192.0.2.1:5555"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, r)
		return w
	}
	if w := do(); w.Code != http.StatusNoContent {
		t.Fatalf("first status = %d", w.Code)
	}
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("missing Retry-After")
	}
}
