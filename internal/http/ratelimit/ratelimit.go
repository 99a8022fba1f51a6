// Package ratelimit throttles requests per client address.
package ratelimit

import (
	"net"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const defaultMaxEntries = 10000

// Limiter keeps one token bucket per client address. Entries idle for twice
// the sweep interval are dropped, and the table never exceeds maxEntries.
type Limiter struct {
	mu       sync.Mutex
	clients  map[netip.Addr]*client
	rate     rate.Limit
	burst    int
	sweep    time.Duration
	max      int
	proxies  []netip.Prefix
	logger   *zap.Logger
	now      func() time.Time
	stop     chan struct{}
	stopOnce sync.Once
}

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// New returns a limiter allowing r requests per second with burst b.
// trustedProxies lists addresses or CIDR ranges whose X-Forwarded-For and
// X-Real-IP headers are honoured; when empty every peer is trusted.
// Invalid entries are logged and skipped. Call Close to stop the sweeper.
func New(r rate.Limit, b int, sweep time.Duration, trustedProxies []string, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Limiter{
		clients: make(map[netip.Addr]*client),
		rate:    r,
		burst:   b,
		sweep:   sweep,
		max:     defaultMaxEntries,
		logger:  logger,
		now:     time.Now,
		stop:    make(chan struct{}),
	}
	for _, entry := range trustedProxies {
		prefix, err := parsePrefix(entry)
		if err != nil {
			logger.Warn("ignoring trusted proxy", zap.String("entry", entry), zap.Error(err))
			continue
		}
		l.proxies = append(l.proxies, prefix)
	}
	if len(l.proxies) == 0 {
		logger.Warn("no trusted proxies configured, forwarded headers are trusted from every peer")
	}

	go l.sweepLoop()
	return l
}

// Close stops the background sweeper.
func (l *Limiter) Close() {
	l.stopOnce.Do(func() { close(l.stop) })
}

// Allow reports whether addr may make another request now.
func (l *Limiter) Allow(addr netip.Addr) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[addr]
	if !ok {
		if len(l.clients) >= l.max {
			l.evictOldest()
		}
		c = &client{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.clients[addr] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

func (l *Limiter) evictOldest() {
	var oldest netip.Addr
	var oldestSeen time.Time
	for addr, c := range l.clients {
		if !oldest.IsValid() || c.lastSeen.Before(oldestSeen) {
			oldest = addr
			oldestSeen = c.lastSeen
		}
	}
	delete(l.clients, oldest)
}

func (l *Limiter) sweepLoop() {
	ticker := time.NewTicker(l.sweep)
	defer ticker.Stop()

	for {
		select {
		case <-l.stop:
			return
		case <-ticker.C:
			l.removeIdle()
		}
	}
}

func (l *Limiter) removeIdle() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-2 * l.sweep)
	for addr, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, addr)
		}
	}
}

func (l *Limiter) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}

// Middleware rejects requests over the limit with 429.
func (l *Limiter) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			addr := l.ClientAddr(r)
			if !l.Allow(addr) {
				l.logger.Debug("rate limit exceeded", zap.Stringer("client", addr), zap.String("path", r.URL.Path))
				w.Header().Set("Retry-After", "1")
				http.Error(w, "rate limit exceeded", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientAddr returns the address a request is attributed to. Forwarded
// headers are only read when the peer is a trusted proxy.
func (l *Limiter) ClientAddr(r *http.Request) netip.Addr {
	peer := parseAddr(r.RemoteAddr)
	if len(l.proxies) > 0 && !l.trusted(peer) {
		return peer
	}

	// X-Forwarded-For is "client, proxy1, proxy2".
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if addr, err := netip.ParseAddr(strings.TrimSpace(first)); err == nil {
			return addr.Unmap()
		}
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if addr, err := netip.ParseAddr(strings.TrimSpace(xri)); err == nil {
			return addr.Unmap()
		}
	}
	return peer
}

func (l *Limiter) trusted(addr netip.Addr) bool {
	for _, p := range l.proxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parsePrefix(s string) (netip.Prefix, error) {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		p, err := netip.ParsePrefix(s)
		return p.Masked(), err
	}
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Prefix{}, err
	}
	addr = addr.Unmap()
	return netip.PrefixFrom(addr, addr.BitLen()), nil
}

// parseAddr accepts "host:port" or a bare address. Unparseable input maps
// to the zero Addr, which then shares a single bucket.
func parseAddr(remote string) netip.Addr {
	host := remote
	if h, _, err := net.SplitHostPort(remote); err == nil {
		host = h
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return addr.Unmap()
}
