package middleware

import (
	"encoding/json"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// client holds the token bucket for one caller IP.
type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientTable maps caller IPs to their limiters and evicts entries that
// have been idle longer than the TTL.
type clientTable struct {
	mu      sync.Mutex
	clients map[string]*client
	rps     int
	burst   int
	ttl     time.Duration
	nowFunc func() time.Time
}

func newClientTable(rps, burst int, ttl time.Duration) *clientTable {
	t := &clientTable{
		clients: make(map[string]*client),
		rps:     rps,
		burst:   burst,
		ttl:     ttl,
		nowFunc: time.Now,
	}
	go t.evictLoop()
	return t
}

// limiterFor returns the limiter for the given IP, creating one on first
// sight, and refreshes its lastSeen stamp.
func (t *clientTable) limiterFor(ip string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	c, ok := t.clients[ip]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Limit(t.rps), t.burst)}
		t.clients[ip] = c
	}
	c.lastSeen = t.nowFunc()
	return c.limiter
}

func (t *clientTable) evictLoop() {
	ticker := time.NewTicker(t.ttl)
	defer ticker.Stop()
	for range ticker.C {
		t.evictIdle()
	}
}

func (t *clientTable) evictIdle() {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.nowFunc()
	for ip, c := range t.clients {
		if now.Sub(c.lastSeen) > t.ttl {
			delete(t.clients, ip)
		}
	}
}

func (t *clientTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.clients)
}

// RateLimit enforces a per-IP token bucket on the wrapped routes. Callers
// over the limit get HTTP 429.
func RateLimit(rps, burst int, logger *slog.Logger) func(http.Handler) http.Handler {
	const idleTTL = 3 * time.Minute
	table := newClientTable(rps, burst, idleTTL)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)
			if !table.limiterFor(ip).Allow() {
				logger.WarnContext(r.Context(), "rate limit exceeded",
					slog.String("ip", ip),
					slog.String("path", r.URL.Path),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]string{
					"code":    "RATE_LIMITED",
					"message": "too many requests",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP resolves the caller address, preferring proxy headers over the
// raw RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// First hop in the chain is the original client.
		first, _, _ := strings.Cut(xff, ",")
		if ip := net.ParseIP(strings.TrimSpace(first)); ip != nil {
			return ip.String()
		}
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		if ip := net.ParseIP(xri); ip != nil {
			return ip.String()
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
