package mw

import (
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/nodekeeper/internal/utils"
)

type RateLimitConfig struct {
	Burst             int
	RefillPerIPPerMin int
	MaxEntries        int           // sweep early once this many clients are tracked
	SweepInterval     time.Duration // default 1m
	IdleTTL           time.Duration // default 15m
	TrustProxy        bool          // resolve the client IP from proxy headers
	KeyParam          string        // chi URL param added to the bucket key (ex: "service")
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = time.Minute
	}
	if c.IdleTTL <= 0 {
		c.IdleTTL = 15 * time.Minute
	}
	c.Burst = max(c.Burst, 1)
	c.RefillPerIPPerMin = max(c.RefillPerIPPerMin, 1)
	return c
}

// tokenBucket refills continuously at rate tokens per second up to capacity.
type tokenBucket struct {
	tokens  float64
	updated time.Time
	seen    time.Time
}

// take spends one token. On refusal it returns how long until one is available.
func (b *tokenBucket) take(now time.Time, rate, capacity float64) (bool, int, time.Duration) {
	if dt := now.Sub(b.updated).Seconds(); dt > 0 {
		b.tokens = math.Min(capacity, b.tokens+dt*rate)
		b.updated = now
	}
	if b.tokens < 1 {
		return false, 0, time.Duration((1 - b.tokens) / rate * float64(time.Second))
	}
	b.tokens--
	b.seen = now
	return true, int(b.tokens), 0
}

type limiter struct {
	cfg       RateLimitConfig
	rate      float64 // tokens per second
	capacity  float64
	now       func() time.Time
	mu        sync.Mutex
	clients   map[string]*tokenBucket
	lastSweep time.Time
}

func newLimiter(cfg RateLimitConfig) *limiter {
	cfg = cfg.withDefaults()
	return &limiter{
		cfg:       cfg,
		rate:      float64(cfg.RefillPerIPPerMin) / 60,
		capacity:  float64(cfg.Burst),
		now:       time.Now,
		clients:   make(map[string]*tokenBucket),
		lastSweep: time.Now(),
	}
}

// key is the client IP, scoped by the configured URL param when present.
func (l *limiter) key(r *http.Request) string {
	ip := utils.ClientIP(r, l.cfg.TrustProxy)
	if l.cfg.KeyParam == "" {
		return ip
	}
	return ip + "|" + chi.URLParam(r, l.cfg.KeyParam)
}

// allow takes a token from key's bucket and reports the tokens left, or the
// whole seconds to wait before retrying.
func (l *limiter) allow(key string, now time.Time) (ok bool, remaining int, retryAfterSec int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if now.Sub(l.lastSweep) >= l.cfg.SweepInterval ||
		(l.cfg.MaxEntries > 0 && len(l.clients) >= l.cfg.MaxEntries) {
		l.sweep(now)
	}

	b, found := l.clients[key]
	if !found {
		b = &tokenBucket{tokens: l.capacity, updated: now, seen: now}
		l.clients[key] = b
	}

	ok, remaining, wait := b.take(now, l.rate, l.capacity)
	if ok {
		return true, remaining, 0
	}
	return false, 0, max(int(math.Ceil(wait.Seconds())), 1)
}

// sweep forgets clients idle for longer than IdleTTL. Caller holds l.mu.
func (l *limiter) sweep(now time.Time) {
	for key, b := range l.clients {
		if now.Sub(b.seen) > l.cfg.IdleTTL {
			delete(l.clients, key)
		}
	}
	l.lastSweep = now
}

// RateLimit is a per-client token bucket. The X-RateLimit headers are set
// before the wrapped handler writes its response.
func RateLimit(cfg RateLimitConfig) func(http.Handler) http.Handler {
	return newLimiter(cfg).middleware
}

func (l *limiter) middleware(next http.Handler) http.Handler {
	limit := strconv.Itoa(l.cfg.Burst)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, remaining, retry := l.allow(l.key(r), l.now())

		h := w.Header()
		h.Set("X-RateLimit-Limit", limit)
		h.Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		if !ok {
			h.Set("Retry-After", strconv.Itoa(retry))
			reject(w, http.StatusTooManyRequests)
			return
		}
		next.ServeHTTP(w, r)
	})
}
