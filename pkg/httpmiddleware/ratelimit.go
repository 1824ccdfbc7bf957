package httpmiddleware

import (
	"context"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig configures the per-client token bucket limiter.
type RateLimitConfig struct {
	// Max is the bucket size: the number of requests a client may burst, and
	// the number it may sustain per Window. Zero or less disables limiting.
	Max int
	// Window is the time it takes to refill an empty bucket.
	Window time.Duration
	// KeyFunc extracts the client key from a request.
	// If nil, ClientIP is used.
	KeyFunc func(*http.Request) string
	// Rules give matching paths a budget of their own. The first rule whose
	// prefix matches wins; other paths share the default budget.
	Rules []RateLimitRule
}

// RateLimitRule is a separate budget for paths starting with PathPrefix.
type RateLimitRule struct {
	PathPrefix string
	Max        int
	Window     time.Duration
}

type budget struct {
	name   string
	prefix string
	max    int
	window time.Duration
}

func (b budget) limit() rate.Limit {
	return rate.Every(b.window / time.Duration(b.max))
}

type bucket struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

type rateLimiter struct {
	keyFunc func(*http.Request) string
	rules   []budget
	def     budget
	// idle is how long an untouched bucket is kept; by then it is full again.
	idle time.Duration

	mu      sync.Mutex
	buckets map[string]*bucket
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		keyFunc: cfg.KeyFunc,
		def:     budget{name: "default", max: cfg.Max, window: cfg.Window},
		idle:    cfg.Window,
		buckets: make(map[string]*bucket),
	}
	if rl.keyFunc == nil {
		rl.keyFunc = ClientIP
	}
	for _, r := range cfg.Rules {
		rl.rules = append(rl.rules, budget{name: r.PathPrefix, prefix: r.PathPrefix, max: r.Max, window: r.Window})
		rl.idle = max(rl.idle, r.Window)
	}
	return rl
}

func (rl *rateLimiter) budgetFor(path string) budget {
	for _, b := range rl.rules {
		if strings.HasPrefix(path, b.prefix) {
			return b
		}
	}
	return rl.def
}

// take spends one token of key's bucket in b. When the bucket is empty it
// reports how long until the next token.
func (rl *rateLimiter) take(b budget, key string, now time.Time) (remaining int, retryAfter time.Duration, ok bool) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	id := b.name + "|" + key
	bk, found := rl.buckets[id]
	if !found {
		bk = &bucket{lim: rate.NewLimiter(b.limit(), b.max)}
		rl.buckets[id] = bk
	}
	bk.lastSeen = now

	res := bk.lim.ReserveN(now, 1)
	if !res.OK() {
		return 0, b.window, false
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return 0, delay, false
	}
	return int(math.Floor(bk.lim.TokensAt(now))), 0, true
}

// cleanup drops buckets that have been idle long enough to be full again.
func (rl *rateLimiter) cleanup(now time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	for id, bk := range rl.buckets {
		if now.Sub(bk.lastSeen) >= rl.idle {
			delete(rl.buckets, id)
		}
	}
}

func (rl *rateLimiter) startCleanup(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(2 * rl.idle)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				rl.cleanup(now)
			}
		}
	}()
}

// RateLimit returns a middleware that enforces a per-client token bucket.
// Rejected requests get 429 with the API error envelope and Retry-After.
// Every limited response carries X-RateLimit-Limit and X-RateLimit-Remaining.
//
// Buckets are never evicted; use RateLimitWithCleanup for long-running
// servers.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithCleanup is like RateLimit but evicts idle buckets in the
// background until ctx is cancelled.
func RateLimitWithCleanup(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	if rl.idle > 0 {
		rl.startCleanup(ctx)
	}
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			b := rl.budgetFor(r.URL.Path)
			if b.max <= 0 || b.window <= 0 {
				next.ServeHTTP(w, r)
				return
			}

			remaining, retryAfter, ok := rl.take(b, rl.keyFunc(r), time.Now())
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(b.max))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))

			if !ok {
				w.Header().Set("Retry-After", strconv.Itoa(max(1, int(math.Ceil(retryAfter.Seconds())))))
				WriteError(w, http.StatusTooManyRequests, KindRateLimited, "Too many requests, please retry later.")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP keys requests by the first X-Forwarded-For hop, then X-Real-IP,
// then the connection's remote host.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
