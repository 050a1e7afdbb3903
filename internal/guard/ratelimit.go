package guard

import (
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"sync"
	"time"

	"github.com/vndeals/backend/internal/metrics"
	"github.com/vndeals/backend/pkg/httpx"
)

// Profile configures one rate-limit class. Each route class gets its own
// limiter and therefore its own bucket map.
type Profile struct {
	Window  time.Duration
	Max     int
	Message string
}

type bucket struct {
	count   int
	resetAt time.Time
}

// Limiter counts requests per client IP inside a fixed window. Blocked IPs
// pass through uncounted so the block gate's 403 is never shadowed by a 429;
// whitelisted IPs are never limited.
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	engine  *Engine
	profile Profile
	ipCfg   *httpx.IPConfig
	logger  *slog.Logger
	now     func() time.Time
}

func NewLimiter(engine *Engine, profile Profile, ipCfg *httpx.IPConfig, logger *slog.Logger) *Limiter {
	if profile.Message == "" {
		profile.Message = "Too many requests, please try again later"
	}
	return &Limiter{
		buckets: make(map[string]*bucket),
		engine:  engine,
		profile: profile,
		ipCfg:   ipCfg,
		logger:  logger,
		now:     time.Now,
	}
}

// Decision is the outcome of a single rate-limit check.
type Decision struct {
	Allowed    bool
	Count      int
	RetryAfter int // seconds until the window resets, on rejection
}

// Check applies the limit for one request from ip. The count inspection and
// the increment happen under a single lock hold, so two concurrent requests
// can never both observe count < max at the boundary.
func (l *Limiter) Check(ip string) Decision {
	ip = httpx.CanonicalIP(ip)

	// Blocked clients short-circuit without counting; the block gate owns
	// the rejection. Whitelisted clients are exempt.
	if l.engine.IsBlocked(ip).Blocked {
		return Decision{Allowed: true}
	}
	if l.engine.IsWhitelisted(ip) {
		return Decision{Allowed: true}
	}

	l.mu.Lock()
	now := l.now()
	b, ok := l.buckets[ip]
	if !ok || !now.Before(b.resetAt) {
		l.buckets[ip] = &bucket{count: 1, resetAt: now.Add(l.profile.Window)}
		l.mu.Unlock()
		return Decision{Allowed: true, Count: 1}
	}
	if b.count >= l.profile.Max {
		count := b.count
		retry := int(math.Ceil(b.resetAt.Sub(now).Seconds()))
		l.mu.Unlock()

		l.engine.RecordViolation(ip, fmt.Sprintf("Rate limit exceeded: %d/%d", count, l.profile.Max))
		return Decision{Allowed: false, Count: count, RetryAfter: retry}
	}
	b.count++
	count := b.count
	l.mu.Unlock()
	return Decision{Allowed: true, Count: count}
}

// rateLimitRejection is the fixed 429 wire shape.
type rateLimitRejection struct {
	Success    bool   `json:"success"`
	Error      string `json:"error"`
	RetryAfter int    `json:"retryAfter"`
}

// Middleware returns the chi middleware form of the limiter.
func (l *Limiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := httpx.ExtractClientIP(r, l.ipCfg)

		d := l.Check(ip)
		if !d.Allowed {
			metrics.GateRejections.WithLabelValues("rate_limit").Inc()
			l.logger.Warn("rate limit exceeded",
				slog.String("ip", ip),
				slog.String("path", r.URL.Path),
				slog.Int("count", d.Count),
			)
			w.Header().Set("Retry-After", fmt.Sprintf("%d", d.RetryAfter))
			httpx.WriteJSON(w, http.StatusTooManyRequests, rateLimitRejection{
				Error:      l.profile.Message,
				RetryAfter: d.RetryAfter,
			})
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Sweep deletes buckets whose window has already reset.
func (l *Limiter) Sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	for ip, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, ip)
		}
	}
}

// Buckets returns the number of live buckets. Test and metrics hook.
func (l *Limiter) Buckets() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// SetClock overrides the time source. Test hook.
func (l *Limiter) SetClock(now func() time.Time) {
	l.now = now
}
