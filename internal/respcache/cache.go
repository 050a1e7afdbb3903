package respcache

import (
	"bytes"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/vndeals/backend/internal/metrics"
)

type entry struct {
	body        []byte
	contentType string
	storedAt    time.Time
	expiresAt   time.Time
}

// Cache memoizes successful GET responses keyed by path and query string.
// Only 200 responses are stored; everything else passes through untouched.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	ttl     time.Duration
	logger  *slog.Logger
	now     func() time.Time
}

func New(ttl time.Duration, logger *slog.Logger) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		ttl:     ttl,
		logger:  logger,
		now:     time.Now,
	}
}

// cacheKey is "GET:" plus the full request URL, so clear patterns can target
// a collection with a prefix like "GET:/api/categories".
func cacheKey(r *http.Request) string {
	if r.URL.RawQuery == "" {
		return "GET:" + r.URL.Path
	}
	return "GET:" + r.URL.Path + "?" + r.URL.RawQuery
}

// recorder buffers the downstream response so a 200 can be stored before
// it reaches the client.
type recorder struct {
	http.ResponseWriter
	status int
	buf    bytes.Buffer
}

func (rec *recorder) WriteHeader(status int) {
	rec.status = status
	rec.ResponseWriter.WriteHeader(status)
}

func (rec *recorder) Write(p []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	if rec.status == http.StatusOK {
		rec.buf.Write(p)
	}
	return rec.ResponseWriter.Write(p)
}

// Middleware serves cached bodies with X-Cache: HIT and records misses.
// Non-GET requests bypass the cache entirely.
func (c *Cache) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}

		key := cacheKey(r)
		if e := c.lookup(key); e != nil {
			metrics.CacheEvents.WithLabelValues("hit").Inc()
			w.Header().Set("Content-Type", e.contentType)
			w.Header().Set("X-Cache", "HIT")
			w.WriteHeader(http.StatusOK)
			w.Write(e.body)
			return
		}

		metrics.CacheEvents.WithLabelValues("miss").Inc()
		w.Header().Set("X-Cache", "MISS")
		rec := &recorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		if rec.status == http.StatusOK && rec.buf.Len() > 0 {
			c.store(key, rec.buf.Bytes(), rec.Header().Get("Content-Type"))
		}
	})
}

func (c *Cache) lookup(key string) *entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil
	}
	if !c.now().Before(e.expiresAt) {
		delete(c.entries, key)
		return nil
	}
	return e
}

func (c *Cache) store(key string, body []byte, contentType string) {
	buf := make([]byte, len(body))
	copy(buf, body)

	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	c.entries[key] = &entry{
		body:        buf,
		contentType: contentType,
		storedAt:    now,
		expiresAt:   now.Add(c.ttl),
	}
}

// Clear drops every entry whose key contains pattern. An empty pattern
// drops everything. Returns the number of entries removed.
func (c *Cache) Clear(pattern string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if pattern == "" || strings.Contains(key, pattern) {
			delete(c.entries, key)
			removed++
		}
	}
	if c.logger != nil {
		c.logger.Info("cache cleared", slog.String("pattern", pattern), slog.Int("removed", removed))
	}
	return removed
}

// Sweep evicts expired entries.
func (c *Cache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}

// Len returns the number of live entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// SetClock overrides the time source. Test hook.
func (c *Cache) SetClock(now func() time.Time) {
	c.now = now
}
