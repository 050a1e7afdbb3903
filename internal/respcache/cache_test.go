package respcache_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vndeals/backend/internal/respcache"
)

func newCache(t *testing.T, ttl time.Duration) *respcache.Cache {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	return respcache.New(ttl, logger)
}

func countingHandler(hits *atomic.Int64, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func TestCache_MissThenHit(t *testing.T) {
	c := newCache(t, 5*time.Minute)
	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusOK, `{"success":true}`))

	first := httptest.NewRecorder()
	h.ServeHTTP(first, httptest.NewRequest("GET", "/api/categories/public", nil))
	assert.Equal(t, "MISS", first.Header().Get("X-Cache"))
	assert.Equal(t, `{"success":true}`, first.Body.String())

	second := httptest.NewRecorder()
	h.ServeHTTP(second, httptest.NewRequest("GET", "/api/categories/public", nil))
	assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
	assert.Equal(t, `{"success":true}`, second.Body.String())
	assert.Equal(t, "application/json", second.Header().Get("Content-Type"))

	assert.Equal(t, int64(1), hits.Load())
}

func TestCache_QueryStringIsPartOfKey(t *testing.T) {
	c := newCache(t, 5*time.Minute)
	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusOK, `{}`))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/products/saved?page=1", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/products/saved?page=2", nil))

	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, 2, c.Len())
}

func TestCache_NonGETBypasses(t *testing.T) {
	c := newCache(t, 5*time.Minute)
	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusOK, `{}`))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("POST", "/api/categories/public", nil))

	assert.Empty(t, rec.Header().Get("X-Cache"))
	assert.Equal(t, 0, c.Len())
}

func TestCache_ErrorResponsesNotStored(t *testing.T) {
	c := newCache(t, 5*time.Minute)
	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusInternalServerError, `{"success":false}`))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/categories/public", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/categories/public", nil))

	assert.Equal(t, int64(2), hits.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCache_EntryExpires(t *testing.T) {
	c := newCache(t, time.Minute)
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusOK, `{}`))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/categories/public", nil))
	require.Equal(t, 1, c.Len())

	c.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/categories/public", nil))

	assert.Equal(t, "MISS", rec.Header().Get("X-Cache"))
	assert.Equal(t, int64(2), hits.Load())
}

func TestCache_ClearByPattern(t *testing.T) {
	c := newCache(t, 5*time.Minute)
	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusOK, `{}`))

	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/products/saved", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/categories/public", nil))
	require.Equal(t, 2, c.Len())

	removed := c.Clear("GET:/api/products")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, c.Len())

	removed = c.Clear("")
	assert.Equal(t, 1, removed)
	assert.Equal(t, 0, c.Len())
}

func TestCache_Sweep(t *testing.T) {
	c := newCache(t, time.Minute)
	now := time.Now()
	c.SetClock(func() time.Time { return now })

	var hits atomic.Int64
	h := c.Middleware(countingHandler(&hits, http.StatusOK, `{}`))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "/api/categories/public", nil))
	require.Equal(t, 1, c.Len())

	c.SetClock(func() time.Time { return now.Add(2 * time.Minute) })
	c.Sweep()
	assert.Equal(t, 0, c.Len())
}
