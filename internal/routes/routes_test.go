package routes_test

import (
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"

	"github.com/vndeals/backend/internal/guard"
	"github.com/vndeals/backend/internal/handlers"
	"github.com/vndeals/backend/internal/middleware"
	"github.com/vndeals/backend/internal/respcache"
	"github.com/vndeals/backend/internal/routes"
	"github.com/vndeals/backend/pkg/httpx"
)

type pipelineOptions struct {
	defaultMax int
}

// newPipeline assembles the same gate pipeline main wires up, against mock
// handlers, so tests exercise real gate ordering end to end.
func newPipeline(t *testing.T, opts pipelineOptions) (*guard.Engine, http.Handler) {
	t.Helper()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	engine := guard.NewEngine(guard.Config{
		ViolationThreshold: 100,
		ViolationWindow:    15 * time.Minute,
		BlockDuration:      time.Hour,
	}, logger)

	ipCfg := &httpx.IPConfig{}

	if opts.defaultMax == 0 {
		opts.defaultMax = 100
	}
	defaultLimiter := guard.NewLimiter(engine, guard.Profile{
		Window: time.Minute,
		Max:    opts.defaultMax,
	}, ipCfg, logger)
	strictLimiter := guard.NewLimiter(engine, guard.Profile{
		Window: time.Minute,
		Max:    10,
	}, ipCfg, logger)

	cache := respcache.New(time.Minute, logger)

	users := &handlers.MockUserService{}
	catalog := &handlers.MockCatalogService{}
	affiliate := &handlers.MockAffiliateClient{}

	router := chi.NewRouter()
	routes.RegisterRoutes(router, routes.Deps{
		Engine:       engine,
		DefaultLimit: defaultLimiter,
		StrictLimit:  strictLimiter,
		Cache:        cache,
		Sessions:     handlers.StaticSessions{},
		OriginConfig: middleware.OriginConfig{
			AllowedOrigins: []string{"https://admin.vndeals.test"},
			Env:            "test",
		},
		IPConfig:       ipCfg,
		AuthHandler:    handlers.NewAuthHandler(&handlers.MockAuthService{}),
		CatalogHandler: handlers.NewCatalogHandler(catalog),
		AdminHandler:   handlers.NewAdminHandler(engine, cache, users, catalog, affiliate),
		Logger:         logger,
	})

	return engine, router
}

func TestBlockedIPCannotLaunderViaForwardedFor(t *testing.T) {
	engine, router := newPipeline(t, pipelineOptions{})

	engine.Block("203.0.113.9", time.Hour, "Manual block")

	// The forwarded header must be ignored when the peer is not a trusted
	// proxy, so the block on the socket address still holds.
	req := httptest.NewRequest("GET", "/api/categories/public", nil)
	req.RemoteAddr = "203.0.113.9:44821"
	req.Header.Set("X-Forwarded-For", "8.8.8.8")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestBadOriginRequestsStillConsumeRateLimit(t *testing.T) {
	_, router := newPipeline(t, pipelineOptions{defaultMax: 1})

	statuses := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest("GET", "/api/categories/public", nil)
		req.RemoteAddr = "198.51.100.7:50120"
		req.Header.Set("Origin", "https://evil.example")

		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		statuses = append(statuses, w.Code)
	}

	// The limiter sits before the origin gate: the first request fails the
	// origin check, everything past the quota is answered 429.
	assert.Equal(t, []int{
		http.StatusForbidden,
		http.StatusTooManyRequests,
		http.StatusTooManyRequests,
	}, statuses)
}
