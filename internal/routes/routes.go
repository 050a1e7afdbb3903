package routes

import (
	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/vndeals/backend/internal/guard"
	"github.com/vndeals/backend/internal/handlers"
	"github.com/vndeals/backend/internal/middleware"
	"github.com/vndeals/backend/internal/respcache"
	"github.com/vndeals/backend/pkg/httpx"
)

// Deps bundles everything the API pipeline composes.
type Deps struct {
	Engine         *guard.Engine
	DefaultLimit   *guard.Limiter
	StrictLimit    *guard.Limiter
	Cache          *respcache.Cache
	Sessions       middleware.SessionGetter
	OriginConfig   middleware.OriginConfig
	IPConfig       *httpx.IPConfig
	AuthHandler    *handlers.AuthHandler
	CatalogHandler *handlers.CatalogHandler
	AdminHandler   *handlers.AdminHandler
	Logger         *slog.Logger
}

// RegisterRoutes wires the gate pipeline and the API routes. Gate order is
// fixed: block check, rate limit, origin validation, then session auth where
// a route needs it. The block gate runs first so a blocked client always
// sees 403, never a 429 from a later gate, and the limiters run before the
// origin check so bad-origin floods still count against the quota.
func RegisterRoutes(router chi.Router, deps Deps) {
	validateOrigin := middleware.ValidateRequest(deps.OriginConfig, deps.Engine, deps.IPConfig, deps.Logger)

	router.Route("/api", func(api chi.Router) {
		api.Use(guard.BlockGate(deps.Engine, deps.IPConfig, deps.Logger))

		// Public storefront reads, cached.
		api.Group(func(r chi.Router) {
			r.Use(deps.DefaultLimit.Middleware)
			r.Use(validateOrigin)
			r.Use(deps.Cache.Middleware)
			r.Get("/categories/public", deps.CatalogHandler.PublicCategories)
			r.Get("/products/saved", deps.CatalogHandler.SavedProducts)
		})

		// Auth endpoints get the strict limiter: login is the endpoint
		// brute-force goes after.
		api.Group(func(r chi.Router) {
			r.Use(deps.StrictLimit.Middleware)
			r.Use(validateOrigin)
			r.Post("/auth/login", deps.AuthHandler.Login)

			r.Group(func(r chi.Router) {
				r.Use(middleware.Authenticate(deps.Sessions, deps.Logger))
				r.Post("/auth/logout", deps.AuthHandler.Logout)
				r.Put("/auth/change-password", deps.AuthHandler.ChangePassword)
				r.Get("/auth/me", deps.AuthHandler.Me)
			})
		})

		// Admin console.
		api.Group(func(r chi.Router) {
			r.Use(deps.DefaultLimit.Middleware)
			r.Use(validateOrigin)
			r.Use(middleware.Authenticate(deps.Sessions, deps.Logger))
			r.Use(middleware.RequirePermission("security.manage"))

			r.Get("/admin/blocked-ips", deps.AdminHandler.ListBlockedIPs)
			r.Post("/admin/blocked-ips", deps.AdminHandler.BlockIP)
			r.Delete("/admin/blocked-ips/{ip}", deps.AdminHandler.UnblockIP)

			r.Get("/admin/whitelist", deps.AdminHandler.ListWhitelist)
			r.Post("/admin/whitelist", deps.AdminHandler.AddWhitelist)
			r.Delete("/admin/whitelist/{ip}", deps.AdminHandler.RemoveWhitelist)

			r.Post("/admin/cache/clear", deps.AdminHandler.ClearCache)

			r.Post("/admin/categories", deps.AdminHandler.CreateCategory)

			r.Get("/admin/users", deps.AdminHandler.ListUsers)
			r.Post("/admin/users", deps.AdminHandler.CreateUser)
			r.Post("/admin/unlock-account", deps.AdminHandler.UnlockAccount)

			r.Post("/affiliate/search", deps.AdminHandler.AffiliateSearch)
		})
	})
}
