package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/vndeals/backend/internal/affiliate"
	"github.com/vndeals/backend/internal/background"
	"github.com/vndeals/backend/internal/config"
	"github.com/vndeals/backend/internal/database"
	"github.com/vndeals/backend/internal/guard"
	"github.com/vndeals/backend/internal/handlers"
	middlewareCustom "github.com/vndeals/backend/internal/middleware"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/repositories"
	"github.com/vndeals/backend/internal/respcache"
	"github.com/vndeals/backend/internal/routes"
	"github.com/vndeals/backend/internal/services"
	"github.com/vndeals/backend/internal/session"
	"github.com/vndeals/backend/pkg/httpx"
	"github.com/vndeals/backend/pkg/password"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	cfg, err := config.Load()
	if err != nil {
		logger.Error("failed to load configuration", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("configuration loaded", slog.String("env", cfg.Server.Env))

	db, err := database.NewConnection(&cfg.Database, logger)
	if err != nil {
		logger.Error("failed to connect to database", slog.Any("error", err))
		os.Exit(1)
	}
	defer db.Close()

	// Repositories
	userRepo := repositories.NewUserRepository(db)
	catalogRepo := repositories.NewCatalogRepository(db)

	// In-memory abuse-control state
	engine := guard.NewEngine(guard.Config{
		ViolationThreshold: cfg.Guard.ViolationThreshold,
		ViolationWindow:    cfg.Guard.ViolationWindow,
		BlockDuration:      cfg.Guard.BlockDuration,
		Whitelist:          cfg.Guard.Whitelist,
	}, logger)

	ipConfig := &httpx.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	defaultLimiter := guard.NewLimiter(engine, guard.Profile{
		Window: cfg.RateLimit.Window,
		Max:    cfg.RateLimit.MaxRequests,
	}, ipConfig, logger)
	strictLimiter := guard.NewLimiter(engine, guard.Profile{
		Window:  cfg.RateLimit.StrictWindow,
		Max:     cfg.RateLimit.StrictMaxRequests,
		Message: "Too many attempts, please try again later",
	}, ipConfig, logger)

	sessions := session.NewRegistry(session.Config{
		Timeout:          cfg.Session.Timeout,
		RefreshThreshold: cfg.Session.RefreshThreshold,
	}, logger)

	cache := respcache.New(cfg.Cache.TTL, logger)

	affiliateClient := affiliate.NewClient(affiliate.Config{
		BaseURL: cfg.Affiliate.Endpoint,
		AppID:   cfg.Affiliate.AppID,
		Secret:  cfg.Affiliate.AppSecret,
		Timeout: cfg.Affiliate.Timeout,
	}, logger)

	// Services
	lockoutService := services.NewLockoutService(userRepo, services.LockoutConfig{
		MaxAttempts:     cfg.Lockout.MaxFailedAttempts,
		LockoutDuration: cfg.Lockout.Duration,
	}, logger)
	authService := services.NewAuthService(userRepo, sessions, lockoutService, cfg.Server.Env, logger)
	userService := services.NewUserService(userRepo, lockoutService, logger)
	catalogService := services.NewCatalogService(catalogRepo, logger)

	// Handlers
	authHandler := handlers.NewAuthHandler(authService)
	catalogHandler := handlers.NewCatalogHandler(catalogService)
	adminHandler := handlers.NewAdminHandler(engine, cache, userService, catalogService, affiliateClient)

	// Bootstrap first admin user if configured
	bootCtx, bootCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := ensureAdminUser(bootCtx, userRepo, logger); err != nil {
		logger.Error("failed to ensure admin user", slog.Any("error", err))
	}
	bootCancel()

	corsConfig := middlewareCustom.DefaultCORSConfig(cfg.Server.Env, cfg.Server.AllowedOrigins())

	// RemoteAddr is left untouched here. Forwarded headers are only honored
	// by httpx.ExtractClientIP when the peer is a configured trusted proxy,
	// so a client cannot launder its address through X-Forwarded-For.
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middlewareCustom.SecurityHeaders(middlewareCustom.SecurityHeadersConfig{Env: cfg.Server.Env}))
	router.Use(middlewareCustom.CORS(corsConfig))
	router.Use(middlewareCustom.SecureLogger(logger))
	router.Use(middleware.Recoverer)
	router.Use(middlewareCustom.Timeout(cfg.Server.RequestTimeout))

	routes.RegisterRoutes(router, routes.Deps{
		Engine:       engine,
		DefaultLimit: defaultLimiter,
		StrictLimit:  strictLimiter,
		Cache:        cache,
		Sessions:     sessions,
		OriginConfig: middlewareCustom.OriginConfig{
			AllowedOrigins:  cfg.Server.AllowedOrigins(),
			AllowedReferers: cfg.Server.AllowedReferers(),
			RequireReferer:  cfg.IsProduction(),
			Env:             cfg.Server.Env,
		},
		IPConfig:       ipConfig,
		AuthHandler:    authHandler,
		CatalogHandler: catalogHandler,
		AdminHandler:   adminHandler,
		Logger:         logger,
	})

	// Health and metrics sit outside the gate pipeline, with a plain burst
	// guard so they cannot be used to hammer the process.
	router.Group(func(r chi.Router) {
		r.Use(httprate.LimitByIP(30, time.Minute))

		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()

			if err := db.HealthCheck(ctx); err != nil {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte(`{"status":"unhealthy","database":"down"}`))
				return
			}

			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write([]byte(`{"status":"healthy","database":"up"}`))
		})

		r.Handle("/metrics", promhttp.Handler())
	})

	janitor, err := background.NewJanitor(background.JanitorDeps{
		Sessions: sessions,
		Limiters: []*guard.Limiter{defaultLimiter, strictLimiter},
		Cache:    cache,
		Engine:   engine,
	}, logger)
	if err != nil {
		logger.Error("failed to build janitor", slog.Any("error", err))
		os.Exit(1)
	}
	janitor.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		logger.Info("starting server", slog.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", slog.Any("error", err))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutdown signal received")

	janitor.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", slog.Any("error", err))
		os.Exit(1)
	}

	logger.Info("server stopped gracefully")
}

// ensureAdminUser creates the first admin user if ADMIN_USERNAME and
// ADMIN_PASSWORD are set
func ensureAdminUser(ctx context.Context, userRepo *repositories.UserRepository, logger *slog.Logger) error {
	adminUsername := os.Getenv("ADMIN_USERNAME")
	adminPassword := os.Getenv("ADMIN_PASSWORD")

	if adminUsername == "" || adminPassword == "" {
		logger.Info("no ADMIN_USERNAME or ADMIN_PASSWORD set, skipping admin user creation")
		return nil
	}

	_, err := userRepo.GetByUsername(ctx, adminUsername)
	if err == nil {
		logger.Info("admin user already exists")
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("failed to check if admin exists: %w", err)
	}

	hashed, err := password.Hash(adminPassword)
	if err != nil {
		return fmt.Errorf("failed to hash admin password: %w", err)
	}

	admin := &models.AdminUser{
		Username:     adminUsername,
		PasswordHash: hashed,
		Status:       "active",
	}

	if _, err := userRepo.Create(ctx, admin); err != nil {
		return fmt.Errorf("failed to create admin user: %w", err)
	}

	logger.Info("admin user created successfully")
	return nil
}
