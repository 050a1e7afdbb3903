package middleware

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/vndeals/backend/internal/guard"
	"github.com/vndeals/backend/internal/metrics"
	"github.com/vndeals/backend/pkg/httpx"
)

// OriginConfig drives the origin/referer gate.
type OriginConfig struct {
	AllowedOrigins  []string
	AllowedReferers []string
	RequireReferer  bool
	AllowNoReferer  bool
	Env             string
}

type originRejection struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// ValidateRequest rejects requests whose Origin header is not on the
// allow-list and, in production, requests with a missing or foreign Referer.
// Every rejection is recorded as a violation against the client IP.
func ValidateRequest(cfg OriginConfig, engine *guard.Engine, ipCfg *httpx.IPConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if origin := r.Header.Get("Origin"); origin != "" && !contains(cfg.AllowedOrigins, origin) {
				reject(w, r, engine, ipCfg, logger, "Origin not allowed: "+origin)
				return
			}

			if cfg.Env == "production" && cfg.RequireReferer {
				referer := r.Header.Get("Referer")
				if referer == "" {
					if !cfg.AllowNoReferer {
						reject(w, r, engine, ipCfg, logger, "Referer missing")
						return
					}
				} else if !hasAllowedPrefix(cfg.AllowedReferers, referer) {
					reject(w, r, engine, ipCfg, logger, "Referer not allowed: "+referer)
					return
				}
			}

			next.ServeHTTP(w, r)
		})
	}
}

func reject(w http.ResponseWriter, r *http.Request, engine *guard.Engine, ipCfg *httpx.IPConfig, logger *slog.Logger, reason string) {
	ip := httpx.ExtractClientIP(r, ipCfg)
	engine.RecordViolation(ip, reason)
	metrics.GateRejections.WithLabelValues("origin").Inc()
	logger.Warn("request validation failed",
		slog.String("ip", ip),
		slog.String("path", r.URL.Path),
		slog.String("reason", reason),
	)
	httpx.WriteJSON(w, http.StatusForbidden, originRejection{
		Message: "Origin/Referer not allowed",
	})
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func hasAllowedPrefix(prefixes []string, v string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(v, p) {
			return true
		}
	}
	return false
}
