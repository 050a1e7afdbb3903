package guard

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/vndeals/backend/internal/metrics"
	"github.com/vndeals/backend/pkg/httpx"
)

// blockRejection is the fixed 403 wire shape for blocked clients.
type blockRejection struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message"`
	Reason       string    `json:"reason"`
	BlockedUntil time.Time `json:"blockedUntil"`
}

// BlockGate rejects requests from blocked IPs before any other gate runs.
func BlockGate(engine *Engine, ipCfg *httpx.IPConfig, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := httpx.ExtractClientIP(r, ipCfg)

			status := engine.IsBlocked(ip)
			if status.Blocked {
				metrics.GateRejections.WithLabelValues("block").Inc()
				logger.Warn("blocked ip rejected",
					slog.String("ip", ip),
					slog.String("reason", status.Reason),
					slog.Time("blocked_until", status.Until),
				)
				httpx.WriteJSON(w, http.StatusForbidden, blockRejection{
					Message:      "Access forbidden",
					Reason:       status.Reason,
					BlockedUntil: status.Until,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
