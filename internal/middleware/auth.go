package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/vndeals/backend/internal/metrics"
	"github.com/vndeals/backend/internal/models"
	"github.com/vndeals/backend/internal/session"
	"github.com/vndeals/backend/pkg/httpx"
)

type contextKey string

const (
	sessionContextKey contextKey = "session"
	tokenContextKey   contextKey = "session_token"
)

// SessionGetter is the registry lookup surface the middleware needs.
type SessionGetter interface {
	Get(token string, autoRefresh bool) (session.Session, bool)
}

// Authenticate resolves the Bearer token to a live session and stashes it in
// the request context. Lookups auto-refresh, so active users keep their
// sessions alive.
func Authenticate(sessions SessionGetter, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				metrics.GateRejections.WithLabelValues("auth").Inc()
				httpx.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
				return
			}

			s, ok := sessions.Get(token, true)
			if !ok {
				metrics.GateRejections.WithLabelValues("auth").Inc()
				logger.Info("rejected stale session token", slog.String("path", r.URL.Path))
				httpx.WriteError(w, http.StatusUnauthorized, "Invalid or expired session", "")
				return
			}

			ctx := context.WithValue(r.Context(), sessionContextKey, s)
			ctx = context.WithValue(ctx, tokenContextKey, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequirePermission gates a route on a permission slug. Accounts whose role
// predates per-permission grants carry an empty slug list; those fall back
// to an admin role-name check.
func RequirePermission(slug string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			s, ok := SessionFromContext(r.Context())
			if !ok {
				httpx.WriteError(w, http.StatusUnauthorized, "Authentication required", "")
				return
			}

			user := s.User
			allowed := user.HasPermission(slug)
			if !allowed && len(user.Permissions) == 0 {
				allowed = user.Role == "admin" || user.Role == "superadmin"
			}
			if !allowed {
				metrics.GateRejections.WithLabelValues("auth").Inc()
				httpx.WriteError(w, http.StatusForbidden, "Admin access required", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// SessionFromContext returns the authenticated session, if any.
func SessionFromContext(ctx context.Context) (session.Session, bool) {
	s, ok := ctx.Value(sessionContextKey).(session.Session)
	return s, ok
}

// TokenFromContext returns the raw session token for the request.
func TokenFromContext(ctx context.Context) (string, bool) {
	token, ok := ctx.Value(tokenContextKey).(string)
	return token, ok
}

// UserFromContext returns the session's user snapshot.
func UserFromContext(ctx context.Context) (models.UserData, bool) {
	s, ok := SessionFromContext(ctx)
	if !ok {
		return models.UserData{}, false
	}
	return s.User, true
}

func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
