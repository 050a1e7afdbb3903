package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/vndeals/backend/pkg/httpx"
)

// Timeout caps the time a handler may spend on one request. When the budget
// runs out before anything was written, the client gets 408 with the standard
// error envelope.
func Timeout(timeout time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer func() {
				cancel()
				if ctx.Err() == context.DeadlineExceeded {
					httpx.WriteError(w, http.StatusRequestTimeout, "Request timeout", "")
				}
			}()

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
