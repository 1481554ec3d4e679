package handler

import (
	"crypto/subtle"
	"net/http"

	"github.com/boddenberg/impots-bj-estimator/internal/domain"

	"go.uber.org/zap"
)

// AdminKeyHeader carries the shared secret of the admin endpoints.
const AdminKeyHeader = "X-Admin-Key"

// AdminKeyMiddleware guards the admin routes with a shared key. With no
// key configured the admin routes are disabled.
func AdminKeyMiddleware(key string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if key == "" {
				writeError(w, http.StatusForbidden, "administration désactivée")
				return
			}

			given := r.Header.Get(AdminKeyHeader)
			if given == "" || subtle.ConstantTimeCompare([]byte(given), []byte(key)) != 1 {
				logger.Warn("admin: invalid key",
					zap.String("path", r.URL.Path),
					zap.String("remote_addr", r.RemoteAddr),
				)
				handleServiceError(w, &domain.ErrUnauthorized{Message: "clé d'administration invalide"}, logger)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
