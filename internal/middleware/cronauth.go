package middleware

import (
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"
)

// CronAuth guards scheduler endpoints with a bearer secret. An empty
// configured secret fails closed: the endpoint reports a server
// misconfiguration rather than becoming open to anyone.
func CronAuth(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if secret == "" {
				logger.Error("cron secret not configured, refusing request", "path", r.URL.Path)
				http.Error(w, "Cron secret not configured", http.StatusInternalServerError)
				return
			}

			auth := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(auth, "Bearer ")
			if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
				logger.Warn("rejected cron request", "path", r.URL.Path, "remote", RealIP(r))
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
