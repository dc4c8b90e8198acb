package middleware

import (
	"crypto/subtle"
	"net/http"
)

// metricsRealm is the basic-auth realm announced on the scrape endpoint.
const metricsRealm = `Basic realm="ranklens-metrics"`

// MetricsAuthMiddleware gates the Prometheus scrape endpoint with basic
// auth. Quota snapshots leak per-plan usage patterns, so /metrics is not
// left open in production.
type MetricsAuthMiddleware struct {
	username string
	password string
	enabled  bool
}

// NewMetricsAuthMiddleware creates a new metrics auth middleware.
// If both username and password are empty, authentication is disabled.
func NewMetricsAuthMiddleware(username, password string) *MetricsAuthMiddleware {
	return &MetricsAuthMiddleware{
		username: username,
		password: password,
		enabled:  username != "" || password != "",
	}
}

// Handler returns middleware that requires basic authentication.
func (m *MetricsAuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !m.enabled {
			next.ServeHTTP(w, r)
			return
		}

		user, pass, ok := r.BasicAuth()
		if !ok || !constantTimeEqual(user, m.username) || !constantTimeEqual(pass, m.password) {
			w.Header().Set("WWW-Authenticate", metricsRealm)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// constantTimeEqual compares credentials without an early exit on the
// first differing byte.
func constantTimeEqual(got, want string) bool {
	return subtle.ConstantTimeCompare([]byte(got), []byte(want)) == 1
}
