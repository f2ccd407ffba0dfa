package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kiranshivaraju/draftsmith/internal/api/response"
)

// RequireAdmin guards the admin surface with a single configured key carried
// in the X-API-Key header. Comparison is constant-time.
func RequireAdmin(adminKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			provided := strings.TrimSpace(r.Header.Get(APIKeyHeader))
			if adminKey == "" ||
				subtle.ConstantTimeCompare([]byte(provided), []byte(adminKey)) != 1 {
				response.Error(w, http.StatusForbidden,
					"FORBIDDEN", "Admin access required", nil)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
