package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
)

// RequireBearerToken guards a service-to-service route group with a static
// bearer token. Both the manual-intervention endpoints and attempt reporting
// sit behind it: each can move an identity's counters, so neither may be
// reachable by the clients those counters track. An empty configured token
// disables the guarded surface entirely rather than leaving it open.
func RequireBearerToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				pkghttp.WriteNotFound(w, "not found")
				return
			}

			header := r.Header.Get("Authorization")
			if !strings.HasPrefix(header, "Bearer ") {
				pkghttp.WriteUnauthorized(w, "missing bearer token")
				return
			}

			supplied := strings.TrimPrefix(header, "Bearer ")
			if subtle.ConstantTimeCompare([]byte(supplied), []byte(token)) != 1 {
				pkghttp.WriteUnauthorized(w, "invalid token")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
