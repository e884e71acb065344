package middleware

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"
	pkghttp "github.com/jdmarch/gauntlet/pkg/http"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerMinute int
}

// DefaultAssessRateLimit limits challenge issuance per IP. Unsolved
// challenges expire on their own, but letting one IP mint them freely
// would still churn storage.
func DefaultAssessRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 10,
	}
}

// DefaultVerifyRateLimit limits verification attempts per IP. Verification
// is O(1) but each failed call escalates counters, so a modest ceiling
// keeps the endpoint from being used to grind someone else's identity.
func DefaultVerifyRateLimit() RateLimitConfig {
	return RateLimitConfig{
		RequestsPerMinute: 20,
	}
}

// RateLimitByIP creates a middleware that rate limits requests by client IP.
// The key comes from the same trusted-proxy-gated extractor that builds
// identity keys; forwarded headers from untrusted peers must not open a
// fresh rate-limit bucket any more than they may rotate an identity.
func RateLimitByIP(config RateLimitConfig, ipConfig *pkghttp.IPConfig) func(next http.Handler) http.Handler {
	return httprate.Limit(
		config.RequestsPerMinute,
		1*time.Minute,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			return pkghttp.ExtractClientIP(r, ipConfig), nil
		}),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			w.Write([]byte(`{"error":"Rate limit exceeded"}`))
		}),
	)
}
