package httpx

import (
	"crypto/subtle"
	"net/http"

	"github.com/aussiebroadwan/twofactor/pkg/slogx"
)

// ServiceTokenHeader carries the shared secret of trusted internal callers.
const ServiceTokenHeader = "X-Service-Token"

// ServiceTokenMiddleware admits only callers presenting the shared service
// token. An empty token rejects every request.
func ServiceTokenMiddleware(token string) Middleware {
	want := []byte(token)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got := []byte(r.Header.Get(ServiceTokenHeader))
			if len(want) == 0 || subtle.ConstantTimeCompare(got, want) != 1 {
				slogx.FromContext(r.Context()).Warn("rejected service call", "has_token", len(got) > 0)
				WriteError(w, http.StatusUnauthorized, "invalid_client", "invalid service token")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
