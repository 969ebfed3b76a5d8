package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/reviewtrust/trustscore/pkg/httputil"
)

// APIKeyHeader is checked before the Authorization bearer token.
const APIKeyHeader = "X-API-Key"

// RequireAPIKey guards operator endpoints with a static key list. An empty
// list disables the check.
func RequireAPIKey(keys []string) func(http.Handler) http.Handler {
	accepted := make([][]byte, 0, len(keys))
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		if len(accepted) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := presentedKey(r)
			if presented == "" {
				writeAuthError(w, "missing API key")
				return
			}
			for _, k := range accepted {
				if subtle.ConstantTimeCompare(k, []byte(presented)) == 1 {
					next.ServeHTTP(w, r)
					return
				}
			}
			writeAuthError(w, "invalid API key")
		})
	}
}

func presentedKey(r *http.Request) string {
	if k := r.Header.Get(APIKeyHeader); k != "" {
		return k
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if ok && strings.EqualFold(scheme, "bearer") {
		return strings.TrimSpace(token)
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, message string) {
	httputil.WriteJSON(w, http.StatusUnauthorized, httputil.Response{
		Error: &httputil.ErrorResponse{Code: "UNAUTHORIZED", Message: message},
	})
}
