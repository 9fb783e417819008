package httpapi

import "net/http"

const tokenHeader = "pymada_token_auth"

// tokenAuth mirrors EnvTokenAuth: when no token is configured, every
// request is allowed through (dev-mode bypass); otherwise the header must
// match exactly.
func tokenAuth(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			if r.Header.Get(tokenHeader) != token {
				http.Error(w, `{"error":"unauthorized"}`, http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
