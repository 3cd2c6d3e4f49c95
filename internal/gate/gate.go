// Package gate guards routes with a single static API key.
package gate

import (
	"crypto/subtle"
	"net/http"
)

// Header carries the caller's key.
const Header = "X-API-KEY"

// Allowed reports whether key exactly matches secret. An empty key never passes.
func Allowed(key, secret string) bool {
	if key == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(key), []byte(secret)) == 1
}

// APIKey admits requests whose Header matches secret and hands everything
// else to deny.
func APIKey(secret string, deny http.Handler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !Allowed(r.Header.Get(Header), secret) {
				deny.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
