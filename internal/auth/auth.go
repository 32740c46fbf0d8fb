// Package auth guards operator endpoints with an optional bearer token.
//
// Read-only public views (status, catalog listings, the feed snapshot) are
// left open; the API wraps analysis, history and the feed stream with
// Guard.Require.
package auth

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"
	"strings"
)

// Config holds authentication configuration.
type Config struct {
	Enabled bool
	Token   string
}

// Guard checks requests against the configured token.
type Guard struct {
	enabled bool
	token   []byte
}

// New returns a Guard for cfg. A disabled guard admits every request.
func New(cfg Config) *Guard {
	return &Guard{enabled: cfg.Enabled, token: []byte(cfg.Token)}
}

// Enabled reports whether tokens are checked.
func (g *Guard) Enabled() bool {
	return g.enabled
}

// Authorized reports whether r carries the token as an
// "Authorization: Bearer <token>" header. The scheme is case-insensitive.
func (g *Guard) Authorized(r *http.Request) bool {
	if !g.enabled {
		return true
	}
	scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return false
	}
	token = strings.TrimSpace(token)
	return token != "" && subtle.ConstantTimeCompare([]byte(token), g.token) == 1
}

// Require wraps next, answering 401 to requests without the token.
func (g *Guard) Require(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !g.Authorized(r) {
			w.Header().Set("WWW-Authenticate", `Bearer realm="kessler"`)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next(w, r)
	}
}
