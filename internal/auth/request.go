package auth

import (
	"net/http"
	"strings"
)

// CookieName is the cookie that carries the session token.
const CookieName = "jwt"

// TokenFromRequest extracts a session token from the cookie, a Bearer
// Authorization header or the "token" query parameter, in that order.
// Browsers cannot set headers on WebSocket upgrades, hence the query form.
func TokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value
	}
	if h := r.Header.Get("Authorization"); h != "" {
		if token, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get("token")
}
