package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTokenFromRequest(t *testing.T) {
	t.Run("cookie wins", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
		r.AddCookie(&http.Cookie{Name: CookieName, Value: "cookie"})
		r.Header.Set("Authorization", "Bearer header")
		assert.Equal(t, "cookie", TokenFromRequest(r))
	})

	t.Run("bearer header", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
		r.Header.Set("Authorization", "Bearer header")
		assert.Equal(t, "header", TokenFromRequest(r))
	})

	t.Run("query fallback", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws?token=query", nil)
		r.Header.Set("Authorization", "Basic abc")
		assert.Equal(t, "query", TokenFromRequest(r))
	})

	t.Run("nothing", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		assert.Empty(t, TokenFromRequest(r))
	})
}
