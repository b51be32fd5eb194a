package middleware

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/gobychat/internal/auth"
	"github.com/nfrund/gobychat/internal/domain"
)

// IdentityContextKey holds the caller's domain.Identity on an echo.Context.
const IdentityContextKey = "identity"

// Authenticator resolves a session token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// Auth protects API routes. Requests without a valid session get a JSON 401
// and, when a stale cookie was sent, the cookie is cleared.
func Auth(authn Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.TokenFromRequest(c.Request())
			if token == "" {
				return unauthorized(c)
			}

			identity, err := authn.Authenticate(c.Request().Context(), token)
			if err != nil {
				FromContext(c.Request().Context()).Debug("Rejected session", "error", err)
				if _, cerr := c.Cookie(auth.CookieName); cerr == nil {
					c.SetCookie(&http.Cookie{
						Name:     auth.CookieName,
						Value:    "",
						Path:     "/",
						MaxAge:   -1,
						HttpOnly: true,
					})
				}
				return unauthorized(c)
			}

			c.Set(IdentityContextKey, identity)
			setRequestLogger(c, FromContext(c.Request().Context()).With("user_id", identity.ID()))
			return next(c)
		}
	}
}

// IdentityFrom returns the identity stored by Auth.
func IdentityFrom(c echo.Context) (domain.Identity, bool) {
	identity, ok := c.Get(IdentityContextKey).(domain.Identity)
	return identity, ok && !identity.IsZero()
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, map[string]string{"error": "Unauthorized - No valid session"})
}
