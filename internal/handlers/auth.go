package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/nfrund/gobychat/internal/auth"
	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/middleware"
)

// Accounts is the auth behavior the handlers need.
type Accounts interface {
	SignUp(ctx context.Context, name, email, password string) (*auth.Session, error)
	Login(ctx context.Context, email, password string) (*auth.Session, error)
	CurrentUser(ctx context.Context, identity domain.Identity) (*domain.User, error)
	TokenTTL() time.Duration
}

// AuthHandler handles authentication-related requests.
type AuthHandler struct {
	accounts     Accounts
	secureCookie bool
}

// NewAuthHandler creates a new AuthHandler. secureCookie forces the Secure
// flag on the session cookie even when the request did not arrive over TLS,
// which is the case behind a terminating proxy.
func NewAuthHandler(accounts Accounts, secureCookie bool) *AuthHandler {
	return &AuthHandler{accounts: accounts, secureCookie: secureCookie}
}

// SignUp handles POST /api/auth/signup.
func (h *AuthHandler) SignUp(c echo.Context) error {
	var req SignupRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.accounts.SignUp(c.Request().Context(), req.DisplayName(), req.Email, req.Password)
	if err != nil {
		return err
	}

	h.setAuthCookie(c, session.Token)
	return c.JSON(http.StatusCreated, NewUserResponse(session.User))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(c echo.Context) error {
	var req LoginRequest
	if err := c.Bind(&req); err != nil {
		return err
	}
	if err := c.Validate(&req); err != nil {
		return err
	}

	session, err := h.accounts.Login(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		middleware.FromContext(c.Request().Context()).Info("Failed login attempt", "error", err)
		return err
	}

	h.setAuthCookie(c, session.Token)
	return c.JSON(http.StatusOK, NewUserResponse(session.User))
}

// Logout handles POST /api/auth/logout by expiring the session cookie.
func (h *AuthHandler) Logout(c echo.Context) error {
	h.setAuthCookie(c, "")
	return c.JSON(http.StatusOK, map[string]string{"message": "Logged out successfully"})
}

// Check handles GET /api/auth/check and returns the caller's profile.
func (h *AuthHandler) Check(c echo.Context) error {
	identity, ok := middleware.IdentityFrom(c)
	if !ok {
		return domain.ErrUnauthenticated
	}
	user, err := h.accounts.CurrentUser(c.Request().Context(), identity)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, NewUserResponse(user))
}

func (h *AuthHandler) setAuthCookie(c echo.Context, token string) {
	cookie := &http.Cookie{
		Name:     auth.CookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   h.secureCookie || c.Request().TLS != nil,
		SameSite: http.SameSiteStrictMode,
	}
	if token == "" {
		cookie.MaxAge = -1
	} else {
		cookie.MaxAge = int(h.accounts.TokenTTL().Seconds())
	}
	c.SetCookie(cookie)
}
