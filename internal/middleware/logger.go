package middleware

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
)

type requestLoggerKey struct{}

// Logger stores base, tagged with the request id, on each request context.
// It reads the id set by echo's RequestID middleware, so it must run after it.
func Logger(base *slog.Logger) echo.MiddlewareFunc {
	if base == nil {
		base = slog.Default()
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			id := c.Response().Header().Get(echo.HeaderXRequestID)
			if id == "" {
				id = c.Request().Header.Get(echo.HeaderXRequestID)
			}
			setRequestLogger(c, base.With("request_id", id))
			return next(c)
		}
	}
}

// ContextWithLogger returns a copy of ctx that FromContext resolves to logger.
func ContextWithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	return context.WithValue(ctx, requestLoggerKey{}, logger)
}

// FromContext returns the request logger, or slog.Default outside a request.
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(requestLoggerKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

func setRequestLogger(c echo.Context, logger *slog.Logger) {
	req := c.Request()
	c.SetRequest(req.WithContext(ContextWithLogger(req.Context(), logger)))
}
