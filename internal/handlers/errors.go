package handlers

import (
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/middleware"
)

// HTTPErrorHandler renders every handler error as an ErrorResponse, mapping
// domain errors to status codes.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status, body := errorResponse(err)
	if status >= http.StatusInternalServerError {
		middleware.FromContext(c.Request().Context()).Error("Request failed",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", status,
			"error", err,
		)
	}

	var writeErr error
	if c.Request().Method == http.MethodHead {
		writeErr = c.NoContent(status)
	} else {
		writeErr = c.JSON(status, body)
	}
	if writeErr != nil {
		c.Logger().Error(writeErr)
	}
}

func errorResponse(err error) (int, ErrorResponse) {
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		msg, ok := httpErr.Message.(string)
		if !ok {
			msg = http.StatusText(httpErr.Code)
		}
		return httpErr.Code, ErrorResponse{Code: codeForStatus(httpErr.Code), Message: msg}
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		return http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: validationMessage(verrs)}
	}

	switch {
	case errors.Is(err, domain.ErrInvalidPayload):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid_payload", Message: err.Error()}
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, ErrorResponse{Code: "validation_failed", Message: err.Error()}
	case errors.Is(err, domain.ErrInvalidCredentials):
		return http.StatusBadRequest, ErrorResponse{Code: "invalid_credentials", Message: "Invalid credentials"}
	case errors.Is(err, domain.ErrUserAlreadyExists):
		return http.StatusConflict, ErrorResponse{Code: "user_exists", Message: "A user with this email or name already exists"}
	case errors.Is(err, domain.ErrUnauthenticated):
		return http.StatusUnauthorized, ErrorResponse{Code: "unauthorized", Message: "Unauthorized - No valid session"}
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, ErrorResponse{Code: "not_found", Message: "Not found"}
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusServiceUnavailable, ErrorResponse{Code: "persistence_error", Message: "Storage is unavailable, try again later"}
	default:
		return http.StatusInternalServerError, ErrorResponse{Code: "internal_error", Message: "Internal server error"}
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusUnauthorized:
		return "unauthorized"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusMethodNotAllowed:
		return "method_not_allowed"
	case http.StatusTooManyRequests:
		return "rate_limited"
	case http.StatusServiceUnavailable:
		return "unavailable"
	default:
		if status >= http.StatusInternalServerError {
			return "internal_error"
		}
		return "error"
	}
}

func validationMessage(verrs validator.ValidationErrors) string {
	fe := verrs[0]
	switch fe.Tag() {
	case "required", "required_without":
		return fe.Field() + " is required"
	case "email":
		return "email is not a valid address"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	default:
		return fe.Field() + " is invalid"
	}
}
