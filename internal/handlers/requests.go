package handlers

import (
	"strings"

	"github.com/go-playground/validator/v10"
)

// CustomValidator wraps the go-playground/validator library to implement Echo's Validator interface.
type CustomValidator struct {
	validator *validator.Validate
}

// NewValidator creates a new CustomValidator.
func NewValidator() *CustomValidator {
	return &CustomValidator{validator: validator.New()}
}

// Validate implements the echo.Validator interface.
func (cv *CustomValidator) Validate(i interface{}) error {
	return cv.validator.Struct(i)
}

// SignupRequest accepts the display name as either "name" or "fullName".
type SignupRequest struct {
	Name     string `json:"name" validate:"required_without=FullName,max=64"`
	FullName string `json:"fullName" validate:"max=64"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8,max=72"`
}

// DisplayName returns whichever name field was provided.
func (r SignupRequest) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return strings.TrimSpace(r.FullName)
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// SendMessageRequest is the body of POST /api/messages/send/:id. The text is
// checked by the dispatcher so that empty messages map to invalid_payload.
type SendMessageRequest struct {
	Text string `json:"text"`
}

// HistoryQuery binds the optional page size of GET /api/messages/:id.
type HistoryQuery struct {
	Limit int `query:"limit" validate:"gte=0,lte=500"`
}
