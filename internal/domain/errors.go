package domain

import "errors"

// Sentinel errors for the domain layer. These provide consistent, checkable
// errors for common business logic failures.
var (
	ErrUserAlreadyExists  = errors.New("user with this email or name already exists")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotFound           = errors.New("requested resource not found")
	ErrValidation         = errors.New("validation failed")

	// ErrUnauthenticated is returned when a session credential is missing,
	// malformed, expired, or bound to a user that no longer exists.
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrInvalidPayload is returned for empty or malformed message bodies.
	ErrInvalidPayload = errors.New("invalid message payload")

	// ErrPersistence is returned when the message store could not durably
	// record a message. Nothing is delivered in that case.
	ErrPersistence = errors.New("message persistence failed")

	// ErrDeliveryFailed marks a push to a live connection that could not be
	// accepted. It is logged, never returned from a send.
	ErrDeliveryFailed = errors.New("best-effort delivery failed")
)
