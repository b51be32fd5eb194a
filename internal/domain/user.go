package domain

import (
	"context"
	"time"
)

// User represents the core user model in the application domain.
type User struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity returns the immutable identity for this user.
func (u *User) Identity() Identity {
	return NewIdentity(u.ID, u.Name)
}

// UserRepository defines the contract for user data storage operations.
// It lives in the domain because it's a requirement OF the domain, not
// of the database implementation.
type UserRepository interface {
	// Create stores a new user. It returns ErrUserAlreadyExists when the
	// email or name is taken.
	Create(ctx context.Context, user *User) error
	// FindByID and FindByEmail return ErrNotFound when no user matches.
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// List returns every user except the one with excludeID, ordered by name.
	List(ctx context.Context, excludeID string) ([]User, error)
}
