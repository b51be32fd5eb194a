package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nfrund/gobychat/internal/domain"
)

// Password length limits at sign-up. The maximum is bcrypt's input limit
// and counts bytes, not characters.
const (
	MinPasswordLength = 8
	MaxPasswordBytes  = 72
)

// Service handles sign-up, login and session verification.
type Service struct {
	users  domain.UserRepository
	tokens *TokenManager
	logger *slog.Logger
	now    func() time.Time
}

// NewService creates an auth Service.
func NewService(users domain.UserRepository, tokens *TokenManager) *Service {
	return &Service{
		users:  users,
		tokens: tokens,
		logger: slog.Default().With("component", "auth"),
		now:    time.Now,
	}
}

// Session is the result of a successful sign-up or login.
type Session struct {
	User  *domain.User
	Token string
}

// SignUp registers a new user and opens a session for them.
func (s *Service) SignUp(ctx context.Context, name, email, password string) (*Session, error) {
	name = strings.TrimSpace(name)
	email = normalizeEmail(email)
	if name == "" || email == "" || password == "" {
		return nil, fmt.Errorf("%w: all fields are required", domain.ErrValidation)
	}
	if len(password) < MinPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", domain.ErrValidation, MinPasswordLength)
	}
	if len(password) > MaxPasswordBytes {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", domain.ErrValidation, MaxPasswordBytes)
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		ID:           uuid.NewString(),
		Name:         name,
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, err
	}

	s.logger.Info("User signed up", "user_id", user.ID)
	return &Session{User: user, Token: token}, nil
}

// Login verifies the password against the stored hash and opens a session.
// Unknown emails and wrong passwords both yield domain.ErrInvalidCredentials.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	user, err := s.users.FindByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := ComparePassword(user.PasswordHash, password)
	if err != nil {
		s.logger.Error("Stored password hash is unusable", "user_id", user.ID, "error", err)
		return nil, domain.ErrInvalidCredentials
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}

	token, err := s.tokens.Issue(user.Identity())
	if err != nil {
		return nil, err
	}
	return &Session{User: user, Token: token}, nil
}

// Authenticate resolves a session token to the identity it was issued for.
// The user must still exist. Failures wrap domain.ErrUnauthenticated.
func (s *Service) Authenticate(ctx context.Context, token string) (domain.Identity, error) {
	identity, err := s.tokens.Verify(token)
	if err != nil {
		return domain.Identity{}, err
	}

	user, err := s.users.FindByID(ctx, identity.ID())
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Identity{}, fmt.Errorf("%w: user no longer exists", domain.ErrUnauthenticated)
		}
		return domain.Identity{}, fmt.Errorf("%w: %w", domain.ErrUnauthenticated, err)
	}
	return user.Identity(), nil
}

// CurrentUser returns the stored user behind an identity.
func (s *Service) CurrentUser(ctx context.Context, identity domain.Identity) (*domain.User, error) {
	return s.users.FindByID(ctx, identity.ID())
}

// TokenTTL returns the lifetime of issued session tokens.
func (s *Service) TokenTTL() time.Duration {
	return s.tokens.TTL()
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
