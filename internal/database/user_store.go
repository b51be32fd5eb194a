package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/surrealdb/surrealdb.go"
	"github.com/surrealdb/surrealdb.go/pkg/models"
)

// timeLayout is fixed width so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// userRow is the stored shape of a user record.
type userRow struct {
	ID           *models.RecordID `json:"id,omitempty"`
	Name         string           `json:"name"`
	NameKey      string           `json:"name_key"`
	Email        string           `json:"email"`
	PasswordHash string           `json:"password_hash"`
	CreatedAt    string           `json:"created_at"`
}

func (r *userRow) toDomain() *domain.User {
	u := &domain.User{
		ID:           recordKey(r.ID),
		Name:         r.Name,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
	}
	if t, err := time.Parse(timeLayout, r.CreatedAt); err == nil {
		u.CreatedAt = t
	}
	return u
}

// SurrealUserStore encapsulates database operations for users using SurrealDB.
type SurrealUserStore struct {
	db *surrealdb.DB
}

// NewSurrealUserStore creates a new SurrealUserStore.
func NewSurrealUserStore(db *surrealdb.DB) *SurrealUserStore {
	return &SurrealUserStore{db: db}
}

func (s *SurrealUserStore) Create(ctx context.Context, user *domain.User) error {
	query := `CREATE type::thing("user", $id) CONTENT {
		name: $name,
		name_key: $name_key,
		email: $email,
		password_hash: $password_hash,
		created_at: $created_at
	}`
	params := map[string]any{
		"id":            user.ID,
		"name":          user.Name,
		"name_key":      strings.ToLower(strings.TrimSpace(user.Name)),
		"email":         user.Email,
		"password_hash": user.PasswordHash,
		"created_at":    user.CreatedAt.UTC().Format(timeLayout),
	}

	if err := Execute(ctx, s.db, query, params); err != nil {
		if isUniqueViolation(err) {
			return domain.ErrUserAlreadyExists
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

func (s *SurrealUserStore) FindByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT * FROM type::thing("user", $id)`
	return s.findOne(ctx, query, map[string]any{"id": id})
}

func (s *SurrealUserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := "SELECT * FROM user WHERE email = $email"
	return s.findOne(ctx, query, map[string]any{"email": email})
}

func (s *SurrealUserStore) findOne(ctx context.Context, query string, params map[string]any) (*domain.User, error) {
	row, err := QueryOne[userRow](ctx, s.db, query, params)
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	if row == nil {
		return nil, domain.ErrNotFound
	}
	return row.toDomain(), nil
}

func (s *SurrealUserStore) List(ctx context.Context, excludeID string) ([]domain.User, error) {
	query := `SELECT * FROM user WHERE id != type::thing("user", $exclude) ORDER BY name ASC`
	rows, err := Query[userRow](ctx, s.db, query, map[string]any{"exclude": excludeID})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	users := make([]domain.User, 0, len(rows))
	for i := range rows {
		users = append(users, *rows[i].toDomain())
	}
	return users, nil
}

// recordKey returns the id part of a record id such as user:⟨abc⟩.
func recordKey(id *models.RecordID) string {
	if id == nil {
		return ""
	}
	return fmt.Sprint(id.ID)
}
