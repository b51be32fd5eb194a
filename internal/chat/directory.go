package chat

import (
	"context"

	"github.com/nfrund/gobychat/internal/domain"
)

// Directory resolves user ids to identities.
type Directory struct {
	users domain.UserRepository
}

func NewDirectory(users domain.UserRepository) *Directory {
	return &Directory{users: users}
}

// Resolve returns the identity of userID, or domain.ErrNotFound.
func (d *Directory) Resolve(ctx context.Context, userID string) (domain.Identity, error) {
	user, err := d.users.FindByID(ctx, userID)
	if err != nil {
		return domain.Identity{}, err
	}
	return user.Identity(), nil
}
