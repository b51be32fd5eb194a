package storage

import (
	"context"
	"sync"

	"github.com/nfrund/gobychat/internal/domain"
)

// MemoryUserStore keeps users in process memory.
type MemoryUserStore struct {
	mu      sync.RWMutex
	byID    map[string]domain.User
	byEmail map[string]string
	byName  map[string]string
}

// NewMemoryUserStore creates an empty MemoryUserStore.
func NewMemoryUserStore() *MemoryUserStore {
	return &MemoryUserStore{
		byID:    make(map[string]domain.User),
		byEmail: make(map[string]string),
		byName:  make(map[string]string),
	}
}

func (s *MemoryUserStore) Create(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	name := normalizeName(user.Name)
	if _, ok := s.byEmail[user.Email]; ok {
		return domain.ErrUserAlreadyExists
	}
	if _, ok := s.byName[name]; ok {
		return domain.ErrUserAlreadyExists
	}

	s.byID[user.ID] = *user
	s.byEmail[user.Email] = user.ID
	s.byName[name] = user.ID
	return nil
}

func (s *MemoryUserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &user, nil
}

func (s *MemoryUserStore) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	s.mu.RLock()
	id, ok := s.byEmail[email]
	s.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return s.FindByID(ctx, id)
}

func (s *MemoryUserStore) List(_ context.Context, excludeID string) ([]domain.User, error) {
	s.mu.RLock()
	users := make([]domain.User, 0, len(s.byID))
	for id, u := range s.byID {
		if id != excludeID {
			users = append(users, u)
		}
	}
	s.mu.RUnlock()

	sortUsersByName(users)
	return users, nil
}

// MemoryMessageStore keeps conversations in process memory, in append order.
type MemoryMessageStore struct {
	mu            sync.RWMutex
	conversations map[string][]domain.Message
}

// NewMemoryMessageStore creates an empty MemoryMessageStore.
func NewMemoryMessageStore() *MemoryMessageStore {
	return &MemoryMessageStore{conversations: make(map[string][]domain.Message)}
}

func (s *MemoryMessageStore) Append(_ context.Context, msg domain.Message) error {
	key := conversationKey(msg.SenderID, msg.RecipientID)

	s.mu.Lock()
	s.conversations[key] = append(s.conversations[key], msg)
	s.mu.Unlock()
	return nil
}

func (s *MemoryMessageStore) Conversation(_ context.Context, a, b string, limit int) ([]domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return tail(s.conversations[conversationKey(a, b)], limit), nil
}
