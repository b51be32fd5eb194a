package presence

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/pubsub"
)

const (
	keyPrefix    = "chat:presence:"
	redisTimeout = 2 * time.Second

	// MinPresenceTTL is the shortest key TTL. Keys are refreshed every ttl/3.
	MinPresenceTTL = 3 * time.Second
)

// RedisClient is the subset of *redis.Client the mirror uses.
type RedisClient interface {
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Expire(ctx context.Context, key string, expiration time.Duration) *redis.BoolCmd
}

// OnlineLister reports the current presence set.
type OnlineLister interface {
	Online() []domain.Identity
}

// RedisMirror keeps a chat:presence:<id> key with a TTL for every online
// identity so other processes can read presence. Keys are refreshed every
// ttl/3 and expire on their own if this process dies.
//
// Bus deliveries are only queued; all Redis I/O happens on the mirror's own
// worker, so a slow Redis never holds up the presence broadcast.
type RedisMirror struct {
	client RedisClient
	online OnlineLister
	ttl    time.Duration
	logger *slog.Logger

	mu      sync.Mutex
	pending map[string]Changed // latest unwritten change per user
	wake    chan struct{}
}

func NewRedisMirror(client RedisClient, online OnlineLister, ttl time.Duration) *RedisMirror {
	if ttl <= 0 {
		ttl = 90 * time.Second
	}
	if ttl < MinPresenceTTL {
		ttl = MinPresenceTTL
	}
	return &RedisMirror{
		client:  client,
		online:  online,
		ttl:     ttl,
		logger:  slog.Default().With("component", "presence-mirror"),
		pending: make(map[string]Changed),
		wake:    make(chan struct{}, 1),
	}
}

// Key returns the Redis key holding userID's presence.
func Key(userID string) string {
	return keyPrefix + userID
}

// TTL is the expiry set on every presence key.
func (m *RedisMirror) TTL() time.Duration {
	return m.ttl
}

// Start subscribes to presence changes and launches the worker. Both stop
// when ctx is canceled.
func (m *RedisMirror) Start(ctx context.Context, sub pubsub.Subscriber) error {
	if err := pubsub.Subscribe(ctx, sub, ChangedEvent, m.Apply); err != nil {
		return fmt.Errorf("subscribe to %s: %w", ChangedEvent.Name(), err)
	}
	go m.run(ctx)
	return nil
}

// Apply queues a transition for the worker and returns immediately. A newer
// change for the same user replaces an older one that was not written yet.
func (m *RedisMirror) Apply(_ context.Context, ev Changed) error {
	m.mu.Lock()
	if prev, ok := m.pending[ev.UserID]; !ok || prev.Seq <= ev.Seq {
		m.pending[ev.UserID] = ev
	}
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
	return nil
}

// Flush writes every queued change in sequence order. A failed write stays
// queued and is retried on the next tick unless a newer change replaced it.
func (m *RedisMirror) Flush(ctx context.Context) {
	m.mu.Lock()
	batch := make([]Changed, 0, len(m.pending))
	for _, ev := range m.pending {
		batch = append(batch, ev)
	}
	clear(m.pending)
	m.mu.Unlock()

	sort.Slice(batch, func(i, j int) bool { return batch[i].Seq < batch[j].Seq })

	for _, ev := range batch {
		if err := m.write(ctx, ev); err != nil {
			m.logger.Warn("Failed to mirror presence", "user_id", ev.UserID, "online", ev.Online, "error", err)
			m.requeue(ev)
		}
	}
}

// Pending reports how many users have a change waiting to be written.
func (m *RedisMirror) Pending() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Refresh extends the TTL of every online identity's key. It uses EXPIRE so
// a key deleted by an offline transition is never brought back.
func (m *RedisMirror) Refresh(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	for _, id := range m.online.Online() {
		if err := m.client.Expire(ctx, Key(id.ID()), m.ttl).Err(); err != nil {
			m.logger.Warn("Failed to refresh presence key", "user_id", id.ID(), "error", err)
			return
		}
	}
}

func (m *RedisMirror) write(ctx context.Context, ev Changed) error {
	ctx, cancel := context.WithTimeout(ctx, redisTimeout)
	defer cancel()

	if ev.Online {
		return m.client.Set(ctx, Key(ev.UserID), ev.Name, m.ttl).Err()
	}
	return m.client.Del(ctx, Key(ev.UserID)).Err()
}

func (m *RedisMirror) requeue(ev Changed) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, newer := m.pending[ev.UserID]; !newer {
		m.pending[ev.UserID] = ev
	}
}

func (m *RedisMirror) run(ctx context.Context) {
	ticker := time.NewTicker(m.ttl / 3)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.wake:
			m.Flush(ctx)
		case <-ticker.C:
			m.Flush(ctx)
			m.Refresh(ctx)
		}
	}
}
