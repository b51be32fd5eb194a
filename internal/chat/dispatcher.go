// Package chat persists direct messages and delivers them to the
// recipient's live connections.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/metrics"
	"github.com/nfrund/gobychat/internal/websocket"
)

// DefaultMaxPayloadBytes caps a message payload unless overridden.
const DefaultMaxPayloadBytes = 4096

// DefaultHistoryLimit is the page size used when History gets limit <= 0.
const DefaultHistoryLimit = 100

// ConnectionLookup finds the live connections of an identity.
type ConnectionLookup interface {
	ConnectionsFor(identity domain.Identity) []websocket.Conn
}

// Dispatcher validates, persists and delivers direct messages.
//
// Sends for the same sender and recipient are serialized from persistence
// through delivery, so the recipient sees them in the order they were
// stored. Unrelated pairs proceed in parallel.
type Dispatcher struct {
	store      domain.MessageRepository
	conns      ConnectionLookup
	maxPayload int
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      *monotonicClock
	newID      func() string

	locks pairLocks
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

func WithMaxPayloadBytes(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.maxPayload = n
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) { d.logger = l }
}

// WithClock replaces the time source. Timestamps stay strictly increasing
// even if now does not.
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) { d.clock = &monotonicClock{now: now} }
}

func NewDispatcher(store domain.MessageRepository, conns ConnectionLookup, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		store:      store,
		conns:      conns,
		maxPayload: DefaultMaxPayloadBytes,
		logger:     slog.Default().With("component", "chat"),
		clock:      &monotonicClock{now: time.Now},
		newID:      uuid.NewString,
		locks:      pairLocks{locks: make(map[string]*pairLock)},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Send stores payload as a message from sender to recipient, then pushes it
// to every live connection of the recipient without blocking. Nothing is
// delivered if the store fails. A delivery failure on one connection does
// not affect the others or the result.
func (d *Dispatcher) Send(ctx context.Context, sender, recipient domain.Identity, payload string) (domain.Receipt, error) {
	if err := d.validate(sender, recipient, payload); err != nil {
		d.metrics.SendFailed("invalid_payload")
		return domain.Receipt{}, err
	}

	key := pairKey(sender.ID(), recipient.ID())
	lock := d.locks.acquire(key)
	defer d.locks.release(key, lock)

	msg := domain.Message{
		ID:          d.newID(),
		SenderID:    sender.ID(),
		RecipientID: recipient.ID(),
		Payload:     payload,
		CreatedAt:   d.clock.Now(),
	}
	if err := d.store.Append(ctx, msg); err != nil {
		d.metrics.SendFailed("persistence")
		d.logger.Error("Failed to persist message", "sender_id", sender.ID(), "recipient_id", recipient.ID(), "error", err)
		return domain.Receipt{}, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	d.metrics.MessagePersisted()

	delivered := d.deliver(recipient, msg)
	return domain.Receipt{Message: msg, Delivered: delivered}, nil
}

// History returns up to limit messages between a and b, oldest first.
func (d *Dispatcher) History(ctx context.Context, a, b domain.Identity, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	msgs, err := d.store.Conversation(ctx, a.ID(), b.ID(), limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrPersistence, err)
	}
	if msgs == nil {
		msgs = []domain.Message{}
	}
	return msgs, nil
}

func (d *Dispatcher) validate(sender, recipient domain.Identity, payload string) error {
	if sender.IsZero() || recipient.IsZero() {
		return fmt.Errorf("%w: sender and recipient are required", domain.ErrInvalidPayload)
	}
	if strings.TrimSpace(payload) == "" {
		return fmt.Errorf("%w: payload is empty", domain.ErrInvalidPayload)
	}
	if len(payload) > d.maxPayload {
		return fmt.Errorf("%w: payload exceeds %d bytes", domain.ErrInvalidPayload, d.maxPayload)
	}
	if !utf8.ValidString(payload) {
		return fmt.Errorf("%w: payload is not valid UTF-8", domain.ErrInvalidPayload)
	}
	return nil
}

func (d *Dispatcher) deliver(recipient domain.Identity, msg domain.Message) int {
	frame := websocket.EncodeNewMessage(msg)

	delivered := 0
	for _, conn := range d.conns.ConnectionsFor(recipient) {
		if err := conn.Send(frame); err != nil {
			d.metrics.Delivery("message", metrics.DeliveryDropped)
			if !errors.Is(err, websocket.ErrConnClosed) {
				d.logger.Warn("Dropped message delivery", "conn_id", conn.ID(), "message_id", msg.ID,
					"error", fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err))
			}
			continue
		}
		d.metrics.Delivery("message", metrics.DeliveryOK)
		delivered++
	}
	return delivered
}

// pairKey is directional: a->b and b->a are ordered independently.
func pairKey(sender, recipient string) string {
	return sender + "\x00" + recipient
}

type pairLock struct {
	mu   sync.Mutex
	refs int
}

// pairLocks hands out one mutex per sender/recipient pair and forgets it
// once nobody holds or waits on it.
type pairLocks struct {
	mu    sync.Mutex
	locks map[string]*pairLock
}

func (p *pairLocks) acquire(key string) *pairLock {
	p.mu.Lock()
	l, ok := p.locks[key]
	if !ok {
		l = &pairLock{}
		p.locks[key] = l
	}
	l.refs++
	p.mu.Unlock()

	l.mu.Lock()
	return l
}

func (p *pairLocks) release(key string, l *pairLock) {
	l.mu.Unlock()

	p.mu.Lock()
	l.refs--
	if l.refs == 0 {
		delete(p.locks, key)
	}
	p.mu.Unlock()
}

func (p *pairLocks) size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.locks)
}

// monotonicClock returns strictly increasing UTC timestamps so stores that
// order by creation time keep append order.
type monotonicClock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func (c *monotonicClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now().UTC().Round(0)
	if !t.After(c.last) {
		t = c.last.Add(time.Nanosecond)
	}
	c.last = t
	return t
}
