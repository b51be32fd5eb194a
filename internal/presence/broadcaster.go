// Package presence fans presence changes out to live connections and
// mirrors them to external systems.
package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nfrund/gobychat/internal/domain"
	"github.com/nfrund/gobychat/internal/metrics"
	"github.com/nfrund/gobychat/internal/pubsub"
	"github.com/nfrund/gobychat/internal/websocket"
)

// Changed is published on the bus after every online/offline transition.
type Changed struct {
	Seq    uint64    `json:"seq"`
	UserID string    `json:"user_id"`
	Name   string    `json:"name"`
	Online bool      `json:"online"`
	Users  []string  `json:"users"`
	At     time.Time `json:"at"`
}

// ChangedEvent is the bus topic for Changed.
var ChangedEvent = pubsub.NewEvent[Changed]("presence.changed")

// Source is the part of the registry the broadcaster consumes.
type Source interface {
	Notify() <-chan struct{}
	Drain() []websocket.Event
	All() []websocket.Conn
}

// Broadcaster turns registry events into presence_update frames. A single
// goroutine handles events in registry order, so every connection sees
// presence sets in the order the changes happened.
type Broadcaster struct {
	source    Source
	publisher pubsub.Publisher
	metrics   *metrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// Option configures a Broadcaster.
type Option func(*Broadcaster)

// WithPublisher publishes a Changed event for every transition.
func WithPublisher(p pubsub.Publisher) Option {
	return func(b *Broadcaster) { b.publisher = p }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Broadcaster) { b.metrics = m }
}

func WithLogger(l *slog.Logger) Option {
	return func(b *Broadcaster) { b.logger = l }
}

func NewBroadcaster(source Source, opts ...Option) *Broadcaster {
	b := &Broadcaster{
		source: source,
		logger: slog.Default().With("component", "presence"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run handles events until ctx is canceled. Events still queued at that
// point are flushed first.
func (b *Broadcaster) Run(ctx context.Context) {
	b.logger.Info("Presence broadcaster started")
	for {
		select {
		case <-ctx.Done():
			b.flush(context.WithoutCancel(ctx))
			b.logger.Info("Presence broadcaster stopped")
			return
		case <-b.source.Notify():
			b.flush(ctx)
		}
	}
}

func (b *Broadcaster) flush(ctx context.Context) {
	for _, ev := range b.source.Drain() {
		b.handle(ctx, ev)
	}
}

func (b *Broadcaster) handle(ctx context.Context, ev websocket.Event) {
	frame := websocket.EncodePresence(ev.Seq, ev.Online)

	if ev.Kind == websocket.EventSync {
		if ev.Target != nil {
			b.deliver(ev.Target, frame)
		}
		return
	}

	for _, conn := range b.source.All() {
		b.deliver(conn, frame)
	}
	b.metrics.PresenceBroadcast()
	b.logger.Debug("Presence changed", "user_id", ev.Identity.ID(), "kind", ev.Kind, "seq", ev.Seq, "online", len(ev.Online))

	if b.publisher != nil {
		users := make([]string, len(ev.Online))
		for i, id := range ev.Online {
			users[i] = id.ID()
		}
		changed := Changed{
			Seq:    ev.Seq,
			UserID: ev.Identity.ID(),
			Name:   ev.Identity.Name(),
			Online: ev.Kind == websocket.EventOnline,
			Users:  users,
			At:     b.now().UTC(),
		}
		if err := pubsub.Publish(ctx, b.publisher, ChangedEvent, changed.UserID, changed); err != nil {
			b.logger.Warn("Failed to publish presence change", "user_id", changed.UserID, "error", err)
		}
	}
}

// deliver never blocks; a connection that cannot take the frame is skipped.
func (b *Broadcaster) deliver(conn websocket.Conn, frame []byte) {
	if err := conn.Send(frame); err != nil {
		result := metrics.DeliveryDropped
		if errors.Is(err, websocket.ErrConnClosed) {
			b.logger.Debug("Skipped closed connection", "conn_id", conn.ID())
		} else {
			b.logger.Warn("Dropped presence update", "conn_id", conn.ID(),
				"error", fmt.Errorf("%w: %w", domain.ErrDeliveryFailed, err))
		}
		b.metrics.Delivery("presence", result)
		return
	}
	b.metrics.Delivery("presence", metrics.DeliveryOK)
}
