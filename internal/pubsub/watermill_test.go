package pubsub

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *recorder) handle(_ context.Context, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
	return nil
}

func (r *recorder) snapshot() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.msgs...)
}

func TestWatermillBridge_PublishSubscribe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	rec := &recorder{}
	require.NoError(t, bridge.Subscribe(ctx, "presence.changed", rec.handle))

	err := bridge.Publish(ctx, Message{
		Topic:    "presence.changed",
		UserID:   "u1",
		Payload:  []byte(`{"online":true}`),
		Metadata: map[string]string{"request_id": "req-1"},
	})
	require.NoError(t, err)

	// Publish blocks until the subscriber acked, so the message is already there.
	msgs := rec.snapshot()
	require.Len(t, msgs, 1)
	assert.Equal(t, "presence.changed", msgs[0].Topic)
	assert.Equal(t, "u1", msgs[0].UserID)
	assert.JSONEq(t, `{"online":true}`, string(msgs[0].Payload))
	assert.Equal(t, "req-1", msgs[0].Metadata["request_id"])
	assert.NotContains(t, msgs[0].Metadata, metaKeyTopic)
}

func TestWatermillBridge_PreservesPublishOrder(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	rec := &recorder{}
	require.NoError(t, bridge.Subscribe(ctx, "ordered", rec.handle))

	for i := 0; i < 20; i++ {
		require.NoError(t, bridge.Publish(ctx, Message{Topic: "ordered", Payload: []byte{byte(i)}}))
	}

	msgs := rec.snapshot()
	require.Len(t, msgs, 20)
	for i, m := range msgs {
		assert.Equal(t, byte(i), m.Payload[0])
	}
}

func TestWatermillBridge_HandlerErrorDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	calls := 0
	var mu sync.Mutex
	require.NoError(t, bridge.Subscribe(ctx, "failing", func(context.Context, Message) error {
		mu.Lock()
		calls++
		mu.Unlock()
		return errors.New("boom")
	}))

	done := make(chan error, 1)
	go func() { done <- bridge.Publish(ctx, Message{Topic: "failing"}) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a failing handler")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 1, calls, "failed messages are not redelivered")
}

func TestWatermillBridge_PublishWithoutSubscribers(t *testing.T) {
	bridge := NewWatermillBridge()
	defer bridge.Close()

	assert.NoError(t, bridge.Publish(context.Background(), Message{Topic: "nobody.listens"}))
}

type presenceEvent struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

func TestTypedEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bridge := NewWatermillBridge()
	defer bridge.Close()

	event := NewEvent[presenceEvent]("presence.test")
	assert.Equal(t, "presence.test", event.Name())

	var got []presenceEvent
	var mu sync.Mutex
	require.NoError(t, Subscribe(ctx, bridge, event, func(_ context.Context, p presenceEvent) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, p)
		return nil
	}))

	require.NoError(t, Publish(ctx, bridge, event, "u1", presenceEvent{UserID: "u1", Online: true}))

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 1)
	assert.Equal(t, presenceEvent{UserID: "u1", Online: true}, got[0])
}

func TestSetupOTel(t *testing.T) {
	ctx := context.Background()

	t.Run("disabled tracing", func(t *testing.T) {
		tracer, shutdown, err := SetupOTel(ctx, TracingConfig{Enabled: false})
		require.NoError(t, err)
		require.NotNil(t, tracer)

		_, span := tracer.Start(ctx, "test")
		span.End()
		assert.NoError(t, shutdown(ctx))
	})

	t.Run("enabled tracing", func(t *testing.T) {
		tracer, shutdown, err := SetupOTel(ctx, TracingConfig{
			Enabled:     true,
			ServiceName: "test-service",
			ZipkinURL:   "http://localhost:9411/api/v2/spans",
		})
		require.NoError(t, err)

		bridge := NewWatermillBridge(WithTracer(tracer))
		rec := &recorder{}
		subCtx, cancel := context.WithCancel(ctx)
		defer cancel()
		require.NoError(t, bridge.Subscribe(subCtx, "traced", rec.handle))
		require.NoError(t, bridge.Publish(ctx, Message{Topic: "traced", Payload: []byte("x")}))

		msgs := rec.snapshot()
		require.Len(t, msgs, 1)
		assert.NotEmpty(t, msgs[0].Metadata["traceparent"], "span context travels in metadata")

		require.NoError(t, bridge.Close())

		shutdownCtx, cancelShutdown := context.WithTimeout(ctx, 100*time.Millisecond)
		defer cancelShutdown()
		_ = shutdown(shutdownCtx) // no collector is running; export errors are expected
	})
}
