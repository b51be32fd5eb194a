package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/nfrund/gobychat/internal/domain"
)

type fakeAuth map[string]domain.Identity

func (f fakeAuth) Authenticate(_ context.Context, token string) (domain.Identity, error) {
	id, ok := f[token]
	if !ok {
		return domain.Identity{}, domain.ErrUnauthenticated
	}
	return id, nil
}

type fakeResolver map[string]domain.Identity

func (f fakeResolver) Resolve(_ context.Context, userID string) (domain.Identity, error) {
	id, ok := f[userID]
	if !ok {
		return domain.Identity{}, domain.ErrNotFound
	}
	return id, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []domain.Message
	err  error
}

func (f *fakeSender) Send(_ context.Context, sender, recipient domain.Identity, payload string) (domain.Receipt, error) {
	if payload == "" {
		return domain.Receipt{}, domain.ErrInvalidPayload
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return domain.Receipt{}, f.err
	}
	msg := domain.Message{ID: "m1", SenderID: sender.ID(), RecipientID: recipient.ID(), Payload: payload}
	f.sent = append(f.sent, msg)
	return domain.Receipt{Message: msg, Delivered: 1}, nil
}

type bridgeFixture struct {
	registry *Registry
	sender   *fakeSender
	bridge   *Bridge
	url      string
}

func newBridgeFixture(t *testing.T, opts Options) *bridgeFixture {
	t.Helper()

	registry := NewRegistry(nil)
	sender := &fakeSender{}
	identities := map[string]domain.Identity{"alice": alice, "bob": bob}
	bridge := NewBridge(registry, fakeAuth(identities), sender, fakeResolver(identities), opts)

	e := echo.New()
	e.GET("/ws", bridge.Handler())
	srv := httptest.NewServer(e)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = bridge.Shutdown(ctx)
		srv.Close()
	})

	return &bridgeFixture{
		registry: registry,
		sender:   sender,
		bridge:   bridge,
		url:      "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws",
	}
}

func (f *bridgeFixture) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := websocket.Dial(ctx, f.url+"?token="+token, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.CloseNow() })
	return conn
}

func writeJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, data))
}

func readFrame(t *testing.T, conn *websocket.Conn) map[string]any {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var frame map[string]any
	require.NoError(t, json.Unmarshal(data, &frame))
	return frame
}

func TestBridge_RejectsBadToken(t *testing.T) {
	f := newBridgeFixture(t, Options{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, resp, err := websocket.Dial(ctx, f.url+"?token=nobody", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Zero(t, f.registry.Count())
}

func TestBridge_RegistersAndUnregisters(t *testing.T) {
	f := newBridgeFixture(t, Options{})
	conn := f.dial(t, "alice")

	assert.Eventually(t, func() bool { return f.registry.IsOnline(alice) }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	assert.Eventually(t, func() bool { return !f.registry.IsOnline(alice) }, 2*time.Second, 10*time.Millisecond)
}

func TestBridge_PingPong(t *testing.T) {
	f := newBridgeFixture(t, Options{})
	conn := f.dial(t, "alice")

	writeJSON(t, conn, Inbound{Type: FramePing})
	assert.Equal(t, FramePong, readFrame(t, conn)["type"])
}

func TestBridge_SendMessage(t *testing.T) {
	f := newBridgeFixture(t, Options{})
	conn := f.dial(t, "alice")

	writeJSON(t, conn, Inbound{Type: FrameSendMessage, Ref: "r1", To: "bob", Payload: "hi"})

	frame := readFrame(t, conn)
	assert.Equal(t, FrameMessageSent, frame["type"])
	assert.Equal(t, "r1", frame["ref"])
	assert.EqualValues(t, 1, frame["delivered"])

	f.sender.mu.Lock()
	defer f.sender.mu.Unlock()
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, "alice", f.sender.sent[0].SenderID)
	assert.Equal(t, "bob", f.sender.sent[0].RecipientID)
}

func TestBridge_SendErrors(t *testing.T) {
	f := newBridgeFixture(t, Options{})
	conn := f.dial(t, "alice")

	tests := []struct {
		name  string
		frame Inbound
		code  string
	}{
		{"empty payload", Inbound{Type: FrameSendMessage, Ref: "r1", To: "bob"}, CodeInvalidPayload},
		{"unknown recipient", Inbound{Type: FrameSendMessage, Ref: "r2", To: "carol", Payload: "hi"}, CodeUnknownRecipient},
		{"missing recipient", Inbound{Type: FrameSendMessage, Ref: "r3", Payload: "hi"}, CodeBadRequest},
		{"unknown type", Inbound{Type: "dance", Ref: "r4"}, CodeBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			writeJSON(t, conn, tt.frame)
			frame := readFrame(t, conn)
			assert.Equal(t, FrameError, frame["type"])
			assert.Equal(t, tt.code, frame["code"])
			assert.Equal(t, tt.frame.Ref, frame["ref"])
		})
	}
}

func TestBridge_PersistenceFailureIsReported(t *testing.T) {
	f := newBridgeFixture(t, Options{})
	f.sender.err = domain.ErrPersistence
	conn := f.dial(t, "alice")

	writeJSON(t, conn, Inbound{Type: FrameSendMessage, Ref: "r1", To: "bob", Payload: "hi"})
	frame := readFrame(t, conn)
	assert.Equal(t, CodePersistenceError, frame["code"])
}

func TestBridge_RateLimit(t *testing.T) {
	f := newBridgeFixture(t, Options{MessageRate: rate.Every(time.Hour), MessageBurst: 1})
	conn := f.dial(t, "alice")

	writeJSON(t, conn, Inbound{Type: FramePing})
	assert.Equal(t, FramePong, readFrame(t, conn)["type"])

	writeJSON(t, conn, Inbound{Type: FramePing, Ref: "r2"})
	frame := readFrame(t, conn)
	assert.Equal(t, FrameError, frame["type"])
	assert.Equal(t, CodeRateLimited, frame["code"])
}

func TestBridge_ShutdownClosesConnections(t *testing.T) {
	f := newBridgeFixture(t, Options{})
	conn := f.dial(t, "alice")
	require.Eventually(t, func() bool { return f.registry.Count() == 1 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// The server's close handshake needs the client to keep reading.
	go func() {
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	require.NoError(t, f.bridge.Shutdown(ctx))
	assert.Zero(t, f.registry.Count())
}

func TestOriginPatterns(t *testing.T) {
	assert.Equal(t,
		[]string{"localhost:5173", "chat.example.com", "*.example.org"},
		originPatterns([]string{"http://localhost:5173", "https://chat.example.com", "*.example.org", ""}),
	)
}
