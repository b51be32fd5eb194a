package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/time/rate"

	"github.com/nfrund/gobychat/internal/auth"
	"github.com/nfrund/gobychat/internal/domain"
)

const (
	// Time allowed to write a frame to the peer.
	writeWait = 10 * time.Second
	// Time allowed for the peer to answer a ping.
	pongWait = 60 * time.Second
	// Pings go out slightly more often than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// Authenticator resolves a session token to an identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (domain.Identity, error)
}

// MessageSender persists and delivers a direct message.
type MessageSender interface {
	Send(ctx context.Context, sender, recipient domain.Identity, payload string) (domain.Receipt, error)
}

// RecipientResolver looks up the identity behind a user id.
type RecipientResolver interface {
	Resolve(ctx context.Context, userID string) (domain.Identity, error)
}

// Options tunes the per-connection behavior of a Bridge.
type Options struct {
	SendBuffer   int
	MessageRate  rate.Limit
	MessageBurst int
	// ReadLimit caps the size of an inbound frame in bytes.
	ReadLimit int64
	// AllowedOrigins lists origins (full URLs or host patterns) that may open
	// a connection besides the server's own.
	AllowedOrigins     []string
	InsecureSkipVerify bool
	PingPeriod         time.Duration
}

func (o Options) withDefaults() Options {
	if o.SendBuffer <= 0 {
		o.SendBuffer = 64
	}
	if o.MessageRate <= 0 {
		o.MessageRate = 5
	}
	if o.MessageBurst <= 0 {
		o.MessageBurst = 10
	}
	if o.ReadLimit <= 0 {
		o.ReadLimit = 32 << 10
	}
	if o.PingPeriod <= 0 {
		o.PingPeriod = pingPeriod
	}
	return o
}

// Bridge upgrades authenticated HTTP requests to WebSocket connections,
// registers them and runs their read and write loops.
type Bridge struct {
	registry *Registry
	auth     Authenticator
	sender   MessageSender
	resolver RecipientResolver
	opts     Options
	logger   *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBridge creates a Bridge. Connections live until the client leaves or
// Shutdown is called.
func NewBridge(registry *Registry, authn Authenticator, sender MessageSender, resolver RecipientResolver, opts Options) *Bridge {
	ctx, cancel := context.WithCancel(context.Background())
	return &Bridge{
		registry: registry,
		auth:     authn,
		sender:   sender,
		resolver: resolver,
		opts:     opts.withDefaults(),
		logger:   slog.Default().With("component", "websocket"),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Handler serves GET /ws. The token is checked before the upgrade so a bad
// session gets a plain 401.
func (b *Bridge) Handler() echo.HandlerFunc {
	return func(c echo.Context) error {
		select {
		case <-b.ctx.Done():
			return echo.NewHTTPError(http.StatusServiceUnavailable, "server is shutting down")
		default:
		}

		client := NewClient(uuid.NewString(), b.opts.SendBuffer)
		identity, err := b.auth.Authenticate(c.Request().Context(), auth.TokenFromRequest(c.Request()))
		if err != nil {
			client.Close()
			b.logger.Debug("Rejected WebSocket connection", "error", err)
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}
		if err := client.Authenticate(identity); err != nil {
			client.Close()
			return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
		}

		conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
			OriginPatterns:     originPatterns(b.opts.AllowedOrigins),
			InsecureSkipVerify: b.opts.InsecureSkipVerify,
		})
		if err != nil {
			// Accept has already written the response.
			client.Close()
			b.logger.Warn("Failed to upgrade connection to WebSocket", "user_id", identity.ID(), "error", err)
			return nil
		}
		conn.SetReadLimit(b.opts.ReadLimit)

		b.wg.Add(1)
		defer b.wg.Done()
		b.serve(client, conn)
		return nil
	}
}

// serve runs the connection until either loop stops.
func (b *Bridge) serve(client *Client, conn *websocket.Conn) {
	ctx, cancel := context.WithCancel(b.ctx)
	defer cancel()

	client.OnClose(func() { b.registry.Unregister(client.ID()) })
	client.OnClose(func() {
		cancel()
		_ = conn.Close(websocket.StatusNormalClosure, "")
	})

	if err := client.Open(); err != nil {
		client.Close()
		return
	}
	if err := b.registry.Register(client); err != nil {
		b.logger.Error("Failed to register connection", "conn_id", client.ID(), "error", err)
		client.Close()
		return
	}

	identity := client.Identity()
	log := b.logger.With("user_id", identity.ID(), "conn_id", client.ID())
	log.Info("Client connected")

	go b.writeLoop(ctx, client, conn, log)
	b.readLoop(ctx, client, conn, log)

	client.Close()
	log.Info("Client disconnected")
}

func (b *Bridge) readLoop(ctx context.Context, client *Client, conn *websocket.Conn, log *slog.Logger) {
	limiter := rate.NewLimiter(b.opts.MessageRate, b.opts.MessageBurst)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			switch status := websocket.CloseStatus(err); {
			case status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway:
				log.Debug("WebSocket closed by client")
			case errors.Is(err, context.Canceled) || ctx.Err() != nil:
			default:
				log.Warn("WebSocket read error", "error", err)
			}
			return
		}

		var frame Inbound
		if err := json.Unmarshal(data, &frame); err != nil {
			b.reply(client, log, encodeError("", CodeBadRequest, "malformed frame"))
			continue
		}
		if !limiter.Allow() {
			b.reply(client, log, encodeError(frame.Ref, CodeRateLimited, "slow down"))
			continue
		}
		b.handleFrame(ctx, client, frame, log)
	}
}

func (b *Bridge) handleFrame(ctx context.Context, client *Client, frame Inbound, log *slog.Logger) {
	switch frame.Type {
	case FramePing:
		b.reply(client, log, encodePong())

	case FrameSendMessage:
		if frame.To == "" {
			b.reply(client, log, encodeError(frame.Ref, CodeBadRequest, "recipient is required"))
			return
		}
		recipient, err := b.resolver.Resolve(ctx, frame.To)
		if err != nil {
			if errors.Is(err, domain.ErrNotFound) {
				b.reply(client, log, encodeError(frame.Ref, CodeUnknownRecipient, "unknown recipient"))
				return
			}
			log.Error("Failed to resolve recipient", "recipient_id", frame.To, "error", err)
			b.reply(client, log, encodeError(frame.Ref, CodePersistenceError, "message not sent"))
			return
		}

		receipt, err := b.sender.Send(ctx, client.Identity(), recipient, frame.Payload)
		switch {
		case err == nil:
			b.reply(client, log, encodeSent(frame.Ref, receipt))
		case errors.Is(err, domain.ErrInvalidPayload):
			b.reply(client, log, encodeError(frame.Ref, CodeInvalidPayload, "message payload is invalid"))
		default:
			b.reply(client, log, encodeError(frame.Ref, CodePersistenceError, "message not sent"))
		}

	default:
		b.reply(client, log, encodeError(frame.Ref, CodeBadRequest, "unknown frame type"))
	}
}

func (b *Bridge) reply(client *Client, log *slog.Logger, frame []byte) {
	if err := client.Send(frame); err != nil && !errors.Is(err, ErrConnClosed) {
		log.Warn("Dropped reply", "error", err)
	}
}

func (b *Bridge) writeLoop(ctx context.Context, client *Client, conn *websocket.Conn, log *slog.Logger) {
	ticker := time.NewTicker(b.opts.PingPeriod)
	defer ticker.Stop()
	defer client.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case <-client.Done():
			return
		case frame := <-client.Outbound():
			wctx, cancel := context.WithTimeout(ctx, writeWait)
			err := conn.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("WebSocket write error", "error", err)
				}
				return
			}
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, pongWait)
			err := conn.Ping(pctx)
			cancel()
			if err != nil {
				if ctx.Err() == nil {
					log.Info("Ping failed, dropping connection", "error", err)
				}
				return
			}
		}
	}
}

// Shutdown closes every live connection and waits for their handlers to
// return, or for ctx to expire.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.cancel()

	var closing sync.WaitGroup
	for _, conn := range b.registry.All() {
		closing.Add(1)
		go func(c Conn) {
			defer closing.Done()
			c.Close()
		}(conn)
	}

	done := make(chan struct{})
	go func() {
		closing.Wait()
		b.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// originPatterns turns configured origins into the host patterns Accept
// matches against. Entries without a scheme pass through untouched.
func originPatterns(origins []string) []string {
	patterns := make([]string, 0, len(origins))
	for _, o := range origins {
		if u, err := url.Parse(o); err == nil && u.Host != "" {
			patterns = append(patterns, u.Host)
			continue
		}
		if o != "" {
			patterns = append(patterns, o)
		}
	}
	return patterns
}
