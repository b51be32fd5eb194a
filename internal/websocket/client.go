package websocket

import (
	"errors"
	"fmt"
	"sync"

	"github.com/nfrund/gobychat/internal/domain"
)

// State is a connection's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateAuthenticated
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

var (
	ErrInvalidTransition = errors.New("invalid connection state transition")
	ErrConnClosed        = errors.New("connection closed")
	ErrSendBufferFull    = errors.New("send buffer full")
)

// Client is one realtime connection. Frames queued with Send are drained by
// the connection's write loop through Outbound.
type Client struct {
	id string

	mu       sync.Mutex
	state    State
	identity domain.Identity
	onClose  []func()

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a client in StateConnecting with a send queue of
// the given capacity.
func NewClient(id string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 1
	}
	return &Client{
		id:    id,
		state: StateConnecting,
		send:  make(chan []byte, sendBuffer),
		done:  make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.id }

func (c *Client) Identity() domain.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.identity
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Authenticate binds the identity. Only valid from StateConnecting.
func (c *Client) Authenticate(identity domain.Identity) error {
	if identity.IsZero() {
		return fmt.Errorf("%w: empty identity", domain.ErrUnauthenticated)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateConnecting {
		return fmt.Errorf("%w: authenticate from %s", ErrInvalidTransition, c.state)
	}
	c.identity = identity
	c.state = StateAuthenticated
	return nil
}

// Open marks the transport as live. Only valid from StateAuthenticated.
func (c *Client) Open() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateAuthenticated {
		return fmt.Errorf("%w: open from %s", ErrInvalidTransition, c.state)
	}
	c.state = StateOpen
	return nil
}

// OnClose adds a hook run by the first Close call. Hooks run in the order
// they were added. Adding a hook to a closed client runs it immediately.
func (c *Client) OnClose(fn func()) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		fn()
		return
	}
	c.onClose = append(c.onClose, fn)
	c.mu.Unlock()
}

// Send queues frame for the write loop. It never blocks: a full queue yields
// ErrSendBufferFull and a closed client ErrConnClosed.
func (c *Client) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnClosed
	default:
	}

	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return ErrConnClosed
	default:
		return ErrSendBufferFull
	}
}

// Outbound is the queue drained by the write loop.
func (c *Client) Outbound() <-chan []byte { return c.send }

// Done is closed once the client reaches StateClosed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Close moves the client to StateClosed from any state and runs the close
// hooks. Only the first call has an effect.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		hooks := c.onClose
		c.onClose = nil
		c.mu.Unlock()

		close(c.done)
		for _, fn := range hooks {
			fn()
		}
	})
}
