package websocket

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/gobychat/internal/domain"
)

func TestClient_Lifecycle(t *testing.T) {
	c := NewClient("c1", 4)
	assert.Equal(t, StateConnecting, c.State())

	assert.ErrorIs(t, c.Open(), ErrInvalidTransition, "cannot open before authenticating")

	require.NoError(t, c.Authenticate(alice))
	assert.Equal(t, StateAuthenticated, c.State())
	assert.Equal(t, alice, c.Identity())
	assert.ErrorIs(t, c.Authenticate(bob), ErrInvalidTransition)

	require.NoError(t, c.Open())
	assert.Equal(t, StateOpen, c.State())

	c.Close()
	assert.Equal(t, StateClosed, c.State())
	assert.ErrorIs(t, c.Open(), ErrInvalidTransition)
}

func TestClient_AuthenticateRejectsEmptyIdentity(t *testing.T) {
	c := NewClient("c1", 1)
	assert.ErrorIs(t, c.Authenticate(domain.Identity{}), domain.ErrUnauthenticated)
	assert.Equal(t, StateConnecting, c.State())
}

func TestClient_CloseFromConnectingRunsHooksOnce(t *testing.T) {
	c := NewClient("c1", 1)

	var calls int
	var mu sync.Mutex
	c.OnClose(func() {
		mu.Lock()
		calls++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Close()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, calls)
	select {
	case <-c.Done():
	default:
		t.Fatal("done channel should be closed")
	}
}

func TestClient_OnCloseAfterCloseRunsImmediately(t *testing.T) {
	c := NewClient("c1", 1)
	c.Close()

	ran := false
	c.OnClose(func() { ran = true })
	assert.True(t, ran)
}

func TestClient_HooksRunInOrder(t *testing.T) {
	c := NewClient("c1", 1)
	var order []int
	c.OnClose(func() { order = append(order, 1) })
	c.OnClose(func() { order = append(order, 2) })
	c.Close()
	assert.Equal(t, []int{1, 2}, order)
}

func TestClient_SendNeverBlocks(t *testing.T) {
	c := NewClient("c1", 2)

	require.NoError(t, c.Send([]byte("a")))
	require.NoError(t, c.Send([]byte("b")))
	assert.ErrorIs(t, c.Send([]byte("c")), ErrSendBufferFull)

	assert.Equal(t, "a", string(<-c.Outbound()))

	c.Close()
	assert.ErrorIs(t, c.Send([]byte("d")), ErrConnClosed)
}

func TestClient_UnregistersExactlyOnce(t *testing.T) {
	r := NewRegistry(nil)
	c := NewClient("c1", 1)
	require.NoError(t, c.Authenticate(alice))
	require.NoError(t, c.Open())
	c.OnClose(func() { r.Unregister(c.ID()) })
	require.NoError(t, r.Register(c))
	r.Drain()

	c.Close()
	c.Close()

	assert.False(t, r.IsOnline(alice))
	events := r.Drain()
	require.Len(t, events, 1)
	assert.Equal(t, EventOffline, events[0].Kind)
}
