package websocket

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nfrund/gobychat/internal/domain"
)

type fakeConn struct {
	id       string
	identity domain.Identity

	mu     sync.Mutex
	frames [][]byte
}

func newFakeConn(id string, identity domain.Identity) *fakeConn {
	return &fakeConn{id: id, identity: identity}
}

func (f *fakeConn) ID() string                { return f.id }
func (f *fakeConn) Identity() domain.Identity { return f.identity }
func (f *fakeConn) Close()                    {}

func (f *fakeConn) Send(frame []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = append(f.frames, frame)
	return nil
}

var (
	alice = domain.NewIdentity("alice", "Alice")
	bob   = domain.NewIdentity("bob", "Bob")
)

func ids(identities []domain.Identity) []string {
	out := make([]string, len(identities))
	for i, id := range identities {
		out[i] = id.ID()
	}
	return out
}

func TestRegistry_RegisterAndLookup(t *testing.T) {
	r := NewRegistry(nil)
	c1 := newFakeConn("c1", alice)
	c2 := newFakeConn("c2", alice)
	c3 := newFakeConn("c3", bob)

	require.NoError(t, r.Register(c1))
	require.NoError(t, r.Register(c2))
	require.NoError(t, r.Register(c3))

	assert.ElementsMatch(t, []Conn{c1, c2}, r.ConnectionsFor(alice))
	assert.True(t, r.IsOnline(alice))
	assert.True(t, r.IsOnline(bob))
	assert.Equal(t, []string{"alice", "bob"}, ids(r.Online()))
	assert.Equal(t, 3, r.Count())
	assert.Len(t, r.All(), 3)
}

func TestRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	c1 := newFakeConn("c1", alice)

	require.NoError(t, r.Register(c1))
	require.NoError(t, r.Register(c1))

	assert.Len(t, r.ConnectionsFor(alice), 1)
	assert.Len(t, r.Drain(), 1, "second register emits nothing")
}

func TestRegistry_RejectsAnonymousConnection(t *testing.T) {
	r := NewRegistry(nil)
	err := r.Register(newFakeConn("c1", domain.Identity{}))
	assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	assert.Zero(t, r.Count())
}

func TestRegistry_UnregisterDropsIdentityWithLastConnection(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newFakeConn("c1", alice)))
	require.NoError(t, r.Register(newFakeConn("c2", alice)))

	r.Unregister("c1")
	assert.True(t, r.IsOnline(alice))

	r.Unregister("c2")
	assert.False(t, r.IsOnline(alice))
	assert.Empty(t, r.ConnectionsFor(alice))
	assert.Empty(t, r.Online())
}

func TestRegistry_UnregisterUnknownIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newFakeConn("c1", alice)))
	r.Drain()

	r.Unregister("nope")
	r.Unregister("nope")

	assert.True(t, r.IsOnline(alice))
	assert.Empty(t, r.Drain())
}

func TestRegistry_ConnectionsForReturnsSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	require.NoError(t, r.Register(newFakeConn("c1", alice)))

	snapshot := r.ConnectionsFor(alice)
	r.Unregister("c1")

	assert.Len(t, snapshot, 1, "later mutations do not affect a snapshot")
}

func TestRegistry_EventsFollowPresenceTransitions(t *testing.T) {
	r := NewRegistry(nil)

	require.NoError(t, r.Register(newFakeConn("c1", alice)))
	second := newFakeConn("c2", alice)
	require.NoError(t, r.Register(second))
	require.NoError(t, r.Register(newFakeConn("c3", bob)))
	r.Unregister("c1")
	r.Unregister("c2")

	select {
	case <-r.Notify():
	default:
		t.Fatal("expected a pending notification")
	}

	events := r.Drain()
	require.Len(t, events, 4)

	assert.Equal(t, EventOnline, events[0].Kind)
	assert.Equal(t, []string{"alice"}, ids(events[0].Online))

	assert.Equal(t, EventSync, events[1].Kind)
	assert.Same(t, second, events[1].Target)
	assert.Equal(t, []string{"alice"}, ids(events[1].Online))

	assert.Equal(t, EventOnline, events[2].Kind)
	assert.Equal(t, []string{"alice", "bob"}, ids(events[2].Online))

	assert.Equal(t, EventOffline, events[3].Kind)
	assert.Equal(t, "Alice", events[3].Identity.Name())
	assert.Equal(t, []string{"bob"}, ids(events[3].Online))

	for i := 1; i < len(events); i++ {
		assert.Greater(t, events[i].Seq, events[i-1].Seq)
	}
	assert.Empty(t, r.Drain())
}

func TestRegistry_ConcurrentRegisterSameIdentity(t *testing.T) {
	r := NewRegistry(nil)
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, r.Register(newFakeConn(fmt.Sprintf("alice-%d", i), alice)))
		}(i)
	}
	wg.Wait()

	assert.Len(t, r.ConnectionsFor(alice), n)
	assert.Equal(t, n, r.Count())
	assert.Equal(t, []string{"alice"}, ids(r.Online()))

	events := r.Drain()
	require.Len(t, events, n)
	var online, syncs int
	for _, ev := range events {
		switch ev.Kind {
		case EventOnline:
			online++
		case EventSync:
			syncs++
		}
	}
	assert.Equal(t, 1, online, "only the first connection is a transition")
	assert.Equal(t, n-1, syncs)
	assert.Equal(t, EventOnline, events[0].Kind)
}

func TestRegistry_ConcurrentRegisterUnregister(t *testing.T) {
	r := NewRegistry(nil)
	const n = 100

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			identity := alice
			if i%2 == 0 {
				identity = bob
			}
			c := newFakeConn(string(rune('A'+i%26))+"-"+string(rune('a'+i/26)), identity)
			assert.NoError(t, r.Register(c))
			_ = r.ConnectionsFor(identity)
			_ = r.IsOnline(identity)
			r.Unregister(c.ID())
		}(i)
	}
	wg.Wait()

	assert.Zero(t, r.Count())
	assert.Empty(t, r.Online())

	// Transitions alternate per identity: online, offline, online, ...
	state := map[string]bool{}
	for _, ev := range r.Drain() {
		switch ev.Kind {
		case EventOnline:
			assert.False(t, state[ev.Identity.ID()])
			state[ev.Identity.ID()] = true
		case EventOffline:
			assert.True(t, state[ev.Identity.ID()])
			state[ev.Identity.ID()] = false
		}
	}
}
