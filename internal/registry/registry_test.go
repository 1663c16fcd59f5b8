package registry_test

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kkbullenn/trivia-app/internal/registry"
)

type stubConn struct {
	id string
}

func (c *stubConn) ID() string                               { return c.id }
func (c *stubConn) Send(ctx context.Context, d []byte) error { return nil }
func (c *stubConn) Close() error                             { return nil }

func TestRegistry_RegisterUnregister(t *testing.T) {
	t.Parallel()

	r := registry.New()
	c := &stubConn{id: "c1"}

	r.Register(registry.Binding{SessionID: 1, UserID: 10, Username: "alice"}, c)

	b, ok := r.BindingFor(c)
	require.True(t, ok)
	assert.Equal(t, int64(1), b.SessionID)
	assert.Equal(t, int64(10), b.UserID)
	assert.Equal(t, "alice", b.Username)
	assert.Equal(t, 1, r.Count(1))

	got, ok := r.Unregister(c)
	require.True(t, ok)
	assert.Equal(t, b, got)
	assert.Equal(t, 0, r.Count(1))

	_, ok = r.Unregister(c)
	assert.False(t, ok, "second unregister is a no-op")
}

func TestRegistry_RebindMovesConnection(t *testing.T) {
	t.Parallel()

	r := registry.New()
	c := &stubConn{id: "c1"}

	assert.True(t, r.Register(registry.Binding{SessionID: 1, UserID: 10, Username: "alice"}, c),
		"first bind is new")
	assert.False(t, r.Register(registry.Binding{SessionID: 2, UserID: 10, Username: "alice"}, c),
		"a rebind must not count as a new connection")

	assert.Equal(t, 0, r.Count(1))
	assert.Equal(t, 1, r.Count(2))

	b, ok := r.BindingFor(c)
	require.True(t, ok)
	assert.Equal(t, int64(2), b.SessionID)
}

// Register/unregister pairs stay balanced across rebinds: a connection that
// joins twice still nets exactly one new-bind and one unregister.
func TestRegistry_RebindStaysBalanced(t *testing.T) {
	t.Parallel()

	r := registry.New()
	c := &stubConn{id: "c1"}

	newBinds := 0
	for _, sessionID := range []int64{1, 1, 2} {
		if r.Register(registry.Binding{SessionID: sessionID, UserID: 10}, c) {
			newBinds++
		}
	}
	assert.Equal(t, 1, newBinds)

	_, ok := r.Unregister(c)
	assert.True(t, ok)
	_, ok = r.Unregister(c)
	assert.False(t, ok)
}

func TestRegistry_SnapshotIsolation(t *testing.T) {
	t.Parallel()

	r := registry.New()
	c1 := &stubConn{id: "c1"}
	c2 := &stubConn{id: "c2"}

	r.Register(registry.Binding{SessionID: 1, UserID: 10}, c1)
	r.Register(registry.Binding{SessionID: 1, UserID: 20}, c2)

	snap := r.ConnectionsIn(1)
	require.Len(t, snap, 2)

	r.Unregister(c1)

	// the snapshot taken before the unregister is unchanged
	assert.Len(t, snap, 2)
	assert.Len(t, r.ConnectionsIn(1), 1)
}

func TestRegistry_ParticipantConnections(t *testing.T) {
	t.Parallel()

	r := registry.New()
	c1 := &stubConn{id: "c1"}
	c2 := &stubConn{id: "c2"}
	c3 := &stubConn{id: "c3"}

	r.Register(registry.Binding{SessionID: 1, UserID: 10}, c1)
	r.Register(registry.Binding{SessionID: 1, UserID: 10}, c2)
	r.Register(registry.Binding{SessionID: 1, UserID: 20}, c3)

	assert.ElementsMatch(t, []registry.Conn{c1, c2}, r.ParticipantConnections(1, 10))
	assert.ElementsMatch(t, []registry.Conn{c3}, r.ParticipantConnections(1, 20))
	assert.Empty(t, r.ParticipantConnections(1, 30))
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	t.Parallel()

	r := registry.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()

			c := &stubConn{id: fmt.Sprintf("c%d", i)}
			r.Register(registry.Binding{SessionID: 1, UserID: int64(i)}, c)
			r.ConnectionsIn(1)
			r.Unregister(c)
		}()
	}
	wg.Wait()

	assert.Equal(t, 0, r.Count(1))
}
