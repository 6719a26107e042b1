package runtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegistry_AddRemove(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	conn := NewConnection(&fakeConn{})
	registry.Add(conn)
	req.Equal(1, registry.Len())

	got, ok := registry.TryGet(conn.ID)
	req.True(ok)
	req.Same(conn, got)

	// First removal returns the connection, the second reports it gone
	req.Same(conn, registry.Remove(conn.ID))
	req.Nil(registry.Remove(conn.ID))
	req.Equal(0, registry.Len())

	_, ok = registry.TryGet(conn.ID)
	req.False(ok)
}

func TestRegistry_SnapshotIsACopy(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	first := NewConnection(&fakeConn{})
	second := NewConnection(&fakeConn{})
	registry.Add(first)
	registry.Add(second)

	snapshot := registry.Snapshot()
	req.Len(snapshot, 2)

	// Mutating the registry after the snapshot does not affect it
	registry.Remove(first.ID)
	req.Len(snapshot, 2)
	req.Equal(1, registry.Len())
}

func TestRegistry_ConcurrentAccess(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	const n = 50
	var wg sync.WaitGroup
	ids := make(chan string, n)

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn := NewConnection(&fakeConn{})
			registry.Add(conn)
			ids <- conn.ID
		}()
	}
	wg.Wait()
	close(ids)
	req.Equal(n, registry.Len())

	for id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			registry.Snapshot()
			req.NotNil(registry.Remove(id))
		}(id)
	}
	wg.Wait()
	req.Equal(0, registry.Len())
}
