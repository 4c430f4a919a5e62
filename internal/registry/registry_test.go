package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubConn struct{ id string }

func (c *stubConn) ID() string                   { return c.id }
func (c *stubConn) Deliver(string, []byte) error { return nil }

func TestRegistry_AddRemove(t *testing.T) {
	r := New()
	a := &stubConn{id: "a"}
	r.Add(a)
	r.Add(&stubConn{id: "b"})
	assert.Equal(t, 2, r.Len())

	a2 := &stubConn{id: "a"}
	r.Add(a2)
	assert.Equal(t, 2, r.Len(), "same id replaces")
	for _, c := range r.Snapshot() {
		if c.ID() == "a" {
			assert.Same(t, a2, c)
		}
	}

	r.Remove("a")
	r.Remove("a")
	assert.Equal(t, 1, r.Len())
	snap := r.Snapshot()
	require.Len(t, snap, 1)
	assert.Equal(t, "b", snap[0].ID())
}

func TestRegistry_ConcurrentUse(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("c%d", i)
			r.Add(&stubConn{id: id})
			_ = r.Snapshot()
			if i%2 == 0 {
				r.Remove(id)
			}
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 25, r.Len())
}

func TestRegistry_Each(t *testing.T) {
	r := New()
	for _, id := range []string{"a", "b", "c"} {
		r.Add(&stubConn{id: id})
	}

	seen := 0
	r.Each(func(Conn) bool {
		seen++
		return true
	})
	assert.Equal(t, 3, seen)

	seen = 0
	r.Each(func(Conn) bool {
		seen++
		return false
	})
	assert.Equal(t, 1, seen)
}
