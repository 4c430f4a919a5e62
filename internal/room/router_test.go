package room

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/chatterbox/internal/bus"
	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type recordingConn struct {
	id  string
	err error

	mu     sync.Mutex
	events []string
}

func (c *recordingConn) ID() string { return c.id }

func (c *recordingConn) Deliver(event string, _ []byte) error {
	if c.err != nil {
		return c.err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func (c *recordingConn) received() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.events...)
}

func TestCatalog(t *testing.T) {
	rooms := Catalog()
	require.Len(t, rooms, 4)
	assert.Equal(t, "general", rooms[0].ID)
	for _, r := range rooms {
		assert.Equal(t, "none", r.Status)
		assert.Zero(t, r.OnlineCount)
	}

	rooms[0].ID = "mutated"
	assert.Equal(t, "general", Catalog()[0].ID)
}

func TestRouter_RouteByScope(t *testing.T) {
	reg := registry.New()
	a := &recordingConn{id: "a"}
	b := &recordingConn{id: "b"}
	reg.Add(a)
	reg.Add(b)

	var observed []int
	r := NewRouter(zap.NewNop(), reg, WithDeliverObserver(func(_ string, n int) { observed = append(observed, n) }))

	assert.Equal(t, 1, r.Route(&bus.Event{Name: cnst.EventNewMessage, Scope: bus.ScopeOthers, Origin: "a"}))
	assert.Equal(t, 2, r.Route(&bus.Event{Name: cnst.EventUserJoined, Scope: bus.ScopeAll, Origin: "a"}))
	// the room does not narrow delivery
	assert.Equal(t, 2, r.Route(&bus.Event{Name: cnst.EventTyping, Scope: bus.ScopeOthers, Origin: "remote", Room: "lambda"}))

	assert.Equal(t, []string{cnst.EventUserJoined, cnst.EventTyping}, a.received())
	assert.Equal(t, []string{cnst.EventNewMessage, cnst.EventUserJoined, cnst.EventTyping}, b.received())
	assert.Equal(t, []int{1, 2, 2}, observed)
}

func TestRouter_DeliveryFailureDoesNotStopOthers(t *testing.T) {
	reg := registry.New()
	reg.Add(&recordingConn{id: "broken", err: errors.New("queue full")})
	ok := &recordingConn{id: "ok"}
	reg.Add(ok)

	r := NewRouter(zap.NewNop(), reg)
	assert.Equal(t, 1, r.Route(&bus.Event{Name: cnst.EventUserLeft, Scope: bus.ScopeAll}))
	assert.Equal(t, []string{cnst.EventUserLeft}, ok.received())
}

func TestRouter_Run(t *testing.T) {
	reg := registry.New()
	c := &recordingConn{id: "c"}
	reg.Add(c)

	b := bus.NewMemoryBus(zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events, err := b.Subscribe(ctx)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		NewRouter(zap.NewNop(), reg).Run(ctx, events)
		close(done)
	}()

	require.NoError(t, b.Publish(ctx, &bus.Event{Name: cnst.EventStopTyping, Scope: bus.ScopeOthers, Origin: "x"}))
	assert.Eventually(t, func() bool { return len(c.received()) == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.Close())
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("router did not stop after the subscription closed")
	}
}
