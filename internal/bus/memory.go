package bus

import (
	"context"
	"sync"

	"github.com/amoylab/chatterbox/internal/common/cnst"

	"go.uber.org/zap"
)

const subscriberBuffer = 256

// MemoryBus implements Bus inside one process
type MemoryBus struct {
	logger *zap.Logger
	mu     sync.RWMutex
	subs   map[chan *Event]struct{}
	closed bool
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates an in-process bus
func NewMemoryBus(logger *zap.Logger) *MemoryBus {
	return &MemoryBus{
		logger: logger.Named("bus.memory"),
		subs:   make(map[chan *Event]struct{}),
	}
}

// Publish implements Bus.Publish. A subscriber that is not keeping up loses the event.
func (b *MemoryBus) Publish(_ context.Context, e *Event) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return cnst.ErrBusClosed
	}
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("subscriber queue is full, dropping event", zap.String("event", e.Name))
		}
	}
	return nil
}

// Subscribe implements Bus.Subscribe
func (b *MemoryBus) Subscribe(ctx context.Context) (<-chan *Event, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, cnst.ErrBusClosed
	}

	ch := make(chan *Event, subscriberBuffer)
	b.subs[ch] = struct{}{}

	go func() {
		<-ctx.Done()
		b.unsubscribe(ch)
	}()
	return ch, nil
}

func (b *MemoryBus) unsubscribe(ch chan *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
}

// Close implements Bus.Close
func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	for ch := range b.subs {
		delete(b.subs, ch)
		close(ch)
	}
	return nil
}
