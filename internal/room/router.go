package room

import (
	"context"

	"github.com/amoylab/chatterbox/internal/bus"
	"github.com/amoylab/chatterbox/internal/registry"

	"go.uber.org/zap"
)

// Router delivers bus events to the connections of this process. Scope is
// the only routing input: the room carried by typing events is advisory and
// left for clients to filter on.
type Router struct {
	logger    *zap.Logger
	registry  *registry.Registry
	onDeliver func(event string, n int)
}

// RouterOption configures a Router
type RouterOption func(*Router)

// WithDeliverObserver is called after each routed event with the number of local recipients.
func WithDeliverObserver(fn func(event string, n int)) RouterOption {
	return func(r *Router) { r.onDeliver = fn }
}

// NewRouter creates a router delivering into reg
func NewRouter(logger *zap.Logger, reg *registry.Registry, opts ...RouterOption) *Router {
	r := &Router{
		logger:   logger.Named("room.router"),
		registry: reg,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Route delivers e to every local connection in its scope and returns how many received it.
func (r *Router) Route(e *bus.Event) int {
	delivered := 0
	for _, conn := range r.registry.Snapshot() {
		if !e.Reaches(conn.ID()) {
			continue
		}
		if err := conn.Deliver(e.Name, e.Data); err != nil {
			r.logger.Warn("failed to deliver event",
				zap.String("event", e.Name),
				zap.String("connection", conn.ID()),
				zap.Error(err))
			continue
		}
		delivered++
	}
	if r.onDeliver != nil {
		r.onDeliver(e.Name, delivered)
	}
	return delivered
}

// Run routes events until the channel closes or ctx is done.
func (r *Router) Run(ctx context.Context, events <-chan *bus.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				r.logger.Info("event subscription closed")
				return
			}
			r.Route(e)
		}
	}
}
