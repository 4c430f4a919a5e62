package gateway

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/internal/registry"
	"github.com/amoylab/chatterbox/internal/session"
	"github.com/amoylab/chatterbox/pkg/trace"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Observer receives connection and command measurements
type Observer interface {
	ConnOpened()
	ConnClosed()
	CommandDone(command string, since time.Time, status string)
}

type nopObserver struct{}

func (nopObserver) ConnOpened()                           {}
func (nopObserver) ConnClosed()                           {}
func (nopObserver) CommandDone(string, time.Time, string) {}

// Gateway accepts websocket clients and runs a session for each
type Gateway struct {
	logger   *zap.Logger
	cfg      config.SocketConfig
	deps     session.Deps
	registry *registry.Registry
	observer Observer
	tracer   *trace.Builder
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc
	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// Option configures a Gateway
type Option func(*Gateway)

// WithObserver sets where connection and command measurements go
func WithObserver(o Observer) Option {
	return func(g *Gateway) { g.observer = o }
}

// New creates a gateway registering its connections in reg
func New(logger *zap.Logger, cfg config.SocketConfig, deps session.Deps, reg *registry.Registry, opts ...Option) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Gateway{
		logger:   logger.Named("gateway"),
		cfg:      cfg,
		deps:     deps,
		registry: reg,
		observer: nopObserver{},
		tracer:   trace.Tracer("chatterbox/gateway"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, opt := range opts {
		opt(g)
	}
	if deps.Presence != nil && deps.Presence.Window() != cfg.HeartbeatTimeout {
		g.logger.Warn("presence window differs from heartbeat timeout",
			zap.Duration("window", deps.Presence.Window()),
			zap.Duration("heartbeat_timeout", cfg.HeartbeatTimeout))
	}
	return g
}

// Handle upgrades a gin request to a websocket session
func (g *Gateway) Handle(c *gin.Context) {
	g.ServeHTTP(c.Writer, c.Request)
}

// ServeHTTP upgrades the request and serves the connection until it closes
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("failed to upgrade websocket connection", zap.Error(err))
		return
	}

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		_ = ws.Close()
		return
	}
	g.wg.Add(1)
	g.mu.Unlock()
	defer g.wg.Done()
	g.serve(ws)
}

func (g *Gateway) serve(ws *websocket.Conn) {
	c := newConn(uuid.NewString(), g, ws)
	g.registry.Add(c)
	// Close may have swept the registry before this Add
	if g.ctx.Err() != nil {
		g.registry.Remove(c.id)
		_ = ws.Close()
		return
	}
	g.observer.ConnOpened()
	c.logger.Info("websocket client connected", zap.Int("local_connections", g.registry.Len()))

	go c.writeLoop()

	cctx, cancel := context.WithTimeout(g.ctx, g.cfg.CommandTimeout)
	c.session.Connect(cctx)
	cancel()

	c.readLoop(g.ctx)

	g.registry.Remove(c.id)
	c.close()

	// cleanup still runs while the gateway is shutting down
	dctx, cancel := context.WithTimeout(context.WithoutCancel(g.ctx), g.cfg.CommandTimeout)
	c.session.Disconnect(dctx)
	cancel()

	g.observer.ConnClosed()
	c.logger.Info("websocket client disconnected", zap.Int("local_connections", g.registry.Len()))
}

// Close disconnects every client and waits for their sessions to finish
func (g *Gateway) Close() {
	g.mu.Lock()
	g.closed = true
	g.mu.Unlock()

	g.cancel()
	g.registry.Each(func(rc registry.Conn) bool {
		if c, ok := rc.(*conn); ok {
			c.close()
		}
		return true
	})
	g.wg.Wait()
}
