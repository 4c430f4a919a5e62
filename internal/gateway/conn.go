package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/registry"
	"github.com/amoylab/chatterbox/internal/session"

	"github.com/gorilla/websocket"
	"github.com/tidwall/gjson"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// conn is one websocket client. Commands are handled one at a time on the
// read goroutine; every write goes through the send queue and the write goroutine.
type conn struct {
	id      string
	gw      *Gateway
	ws      *websocket.Conn
	logger  *zap.Logger
	session *session.Session

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

var _ registry.Conn = (*conn)(nil)

func newConn(id string, gw *Gateway, ws *websocket.Conn) *conn {
	c := &conn{
		id:     id,
		gw:     gw,
		ws:     ws,
		logger: gw.logger.With(zap.String("connection", id)),
		send:   make(chan []byte, gw.cfg.SendQueue),
		done:   make(chan struct{}),
	}
	c.session = session.New(id, gw.logger, gw.deps, c)
	return c
}

// ID implements registry.Conn
func (c *conn) ID() string {
	return c.id
}

// Deliver implements registry.Conn
func (c *conn) Deliver(event string, data []byte) error {
	frame, err := encodePush(event, data)
	if err != nil {
		return err
	}
	return c.enqueue(frame)
}

// Emit implements session.Emitter
func (c *conn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %q payload: %w", event, err)
	}
	return c.Deliver(event, data)
}

func (c *conn) enqueue(frame []byte) error {
	select {
	case <-c.done:
		return errConnClosed
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errConnClosed
	default:
		return errQueueFull
	}
}

func (c *conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *conn) refreshReadDeadline() error {
	return c.ws.SetReadDeadline(time.Now().Add(c.gw.cfg.HeartbeatTimeout))
}

// readLoop handles inbound frames until the client goes away or stays
// silent past the heartbeat timeout.
func (c *conn) readLoop(ctx context.Context) {
	c.ws.SetReadLimit(c.gw.cfg.MaxMessageSize)
	_ = c.refreshReadDeadline()
	c.ws.SetPongHandler(func(string) error {
		hctx, cancel := context.WithTimeout(ctx, c.gw.cfg.CommandTimeout)
		c.session.Heartbeat(hctx)
		cancel()
		return c.refreshReadDeadline()
	})

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Info("websocket connection error", zap.Error(err))
			}
			return
		}
		_ = c.refreshReadDeadline()
		c.handle(ctx, msg)
	}
}

// writeLoop owns every write to the socket and pings the client every heartbeat interval
func (c *conn) writeLoop() {
	ticker := time.NewTicker(c.gw.cfg.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.logger.Debug("write failed", zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.gw.cfg.WriteTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Debug("ping failed", zap.Error(err))
				c.close()
				return
			}
		case <-c.done:
			_ = c.ws.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.gw.cfg.WriteTimeout))
			return
		}
	}
}

// handle runs one command frame: {"event":"<command>","data":<any>,"ack":<id>}
func (c *conn) handle(ctx context.Context, msg []byte) {
	if !gjson.ValidBytes(msg) {
		c.logger.Warn("ignoring malformed frame", zap.Int("size", len(msg)))
		return
	}
	frame := gjson.ParseBytes(msg)
	command := frame.Get("event").String()
	ack := frame.Get("ack")
	hasAck := ack.Type == gjson.Number

	if command == "" {
		c.logger.Warn("ignoring frame without event")
		return
	}
	if !hasAck && session.RequiresAck(command) {
		c.logger.Debug("ignoring command without ack", zap.String("command", command))
		return
	}

	start := time.Now()
	span := c.gw.tracer.Start(ctx, "socket "+command).WithAttrs(
		attribute.String("socket.command", command),
		attribute.String("socket.connection", c.id),
	)
	defer span.End()

	cctx, cancel := context.WithTimeout(span.Ctx, c.gw.cfg.CommandTimeout)
	defer cancel()
	result, err := c.dispatch(cctx, command, frame.Get("data"))

	status := "ok"
	var errMsg string
	var rejection session.Rejection
	switch {
	case errors.Is(err, session.ErrUnknownCommand):
		c.logger.Warn("ignoring unknown command", zap.String("command", command))
		return
	case errors.As(err, &rejection):
		status, errMsg = "rejected", rejection.Error()
		span.WithAttrs(attribute.String("socket.rejection", errMsg))
	case err != nil:
		status, errMsg = "error", cnst.MsgInternal
		span.Fail(err)
		c.logger.Error("command failed", zap.String("command", command), zap.Error(err))
	}
	c.gw.observer.CommandDone(command, start, status)

	if !hasAck {
		return
	}
	reply, err := encodeAck(ack.Int(), result, errMsg)
	if err != nil {
		c.logger.Error("failed to encode ack", zap.String("command", command), zap.Error(err))
		reply, _ = encodeAck(ack.Int(), nil, cnst.MsgInternal)
	}
	if err := c.enqueue(reply); err != nil {
		c.logger.Warn("failed to send ack", zap.String("command", command), zap.Error(err))
	}
}

// dispatch runs the command, turning a panic into an error for this command only
func (c *conn) dispatch(ctx context.Context, command string, data gjson.Result) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("panic in command handler",
				zap.String("command", command),
				zap.Any("panic", r),
				zap.Stack("stack"))
			result, err = nil, fmt.Errorf("panic in %q: %v", command, r)
		}
	}()
	return c.session.Dispatch(ctx, command, data)
}
