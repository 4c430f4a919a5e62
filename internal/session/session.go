// Package session implements the per-connection chat protocol: the
// unauthenticated/authenticated state machine, command validation and the
// side effects of each command on presence and the event bus.
package session

import (
	"context"
	"errors"
	"sync"

	"github.com/amoylab/chatterbox/internal/bus"
	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/identity"
	"github.com/amoylab/chatterbox/internal/message"
	"github.com/amoylab/chatterbox/internal/presence"
	"github.com/amoylab/chatterbox/internal/storage"

	"go.uber.org/zap"
)

var (
	// ErrUnknownCommand is returned by Dispatch for commands the protocol does not define
	ErrUnknownCommand = errors.New("unknown command")

	// ErrDisconnected is returned when a login finishes after the connection went away
	ErrDisconnected = errors.New("session disconnected")
)

// Rejection is a validation or authorization failure. Its text is sent to the client as is.
type Rejection string

func (r Rejection) Error() string { return string(r) }

// reject turns a collaborator error whose text is client-facing into a Rejection
func reject(err error) error {
	return Rejection(err.Error())
}

// Emitter delivers an event to the session's own connection
type Emitter interface {
	Emit(event string, payload any) error
}

// Accounts creates and authenticates registered users
type Accounts interface {
	Create(ctx context.Context, username, email, password string) (*identity.Identity, error)
	Authenticate(ctx context.Context, username, password string) (*identity.Identity, error)
}

// Messages stores and lists chat messages
type Messages interface {
	Add(ctx context.Context, room, username, avatar, text string) (*message.Message, error)
	ListFromRoom(ctx context.Context, room string, from *storage.Key) (*message.List, error)
}

// Deps are the collaborators shared by every session of a process
type Deps struct {
	Presence *presence.Store
	Bus      bus.Bus
	Accounts Accounts
	Messages Messages
}

// AuthResult acknowledges a successful authentication
type AuthResult struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
}

// Count is the payload of presence and login
type Count struct {
	NumUsers int `json:"numUsers"`
}

// Member is the payload of user joined and user left
type Member struct {
	Username string `json:"username"`
	Avatar   string `json:"avatar"`
	NumUsers int    `json:"numUsers"`
}

// Session is the protocol state of one connection. Authentication is
// monotonic: once set, the identity never changes until disconnect.
type Session struct {
	id     string
	logger *zap.Logger
	deps   Deps
	emit   Emitter

	mu           sync.Mutex
	user         *identity.Identity
	disconnected bool
}

// New creates the session of connection id in the unauthenticated state
func New(id string, logger *zap.Logger, deps Deps, emit Emitter) *Session {
	return &Session{
		id:     id,
		logger: logger.Named("session").With(zap.String("connection", id)),
		deps:   deps,
		emit:   emit,
	}
}

// ID returns the connection id
func (s *Session) ID() string {
	return s.id
}

// Identity returns the authenticated identity, or nil
func (s *Session) Identity() *identity.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.user
}

// Authenticated reports whether the session has an identity
func (s *Session) Authenticated() bool {
	return s.Identity() != nil
}

// Connect tells the connection how many users are present
func (s *Session) Connect(ctx context.Context) {
	s.send(cnst.EventPresence, Count{NumUsers: s.deps.Presence.Count(ctx)})
}

// Heartbeat refreshes presence. It does nothing until the session is authenticated.
func (s *Session) Heartbeat(ctx context.Context) {
	s.mu.Lock()
	user, gone := s.user, s.disconnected
	s.mu.Unlock()
	if user == nil || gone {
		return
	}
	s.deps.Presence.Upsert(ctx, s.id, presence.Meta{Username: user.Username})
}

// Disconnect removes presence and tells the other connections the user left.
// Calling it again does nothing.
func (s *Session) Disconnect(ctx context.Context) {
	s.mu.Lock()
	user, gone := s.user, s.disconnected
	s.disconnected = true
	s.mu.Unlock()
	if gone || user == nil {
		return
	}

	s.deps.Presence.Remove(ctx, s.id)
	s.publish(ctx, cnst.EventUserLeft, bus.ScopeOthers, "", Member{
		Username: user.Username,
		Avatar:   user.Avatar,
		NumUsers: s.deps.Presence.Count(ctx),
	})
}

// login runs the authentication side effects in order: mark the session,
// record presence, count once, tell this connection, tell everyone.
func (s *Session) login(ctx context.Context, user *identity.Identity) (*AuthResult, error) {
	s.mu.Lock()
	if s.disconnected {
		s.mu.Unlock()
		return nil, ErrDisconnected
	}
	if s.user != nil {
		s.mu.Unlock()
		return nil, Rejection(cnst.MsgAlreadyAuthenticated)
	}
	s.user = user
	s.mu.Unlock()

	s.deps.Presence.Upsert(ctx, s.id, presence.Meta{Username: user.Username})
	// a Disconnect that saw no user yet could not remove the record written above
	if s.isDisconnected() {
		s.deps.Presence.Remove(ctx, s.id)
		return nil, ErrDisconnected
	}
	numUsers := s.deps.Presence.Count(ctx)

	s.send(cnst.EventLogin, Count{NumUsers: numUsers})
	s.publish(ctx, cnst.EventUserJoined, bus.ScopeAll, "", Member{
		Username: user.Username,
		Avatar:   user.Avatar,
		NumUsers: numUsers,
	})

	s.logger.Info("user logged in", zap.String("username", user.Username))
	return &AuthResult{Username: user.Username, Avatar: user.Avatar}, nil
}

func (s *Session) isDisconnected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disconnected
}

func (s *Session) send(event string, payload any) {
	if err := s.emit.Emit(event, payload); err != nil {
		s.logger.Warn("failed to emit event", zap.String("event", event), zap.Error(err))
	}
}

// publish fans an event out over the bus. Delivery is best effort.
func (s *Session) publish(ctx context.Context, name string, scope bus.Scope, room string, payload any) {
	e, err := bus.NewEvent(name, scope, s.id, payload)
	if err != nil {
		s.logger.Error("failed to build event", zap.String("event", name), zap.Error(err))
		return
	}
	e.Room = room
	if err := s.deps.Bus.Publish(ctx, e); err != nil {
		s.logger.Warn("failed to publish event", zap.String("event", name), zap.Error(err))
	}
}
