package session

import (
	"context"
	"encoding/json"

	"github.com/amoylab/chatterbox/internal/bus"
	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/identity"
	"github.com/amoylab/chatterbox/internal/message"
	"github.com/amoylab/chatterbox/internal/room"
	"github.com/amoylab/chatterbox/internal/storage"
	"github.com/amoylab/chatterbox/pkg/utils"

	"github.com/tidwall/gjson"
)

// RequiresAck reports whether a command is dropped when the client sent no ack id.
// Every other command runs either way and only its reply is skipped.
func RequiresAck(command string) bool {
	switch command {
	case cnst.CommandCreateUser, cnst.CommandAuthenticateUser, cnst.CommandAnonymousUser, cnst.CommandRoomList:
		return true
	default:
		return false
	}
}

// Dispatch runs command with its payload and returns the ack result
func (s *Session) Dispatch(ctx context.Context, command string, data gjson.Result) (any, error) {
	switch command {
	case cnst.CommandCreateUser:
		return s.CreateAccount(ctx, data)
	case cnst.CommandAuthenticateUser:
		return s.Authenticate(ctx, data)
	case cnst.CommandAnonymousUser:
		return s.AuthenticateAnonymous(ctx)
	case cnst.CommandNewMessage:
		return s.SendMessage(ctx, data)
	case cnst.CommandMessageList:
		return s.ListMessages(ctx, data)
	case cnst.CommandRoomList:
		return s.ListRooms(), nil
	case cnst.CommandTyping:
		s.Typing(ctx, data)
		return nil, nil
	case cnst.CommandStopTyping:
		s.StopTyping(ctx, data)
		return nil, nil
	default:
		return nil, ErrUnknownCommand
	}
}

// stringField returns data[name] when it is a non-empty string
func stringField(data gjson.Result, name, label string) (string, error) {
	v := data.Get(name)
	if v.Type != gjson.String || v.Str == "" {
		return "", Rejection(cnst.MsgMissingParam(label))
	}
	return v.Str, nil
}

func (s *Session) ensureUnauthenticated() error {
	if s.Authenticated() {
		return Rejection(cnst.MsgAlreadyAuthenticated)
	}
	return nil
}

// CreateAccount registers a user from {username, email, password} and logs the session in
func (s *Session) CreateAccount(ctx context.Context, details gjson.Result) (*AuthResult, error) {
	if err := s.ensureUnauthenticated(); err != nil {
		return nil, err
	}

	fields := make(map[string]string, 3)
	for _, name := range []string{"username", "email", "password"} {
		v, err := stringField(details, name, name)
		if err != nil {
			return nil, err
		}
		fields[name] = utils.Normalize(v)
	}

	user, err := s.deps.Accounts.Create(ctx, fields["username"], fields["email"], fields["password"])
	if err != nil {
		return nil, reject(err)
	}
	return s.login(ctx, user)
}

// Authenticate logs the session in from {username, password}
func (s *Session) Authenticate(ctx context.Context, details gjson.Result) (*AuthResult, error) {
	if err := s.ensureUnauthenticated(); err != nil {
		return nil, err
	}

	username, err := stringField(details, "username", "username")
	if err != nil {
		return nil, err
	}
	password, err := stringField(details, "password", "password")
	if err != nil {
		return nil, err
	}

	user, err := s.deps.Accounts.Authenticate(ctx, utils.Normalize(username), utils.Normalize(password))
	if err != nil {
		return nil, reject(err)
	}
	return s.login(ctx, user)
}

// AuthenticateAnonymous logs the session in under a generated name
func (s *Session) AuthenticateAnonymous(ctx context.Context) (*AuthResult, error) {
	if err := s.ensureUnauthenticated(); err != nil {
		return nil, err
	}
	user, err := identity.Anonymous()
	if err != nil {
		return nil, err
	}
	return s.login(ctx, user)
}

// SendMessage stores {room, message} and relays it to the other connections
func (s *Session) SendMessage(ctx context.Context, data gjson.Result) (*message.Message, error) {
	user := s.Identity()
	if user == nil {
		return nil, Rejection(cnst.MsgNotAuthenticated)
	}

	roomID, err := stringField(data, "room", "room")
	if err != nil {
		return nil, err
	}
	text, err := stringField(data, "message", "message")
	if err != nil {
		return nil, err
	}

	m, err := s.deps.Messages.Add(ctx, roomID, user.Username, user.Avatar, text)
	if err != nil {
		return nil, reject(err)
	}

	s.publish(ctx, cnst.EventNewMessage, bus.ScopeOthers, roomID, m)
	return m, nil
}

// ListMessages returns the newest page of {room}, continuing after {message} when given
func (s *Session) ListMessages(ctx context.Context, from gjson.Result) (*message.List, error) {
	roomID, err := stringField(from, "room", "from.room")
	if err != nil {
		return nil, err
	}

	var cursor *storage.Key
	if after := from.Get("message"); after.Type == gjson.String && after.Str != "" {
		cursor = &storage.Key{Room: roomID, Message: after.Str}
	}

	list, err := s.deps.Messages.ListFromRoom(ctx, roomID, cursor)
	if err != nil {
		return nil, reject(err)
	}
	return list, nil
}

// ListRooms returns the room catalog
func (s *Session) ListRooms() []room.Room {
	return room.Catalog()
}

// typingPayload keeps the room exactly as the client sent it
type typingPayload struct {
	Room     json.RawMessage `json:"room"`
	Username string          `json:"username"`
	Avatar   string          `json:"avatar,omitempty"`
}

func rawRoom(data gjson.Result) json.RawMessage {
	if !data.Exists() {
		return json.RawMessage("null")
	}
	return json.RawMessage(data.Raw)
}

func roomName(data gjson.Result) string {
	if data.Type == gjson.String {
		return data.Str
	}
	return ""
}

// Typing tells the other connections this user is typing in room
func (s *Session) Typing(ctx context.Context, roomData gjson.Result) {
	user := s.Identity()
	if user == nil {
		return
	}
	s.publish(ctx, cnst.EventTyping, bus.ScopeOthers, roomName(roomData), typingPayload{
		Room:     rawRoom(roomData),
		Username: user.Username,
		Avatar:   user.Avatar,
	})
}

// StopTyping tells the other connections this user stopped typing in room
func (s *Session) StopTyping(ctx context.Context, roomData gjson.Result) {
	user := s.Identity()
	if user == nil {
		return
	}
	s.publish(ctx, cnst.EventStopTyping, bus.ScopeOthers, roomName(roomData), typingPayload{
		Room:     rawRoom(roomData),
		Username: user.Username,
	})
}
