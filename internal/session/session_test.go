package session

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/amoylab/chatterbox/internal/bus"
	"github.com/amoylab/chatterbox/internal/common/cnst"
	"github.com/amoylab/chatterbox/internal/common/config"
	"github.com/amoylab/chatterbox/internal/identity"
	"github.com/amoylab/chatterbox/internal/message"
	"github.com/amoylab/chatterbox/internal/presence"
	"github.com/amoylab/chatterbox/internal/registry"
	"github.com/amoylab/chatterbox/internal/room"
	"github.com/amoylab/chatterbox/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

const waitFor = 2 * time.Second

type pushed struct {
	Event string
	Data  json.RawMessage
}

// testConn records everything pushed to one connection
type testConn struct {
	id string

	mu     sync.Mutex
	events []pushed
}

func (c *testConn) ID() string { return c.id }

func (c *testConn) Deliver(event string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, pushed{Event: event, Data: append(json.RawMessage(nil), data...)})
	return nil
}

func (c *testConn) Emit(event string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return c.Deliver(event, data)
}

func (c *testConn) received(event string) []gjson.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []gjson.Result
	for _, p := range c.events {
		if p.Event == event {
			out = append(out, gjson.ParseBytes(p.Data))
		}
	}
	return out
}

type harness struct {
	deps     Deps
	registry *registry.Registry
	accounts *identity.Service
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger := zap.NewNop()

	store, err := storage.Open(logger,
		&config.DatabaseConfig{Type: "sqlite", DBName: ":memory:"},
		config.StorageConfig{MaxRetries: 4, BaseDelay: time.Millisecond})
	require.NoError(t, err)

	pres := presence.NewStore(logger, presence.NewMemoryBackend(), presence.DefaultWindow)
	b := bus.NewMemoryBus(logger)
	reg := registry.New()

	ctx, cancel := context.WithCancel(context.Background())
	events, err := b.Subscribe(ctx)
	require.NoError(t, err)
	go room.NewRouter(logger, reg).Run(ctx, events)

	t.Cleanup(func() {
		cancel()
		_ = b.Close()
		_ = pres.Close()
		_ = store.Close()
	})

	accounts := identity.NewService(logger, store, bcrypt.MinCost)
	return &harness{
		deps: Deps{
			Presence: pres,
			Bus:      b,
			Accounts: accounts,
			Messages: message.NewService(logger, store, 0),
		},
		registry: reg,
		accounts: accounts,
	}
}

func (h *harness) connect(t *testing.T, id string) (*Session, *testConn) {
	t.Helper()
	conn := &testConn{id: id}
	h.registry.Add(conn)
	s := New(id, zap.NewNop(), h.deps, conn)
	s.Connect(context.Background())
	return s, conn
}

func TestSession_ConnectReportsPresence(t *testing.T) {
	h := newHarness(t)
	_, conn := h.connect(t, "a")

	got := conn.received(cnst.EventPresence)
	require.Len(t, got, 1)
	assert.Equal(t, int64(0), got[0].Get("numUsers").Int())
}

func TestSession_UnauthenticatedSendIsRejected(t *testing.T) {
	h := newHarness(t)
	s, _ := h.connect(t, "a")
	ctx := context.Background()

	_, err := s.SendMessage(ctx, gjson.Parse(`{"room":"general","message":"hi"}`))
	assert.Equal(t, Rejection("Can't send a message until you are authenticated"), err)

	// authorization is checked before validation
	_, err = s.SendMessage(ctx, gjson.Parse(`{}`))
	assert.Equal(t, Rejection("Can't send a message until you are authenticated"), err)
}

func TestSession_TwoAnonymousConnectionsSeeTwoUsers(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, connA := h.connect(t, "a")
	b, connB := h.connect(t, "b")

	resA, err := a.AuthenticateAnonymous(ctx)
	require.NoError(t, err)
	assert.Regexp(t, `^anonymous_[0-9a-f]{6}$`, resA.Username)
	assert.Equal(t, identity.GravatarURL(resA.Username)+"?d=retro", resA.Avatar)

	resB, err := b.AuthenticateAnonymous(ctx)
	require.NoError(t, err)

	login := connB.received(cnst.EventLogin)
	require.Len(t, login, 1)
	assert.Equal(t, int64(2), login[0].Get("numUsers").Int())

	assert.Eventually(t, func() bool {
		for _, e := range connA.received(cnst.EventUserJoined) {
			if e.Get("username").String() == resB.Username && e.Get("numUsers").Int() == 2 {
				return true
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)

	// the joiner hears its own announcement too
	assert.Eventually(t, func() bool {
		for _, e := range connB.received(cnst.EventUserJoined) {
			if e.Get("username").String() == resB.Username {
				return e.Get("avatar").String() == resB.Avatar && e.Get("numUsers").Int() == 2
			}
		}
		return false
	}, waitFor, 10*time.Millisecond)
}

func TestSession_LoginEmitsBeforeAck(t *testing.T) {
	h := newHarness(t)
	a, connA := h.connect(t, "a")

	_, err := a.AuthenticateAnonymous(context.Background())
	require.NoError(t, err)

	// login is emitted synchronously, before the command returns
	login := connA.received(cnst.EventLogin)
	require.Len(t, login, 1)
	assert.Equal(t, int64(1), login[0].Get("numUsers").Int())
	assert.True(t, a.Authenticated())
}

func TestSession_CreateAccountValidation(t *testing.T) {
	h := newHarness(t)
	s, _ := h.connect(t, "a")
	ctx := context.Background()

	for _, tc := range []struct {
		payload string
		want    Rejection
	}{
		{`{}`, "Must pass a parameter `username` which is a string"},
		{`{"username":"","email":"e@x.com","password":"p"}`, "Must pass a parameter `username` which is a string"},
		{`{"username":"bob","email":42,"password":"p"}`, "Must pass a parameter `email` which is a string"},
		{`{"username":"bob","email":"e@x.com","password":["p"]}`, "Must pass a parameter `password` which is a string"},
		{`"not an object"`, "Must pass a parameter `username` which is a string"},
	} {
		_, err := s.CreateAccount(ctx, gjson.Parse(tc.payload))
		assert.Equal(t, tc.want, err, tc.payload)
	}
	assert.False(t, s.Authenticated())
}

func TestSession_CreateAccountThenAuthenticate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "a")

	res, err := a.CreateAccount(ctx, gjson.Parse(`{"username":"  Alice ","email":"Alice@Example.com ","password":" Secret"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, identity.GravatarURL("alice@example.com"), res.Avatar)

	_, err = a.CreateAccount(ctx, gjson.Parse(`{"username":"x","email":"y","password":"z"}`))
	assert.Equal(t, Rejection("User already has a logged in identity"), err)
	_, err = a.AuthenticateAnonymous(ctx)
	assert.Equal(t, Rejection("User already has a logged in identity"), err)

	b, _ := h.connect(t, "b")
	_, err = b.CreateAccount(ctx, gjson.Parse(`{"username":"ALICE","email":"other@example.com","password":"pw"}`))
	assert.Equal(t, Rejection("That username is taken already."), err)

	_, err = b.Authenticate(ctx, gjson.Parse(`{"username":"alice","password":"wrong"}`))
	assert.Equal(t, Rejection("No matching account found"), err)
	_, err = b.Authenticate(ctx, gjson.Parse(`{"username":"nobody","password":"secret"}`))
	assert.Equal(t, Rejection("No matching account found"), err)
	_, err = b.Authenticate(ctx, gjson.Parse(`{"username":"alice"}`))
	assert.Equal(t, Rejection("Must pass a parameter `password` which is a string"), err)

	res, err = b.Authenticate(ctx, gjson.Parse(`{"username":"Alice","password":"SECRET"}`))
	require.NoError(t, err)
	assert.Equal(t, "alice", res.Username)
	assert.Equal(t, identity.GravatarURL("alice@example.com"), res.Avatar)
}

func TestSession_NewMessageReachesOthersOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, connA := h.connect(t, "a")
	b, connB := h.connect(t, "b")
	_, err := a.AuthenticateAnonymous(ctx)
	require.NoError(t, err)
	_, err = b.AuthenticateAnonymous(ctx)
	require.NoError(t, err)

	_, err = a.SendMessage(ctx, gjson.Parse(`{"room":"general"}`))
	assert.Equal(t, Rejection("Must pass a parameter `message` which is a string"), err)
	_, err = a.SendMessage(ctx, gjson.Parse(`{"message":"hi"}`))
	assert.Equal(t, Rejection("Must pass a parameter `room` which is a string"), err)

	sent, err := a.SendMessage(ctx, gjson.Parse(`{"room":"general","message":"hello"}`))
	require.NoError(t, err)
	assert.Equal(t, "hello", sent.Content.Text)
	assert.Equal(t, a.Identity().Username, sent.Username)

	assert.Eventually(t, func() bool {
		got := connB.received(cnst.EventNewMessage)
		return len(got) == 1 && got[0].Get("message").String() == sent.Message &&
			got[0].Get("content.text").String() == "hello"
	}, waitFor, 10*time.Millisecond)

	// b's own message reaching a proves a's queue is drained past the first one
	_, err = b.SendMessage(ctx, gjson.Parse(`{"room":"general","message":"back"}`))
	require.NoError(t, err)
	assert.Eventually(t, func() bool { return len(connA.received(cnst.EventNewMessage)) == 1 }, waitFor, 10*time.Millisecond)
	assert.Equal(t, "back", connA.received(cnst.EventNewMessage)[0].Get("content.text").String())
}

func TestSession_MessageListNewestFirst(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "a")
	_, err := a.AuthenticateAnonymous(ctx)
	require.NoError(t, err)

	_, err = a.SendMessage(ctx, gjson.Parse(`{"room":"lambda","message":"first"}`))
	require.NoError(t, err)
	time.Sleep(2 * time.Millisecond)
	latest, err := a.SendMessage(ctx, gjson.Parse(`{"room":"lambda","message":"second"}`))
	require.NoError(t, err)

	_, err = a.ListMessages(ctx, gjson.Parse(`{}`))
	assert.Equal(t, Rejection("Must pass a parameter `from.room` which is a string"), err)

	list, err := a.ListMessages(ctx, gjson.Parse(`{"room":"lambda"}`))
	require.NoError(t, err)
	require.Len(t, list.Messages, 2)
	assert.Equal(t, latest.Message, list.Messages[0].Message)
	assert.Equal(t, "first", list.Messages[1].Content.Text)

	list, err = a.ListMessages(ctx, gjson.Parse(`{"room":"lambda","message":"`+latest.Message+`"}`))
	require.NoError(t, err)
	require.Len(t, list.Messages, 1)
	assert.Equal(t, "first", list.Messages[0].Content.Text)
}

func TestSession_ListMessagesDoesNotRequireAuthentication(t *testing.T) {
	h := newHarness(t)
	s, _ := h.connect(t, "a")
	list, err := s.ListMessages(context.Background(), gjson.Parse(`{"room":"ecs"}`))
	require.NoError(t, err)
	assert.Empty(t, list.Messages)
}

func TestSession_Typing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "a")
	b, connB := h.connect(t, "b")

	a.Typing(ctx, gjson.Parse(`"general"`))

	_, err := a.AuthenticateAnonymous(ctx)
	require.NoError(t, err)
	a.Typing(ctx, gjson.Parse(`"general"`))
	a.StopTyping(ctx, gjson.Parse(`"general"`))

	assert.Eventually(t, func() bool { return len(connB.received(cnst.EventStopTyping)) == 1 }, waitFor, 10*time.Millisecond)
	typing := connB.received(cnst.EventTyping)
	require.Len(t, typing, 1, "typing before authentication is ignored")
	assert.Equal(t, "general", typing[0].Get("room").String())
	assert.Equal(t, a.Identity().Username, typing[0].Get("username").String())
	assert.Equal(t, a.Identity().Avatar, typing[0].Get("avatar").String())
	assert.False(t, connB.received(cnst.EventStopTyping)[0].Get("avatar").Exists())

	assert.False(t, b.Authenticated())
}

func TestSession_HeartbeatAndDisconnect(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "a")
	b, connB := h.connect(t, "b")

	a.Heartbeat(ctx)
	assert.Equal(t, 0, h.deps.Presence.Count(ctx), "heartbeats are ignored until authenticated")

	_, err := a.AuthenticateAnonymous(ctx)
	require.NoError(t, err)
	_, err = b.AuthenticateAnonymous(ctx)
	require.NoError(t, err)
	a.Heartbeat(ctx)
	assert.Equal(t, 2, h.deps.Presence.Count(ctx))

	a.Disconnect(ctx)
	a.Disconnect(ctx)
	a.Heartbeat(ctx)
	assert.Equal(t, 1, h.deps.Presence.Count(ctx))

	assert.Eventually(t, func() bool {
		left := connB.received(cnst.EventUserLeft)
		return len(left) == 1 && left[0].Get("numUsers").Int() == 1 &&
			left[0].Get("username").String() == a.Identity().Username
	}, waitFor, 10*time.Millisecond)
	assert.Never(t, func() bool { return len(connB.received(cnst.EventUserLeft)) > 1 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSession_DisconnectBeforeAuthenticationIsSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, _ := h.connect(t, "a")
	_, connB := h.connect(t, "b")

	a.Disconnect(ctx)
	assert.Never(t, func() bool { return len(connB.received(cnst.EventUserLeft)) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSession_LoginAfterDisconnectLeavesNoPresence(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	a, connA := h.connect(t, "a")
	_, connB := h.connect(t, "b")

	a.Disconnect(ctx)
	_, err := a.AuthenticateAnonymous(ctx)
	assert.ErrorIs(t, err, ErrDisconnected)
	assert.False(t, a.Authenticated())
	assert.Equal(t, 0, h.deps.Presence.Count(ctx))
	assert.Empty(t, connA.received(cnst.EventLogin))
	assert.Never(t, func() bool { return len(connB.received(cnst.EventUserJoined)) > 0 }, 100*time.Millisecond, 10*time.Millisecond)
}

func TestSession_Dispatch(t *testing.T) {
	h := newHarness(t)
	s, _ := h.connect(t, "a")
	ctx := context.Background()

	rooms, err := s.Dispatch(ctx, cnst.CommandRoomList, gjson.Result{})
	require.NoError(t, err)
	assert.Len(t, rooms, 4)

	_, err = s.Dispatch(ctx, "launch missiles", gjson.Result{})
	assert.ErrorIs(t, err, ErrUnknownCommand)

	res, err := s.Dispatch(ctx, cnst.CommandAnonymousUser, gjson.Result{})
	require.NoError(t, err)
	assert.IsType(t, &AuthResult{}, res)

	assert.True(t, RequiresAck(cnst.CommandRoomList))
	assert.True(t, RequiresAck(cnst.CommandCreateUser))
	assert.True(t, RequiresAck(cnst.CommandAuthenticateUser))
	assert.True(t, RequiresAck(cnst.CommandAnonymousUser))
	assert.False(t, RequiresAck(cnst.CommandNewMessage))
	assert.False(t, RequiresAck(cnst.CommandMessageList))
	assert.False(t, RequiresAck(cnst.CommandTyping))
	assert.False(t, RequiresAck(cnst.CommandStopTyping))
}
