package cnst

// Commands sent by clients over the socket.
const (
	CommandCreateUser       = "create user"
	CommandAuthenticateUser = "authenticate user"
	CommandAnonymousUser    = "anonymous user"
	CommandNewMessage       = "new message"
	CommandMessageList      = "message list"
	CommandRoomList         = "room list"
	CommandTyping           = "typing"
	CommandStopTyping       = "stop typing"
)

// Events pushed by the server.
const (
	EventPresence   = "presence"
	EventLogin      = "login"
	EventUserJoined = "user joined"
	EventUserLeft   = "user left"
	EventNewMessage = "new message"
	EventTyping     = "typing"
	EventStopTyping = "stop typing"
)
