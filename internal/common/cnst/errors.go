package cnst

import "errors"

var (
	// ErrUnsupportedStoreType is returned by factories for an unknown backend type
	ErrUnsupportedStoreType = errors.New("unsupported store type")
	// ErrBusClosed is returned when publishing on a closed bus
	ErrBusClosed = errors.New("event bus closed")
)

// Messages returned to clients as command errors. The wording is part of the client contract.
const (
	MsgAlreadyAuthenticated = "User already has a logged in identity"
	MsgNotAuthenticated     = "Can't send a message until you are authenticated"
	MsgNoMatchingAccount    = "No matching account found"
	MsgUsernameTaken        = "That username is taken already."
	MsgUserLookupFailed     = "Failed to lookup user by username"
	MsgUserInsertFailed     = "Failed to insert new user in database"
	MsgMessageInsertFailed  = "Failed to store message"
	MsgMessageListFailed    = "Failed to list messages"
	MsgInternal             = "Internal server error"
)

// MsgMissingParam formats the validation error for a missing or non-string command field.
func MsgMissingParam(name string) string {
	return "Must pass a parameter `" + name + "` which is a string"
}
