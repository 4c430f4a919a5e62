package presence

import (
	"context"
	"time"
)

// DefaultWindow is how long a record stays live after its last heartbeat.
// It must equal the transport heartbeat timeout.
const DefaultWindow = 8000 * time.Millisecond

// Meta is the metadata kept with a presence record.
type Meta struct {
	Username string `json:"username"`
}

// Record is a live presence entry.
type Record struct {
	ConnectionID string
	Meta         Meta
	LastSeen     time.Time
}

// entry is the stored form of a record: {"meta":{...},"when":<epoch millis>}.
type entry struct {
	Meta Meta  `json:"meta"`
	When int64 `json:"when"`
}

// Backend is the shared map of connection id to encoded entry that the
// presence policy runs on. Implementations must be safe for concurrent use
// by many processes; single-key overwrite semantics are all that is needed.
type Backend interface {
	// Put overwrites the value stored for id.
	Put(ctx context.Context, id string, value []byte) error

	// Delete removes ids. Absent ids are ignored.
	Delete(ctx context.Context, ids ...string) error

	// All returns the whole map.
	All(ctx context.Context) (map[string]string, error)

	// Expire removes every id whose stored value still equals the value
	// given for it, and reports how many were removed. Entries refreshed
	// since they were read are left alone.
	Expire(ctx context.Context, observed map[string]string) (int, error)

	// Close releases the backend's resources.
	Close() error
}
