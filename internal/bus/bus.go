package bus

import (
	"context"
	"encoding/json"
	"fmt"
)

// Scope selects which connections receive an event.
type Scope string

const (
	// ScopeOthers reaches every connection except the publisher
	ScopeOthers Scope = "others"
	// ScopeAll reaches every connection, publisher included
	ScopeAll Scope = "all"
)

// Event is the envelope carried between processes.
type Event struct {
	Name   string          `json:"name"`
	Scope  Scope           `json:"scope"`
	Origin string          `json:"origin,omitempty"` // connection id of the publisher
	Room   string          `json:"room,omitempty"`   // advisory, never used for routing
	Data   json.RawMessage `json:"data,omitempty"`
}

// NewEvent encodes data into an event envelope
func NewEvent(name string, scope Scope, origin string, data any) (*Event, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %q payload: %w", name, err)
	}
	return &Event{Name: name, Scope: scope, Origin: origin, Data: raw}, nil
}

// Reaches reports whether a connection with the given id should receive e.
func (e *Event) Reaches(connectionID string) bool {
	switch e.Scope {
	case ScopeAll:
		return true
	case ScopeOthers:
		return connectionID != e.Origin
	default:
		return false
	}
}

// Bus publishes events to every process of the cluster.
type Bus interface {
	// Publish sends e to every subscriber in the cluster, this process included.
	Publish(ctx context.Context, e *Event) error

	// Subscribe returns a channel of events published anywhere in the
	// cluster. The channel is closed when ctx is done or the bus is closed.
	Subscribe(ctx context.Context) (<-chan *Event, error)

	// Close releases the bus and ends every subscription.
	Close() error
}
