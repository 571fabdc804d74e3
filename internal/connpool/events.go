package connpool

import (
	"encoding/json"
	"sync"
	"time"
)

// EventType identifies a connection lifecycle event.
type EventType string

const (
	// EventMessage carries one inbound payload from the connection.
	EventMessage EventType = "message"
	// EventConnected fires after the initial dial succeeds.
	EventConnected EventType = "connected"
	// EventDisconnect fires on an unexpected connection drop.
	EventDisconnect EventType = "disconnect"
	// EventReconnectStart fires exactly once per continuous
	// reconnection episode.
	EventReconnectStart EventType = "reconnect_start"
	// EventReconnect fires when a reconnection episode succeeds.
	EventReconnect EventType = "reconnect"
	// EventReconnectFailed fires per failed reconnection attempt.
	EventReconnectFailed EventType = "reconnect_failed"
	// EventRemoved fires when a connection is removed from the pool.
	EventRemoved EventType = "removed"
)

// Event is one entry on the pool's event stream.
type Event struct {
	ID        string          `json:"id"`
	Type      EventType       `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Details   string          `json:"details,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Listener receives connection events. Listeners run synchronously on the
// connection goroutine; long-running handlers should spawn their own.
type Listener func(ev Event)

// maxEventsPerConn limits stored events per connection. Message events are
// routed but not retained.
const maxEventsPerConn = 100

// eventLog stores recent lifecycle events per connection for the status API.
type eventLog struct {
	mu     sync.RWMutex
	events map[string][]Event
}

func newEventLog() *eventLog {
	return &eventLog{events: make(map[string][]Event)}
}

func (l *eventLog) record(ev Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	events := append(l.events[ev.ID], ev)
	if len(events) > maxEventsPerConn {
		events = events[len(events)-maxEventsPerConn:]
	}
	l.events[ev.ID] = events
}

func (l *eventLog) history(id string) []Event {
	l.mu.RLock()
	defer l.mu.RUnlock()
	events := l.events[id]
	out := make([]Event, len(events))
	copy(out, events)
	return out
}
