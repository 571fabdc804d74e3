// Package connpool owns one persistent duplex control connection per
// account, keyed by the account's secondary id. Unexpected drops are
// retried indefinitely with exponential backoff; an authoritative
// revocation removes the slot permanently until a fresh login flow
// clears it.
package connpool

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouBoom/xuance-sub001/internal/logging"
)

// Removal reasons passed to RemoveClient.
const (
	// ReasonLoggedInElsewhere marks an authoritative revocation: the
	// slot becomes non-reconnectable until ClearRevocation.
	ReasonLoggedInElsewhere = "account_logged_in_elsewhere"
	// ReasonTeardown is an ordinary teardown (logout, shutdown).
	ReasonTeardown = "teardown"
)

// Reconnection backoff configuration. Package-level vars so tests can
// override.
var (
	reconnectInitialBackoff = 1 * time.Second
	reconnectMaxBackoff     = 16 * time.Second
)

// Pool manages the control connections.
type Pool struct {
	dialer Dialer

	mu        sync.RWMutex
	clients   map[string]*client
	revoked   map[string]bool
	listeners []Listener

	states *stateTracker
	events *eventLog
}

type client struct {
	id     string
	cancel context.CancelFunc

	mu      sync.Mutex
	conn    Conn
	removed bool
}

func (c *client) setConn(conn Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn = conn
}

func (c *client) getConn() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conn
}

func (c *client) markRemoved() Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = true
	return c.conn
}

func (c *client) isRemoved() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.removed
}

// NewPool creates a Pool using the given dialer for all connections.
func NewPool(dialer Dialer) *Pool {
	return &Pool{
		dialer:  dialer,
		clients: make(map[string]*client),
		revoked: make(map[string]bool),
		states:  newStateTracker(),
		events:  newEventLog(),
	}
}

// Subscribe registers a listener for the pool's event stream. Listeners
// run synchronously on the connection goroutine.
func (p *Pool) Subscribe(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// CreateClient opens a persistent connection for the given id. It is a
// no-op returning true when a connection already exists or is connecting,
// and returns false for a revoked id.
func (p *Pool) CreateClient(id string) bool {
	p.mu.Lock()
	if p.revoked[id] {
		p.mu.Unlock()
		log.Printf("[pool] %s is revoked, refusing to connect", logging.Sanitize(id))
		return false
	}
	if _, exists := p.clients[id]; exists {
		p.mu.Unlock()
		return true
	}
	ctx, cancel := context.WithCancel(context.Background())
	c := &client{id: id, cancel: cancel}
	p.clients[id] = c
	p.mu.Unlock()

	p.states.set(id, StateConnecting, "create client")
	go p.run(ctx, c)
	return true
}

// run owns the full lifecycle of one connection: initial dial, read loop,
// and reconnection episodes. It exits only on removal or shutdown.
func (p *Pool) run(ctx context.Context, c *client) {
	conn, err := p.dialer(ctx, c.id)
	if err != nil {
		log.Printf("[pool] %s: initial connect failed: %v", logging.Sanitize(c.id), err)
		if !p.reconnect(ctx, c) {
			return
		}
	} else {
		c.setConn(conn)
		p.states.set(c.id, StateConnected, "connected")
		p.emit(Event{ID: c.id, Type: EventConnected, Timestamp: time.Now()})
	}

	for {
		err := p.readLoop(ctx, c)
		if ctx.Err() != nil || c.isRemoved() {
			return
		}

		p.states.set(c.id, StateReconnecting, "connection dropped")
		p.emit(Event{
			ID:        c.id,
			Type:      EventDisconnect,
			Details:   fmt.Sprintf("read: %v", err),
			Timestamp: time.Now(),
		})

		if !p.reconnect(ctx, c) {
			return
		}
	}
}

// readLoop reads inbound messages until the connection fails.
func (p *Pool) readLoop(ctx context.Context, c *client) error {
	conn := c.getConn()
	if conn == nil {
		return fmt.Errorf("no connection")
	}
	for {
		data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		p.emit(Event{
			ID:        c.id,
			Type:      EventMessage,
			Payload:   json.RawMessage(data),
			Timestamp: time.Now(),
		})
	}
}

// reconnect runs one continuous reconnection episode: EventReconnectStart
// is emitted exactly once, then the dialer is retried with exponential
// backoff until it succeeds or the connection is removed. Returns false
// when the episode was aborted by removal or shutdown.
func (p *Pool) reconnect(ctx context.Context, c *client) bool {
	p.states.set(c.id, StateReconnecting, "reconnect episode")
	p.emit(Event{ID: c.id, Type: EventReconnectStart, Timestamp: time.Now()})

	backoff := reconnectInitialBackoff
	for attempt := 1; ; attempt++ {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		if c.isRemoved() {
			return false
		}

		conn, err := p.dialer(ctx, c.id)
		if err != nil {
			p.emit(Event{
				ID:        c.id,
				Type:      EventReconnectFailed,
				Details:   fmt.Sprintf("attempt %d: %v", attempt, err),
				Timestamp: time.Now(),
			})
			backoff *= 2
			if backoff > reconnectMaxBackoff {
				backoff = reconnectMaxBackoff
			}
			continue
		}

		c.setConn(conn)
		p.states.set(c.id, StateConnected, "reconnected")
		p.emit(Event{
			ID:        c.id,
			Type:      EventReconnect,
			Details:   fmt.Sprintf("after %d attempt(s)", attempt),
			Timestamp: time.Now(),
		})
		log.Printf("[pool] %s: reconnected after %d attempt(s)", logging.Sanitize(c.id), attempt)
		return true
	}
}

// Send marshals v and writes it to the connection for id.
func (p *Pool) Send(ctx context.Context, id string, v interface{}) error {
	p.mu.RLock()
	c, ok := p.clients[id]
	p.mu.RUnlock()
	if !ok {
		return fmt.Errorf("no connection for %q", id)
	}
	conn := c.getConn()
	if conn == nil {
		return fmt.Errorf("connection for %q not established", id)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message for %q: %w", id, err)
	}
	return conn.Write(ctx, data)
}

// Broadcast sends v to every connection, logging per-connection failures.
func (p *Pool) Broadcast(ctx context.Context, v interface{}) {
	p.mu.RLock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		if err := p.Send(ctx, id, v); err != nil {
			log.Printf("[pool] broadcast to %s: %v", logging.Sanitize(id), err)
		}
	}
}

// RemoveClient closes and removes the connection for id. A reason of
// ReasonLoggedInElsewhere additionally marks the slot non-reconnectable:
// neither the running reconnect loop nor a later CreateClient will bring
// it back until ClearRevocation is called. Returns whether a connection
// existed.
func (p *Pool) RemoveClient(id, reason string) bool {
	p.mu.Lock()
	c, ok := p.clients[id]
	if ok {
		delete(p.clients, id)
	}
	if reason == ReasonLoggedInElsewhere {
		p.revoked[id] = true
	}
	p.mu.Unlock()

	if !ok {
		return false
	}

	conn := c.markRemoved()
	c.cancel()
	if conn != nil {
		conn.Close()
	}

	p.states.set(id, StateDisconnected, "removed: "+reason)
	p.emit(Event{
		ID:        id,
		Type:      EventRemoved,
		Details:   reason,
		Timestamp: time.Now(),
	})
	log.Printf("[pool] removed %s (%s)", logging.Sanitize(id), reason)
	return true
}

// ClearRevocation re-allows connections for a previously revoked id.
// Called by a fresh login flow before CreateClient.
func (p *Pool) ClearRevocation(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.revoked, id)
}

// IsRevoked reports whether the id is marked non-reconnectable.
func (p *Pool) IsRevoked(id string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.revoked[id]
}

// IsConnected reports whether the connection for id is established.
func (p *Pool) IsConnected(id string) bool {
	return p.states.get(id) == StateConnected
}

// IsReconnecting reports whether the connection for id is inside a
// reconnection episode.
func (p *Pool) IsReconnecting(id string) bool {
	return p.states.get(id) == StateReconnecting
}

// ConnectionState returns the tracked state for id.
func (p *Pool) ConnectionState(id string) ConnState {
	return p.states.get(id)
}

// StateHistory returns the recorded state transitions for id.
func (p *Pool) StateHistory(id string) []Transition {
	return p.states.history(id)
}

// EventHistory returns the recorded lifecycle events for id.
func (p *Pool) EventHistory(id string) []Event {
	return p.events.history(id)
}

// CloseAll tears down every connection without marking revocations.
func (p *Pool) CloseAll() {
	p.mu.RLock()
	ids := make([]string, 0, len(p.clients))
	for id := range p.clients {
		ids = append(ids, id)
	}
	p.mu.RUnlock()

	for _, id := range ids {
		p.RemoveClient(id, ReasonTeardown)
	}
}

// emit records lifecycle events and fans the event out to listeners.
// Message events are fanned out but not retained.
func (p *Pool) emit(ev Event) {
	if ev.Type != EventMessage {
		p.events.record(ev)
	}

	p.mu.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.RUnlock()

	for _, l := range listeners {
		l(ev)
	}
}
