package connpool

import (
	"sync"
	"time"
)

// ConnState represents the lifecycle state of one control connection.
type ConnState string

const (
	StateDisconnected ConnState = "disconnected"
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateFailed       ConnState = "failed"
)

func (s ConnState) String() string { return string(s) }

// IsValid returns true if the state is one of the defined constants.
func (s ConnState) IsValid() bool {
	switch s {
	case StateDisconnected, StateConnecting, StateConnected, StateReconnecting, StateFailed:
		return true
	}
	return false
}

// Transition records one state change for debugging.
type Transition struct {
	From      ConnState `json:"from"`
	To        ConnState `json:"to"`
	Reason    string    `json:"reason"`
	Timestamp time.Time `json:"timestamp"`
}

// maxTransitionsPerConn limits stored transition history per connection.
const maxTransitionsPerConn = 50

// stateTracker tracks per-connection state and a capped transition history.
type stateTracker struct {
	mu          sync.RWMutex
	states      map[string]ConnState
	transitions map[string][]Transition
}

func newStateTracker() *stateTracker {
	return &stateTracker{
		states:      make(map[string]ConnState),
		transitions: make(map[string][]Transition),
	}
}

// get returns the current state, StateDisconnected when untracked.
func (t *stateTracker) get(id string) ConnState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	state, ok := t.states[id]
	if !ok {
		return StateDisconnected
	}
	return state
}

// set updates the state and records the transition when it changed.
func (t *stateTracker) set(id string, state ConnState, reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	old, ok := t.states[id]
	if !ok {
		old = StateDisconnected
	}
	if old == state {
		return
	}
	t.states[id] = state

	history := append(t.transitions[id], Transition{
		From:      old,
		To:        state,
		Reason:    reason,
		Timestamp: time.Now(),
	})
	if len(history) > maxTransitionsPerConn {
		history = history[len(history)-maxTransitionsPerConn:]
	}
	t.transitions[id] = history
}

// history returns a copy of the transition history in chronological order.
func (t *stateTracker) history(id string) []Transition {
	t.mu.RLock()
	defer t.mu.RUnlock()
	history := t.transitions[id]
	out := make([]Transition, len(history))
	copy(out, history)
	return out
}
