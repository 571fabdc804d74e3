// Package lifecycle owns one state machine per account and drives the
// side effects of each state entry.
//
// Dispatch records the new state synchronously, then runs the state's
// handler on its own goroutine. There is no per-account lock across
// handler bodies: a later dispatch may start its handler while an earlier
// one is still running. Handlers tolerate being superseded by capturing
// the dispatch version and re-checking StillCurrent before
// state-sensitive side effects.
package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/zhouBoom/xuance-sub001/internal/logging"
)

// Event carries the dispatch context into a handler.
type Event struct {
	AccountID string
	State     State
	// Version identifies this dispatch; compare with StillCurrent after
	// suspension points.
	Version uint64
	Payload map[string]interface{}
}

// Handler performs the side effects of entering one state. Handlers
// swallow and log their own failures; nothing propagates to Dispatch.
type Handler interface {
	Handle(ctx context.Context, ev Event)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, ev Event)

func (f HandlerFunc) Handle(ctx context.Context, ev Event) { f(ctx, ev) }

// StateChange records one transition for the status API.
type StateChange struct {
	From      State     `json:"from"`
	To        State     `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

// maxChangesPerAccount caps stored transition history per account.
const maxChangesPerAccount = 50

type machine struct {
	current State
	version uint64
	history []StateChange
}

// TransitionCallback observes every recorded transition. Callbacks run
// synchronously on the dispatching goroutine, outside the registry lock.
type TransitionCallback func(accountID string, from, to State)

// Registry owns the per-account machines.
type Registry struct {
	mu        sync.RWMutex
	machines  map[string]*machine
	handlers  map[State]Handler
	callbacks []TransitionCallback
}

// NewRegistry creates a Registry dispatching to the given handlers. States
// without a handler record transitions but produce no side effects.
func NewRegistry(handlers map[State]Handler) *Registry {
	return &Registry{
		machines: make(map[string]*machine),
		handlers: handlers,
	}
}

// CreateStateMachine registers a machine for the account with no current
// state. Idempotent.
func (r *Registry) CreateStateMachine(accountID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.machines[accountID]; !ok {
		r.machines[accountID] = &machine{}
	}
}

// Dispatch moves the account's machine to target and runs the target
// state's handler asynchronously. The new state is recorded before the
// handler starts. Dispatching to an account without a machine is logged
// and dropped; an unknown target state is a programming error and returns
// one. Illegal transitions per the lifecycle table are logged but still
// performed.
func (r *Registry) Dispatch(ctx context.Context, accountID string, target State, payload map[string]interface{}) error {
	if !target.IsValid() {
		return fmt.Errorf("dispatch %s: unknown state %q", accountID, target)
	}

	r.mu.Lock()
	m, ok := r.machines[accountID]
	if !ok {
		r.mu.Unlock()
		log.Printf("[lifecycle] dispatch %s -> %s: no state machine, dropping",
			logging.Sanitize(accountID), target)
		return nil
	}

	from := m.current
	if !transitionAllowed(from, target) {
		log.Printf("[lifecycle] %s: unexpected transition %s -> %s",
			logging.Sanitize(accountID), from, target)
	}

	m.current = target
	m.version++
	version := m.version
	m.history = append(m.history, StateChange{From: from, To: target, Timestamp: time.Now()})
	if len(m.history) > maxChangesPerAccount {
		m.history = m.history[len(m.history)-maxChangesPerAccount:]
	}

	h := r.handlers[target]
	cbs := make([]TransitionCallback, len(r.callbacks))
	copy(cbs, r.callbacks)
	r.mu.Unlock()

	for _, cb := range cbs {
		cb(accountID, from, target)
	}

	if h != nil {
		ev := Event{AccountID: accountID, State: target, Version: version, Payload: payload}
		go h.Handle(ctx, ev)
	}
	return nil
}

// CurrentState returns the account's recorded state. ok is false when the
// account has no machine or the machine has no state yet.
func (r *Registry) CurrentState(accountID string) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[accountID]
	if !ok || m.current == "" {
		return "", false
	}
	return m.current, true
}

// StillCurrent reports whether the dispatch identified by version is still
// the most recent one for the account.
func (r *Registry) StillCurrent(accountID string, version uint64) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[accountID]
	return ok && m.version == version
}

// History returns the recorded transitions for the account.
func (r *Registry) History(accountID string) []StateChange {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.machines[accountID]
	if !ok {
		return nil
	}
	out := make([]StateChange, len(m.history))
	copy(out, m.history)
	return out
}

// OnTransition registers a callback observing every recorded transition.
func (r *Registry) OnTransition(cb TransitionCallback) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.callbacks = append(r.callbacks, cb)
}
