// Package notify delivers one-way notifications to the UI surface.
//
// The desktop shell attaches after the service starts, so notifications
// sent early are buffered in order and flushed when the shell signals
// readiness. Readiness is one-shot: once flipped it never reverts for the
// process lifetime, even if the shell's stream drops (later sends then go
// to the fallback sink).
package notify

import (
	"log"
	"sync"
)

// Notification is one queued UI message.
type Notification struct {
	Target  string      `json:"target"`
	Channel string      `json:"channel"`
	Data    interface{} `json:"data"`
}

// Sink receives delivered notifications. Implementations must be safe for
// use from multiple goroutines.
type Sink interface {
	Deliver(n Notification) error
}

// Bridge buffers notifications until the UI is ready, then delivers in
// strict send order. Delivery happens under the bridge mutex so two
// concurrent Send calls can never reach the sink out of order.
type Bridge struct {
	mu       sync.Mutex
	ready    bool
	queue    []Notification
	sink     Sink
	fallback Sink
}

// NewBridge creates a Bridge that delivers to fallback once ready while no
// UI sink is attached. A nil fallback drops delivered notifications.
func NewBridge(fallback Sink) *Bridge {
	return &Bridge{fallback: fallback}
}

// Send enqueues or delivers a notification depending on readiness.
func (b *Bridge) Send(target, channel string, data interface{}) {
	n := Notification{Target: target, Channel: channel, Data: data}

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready {
		b.queue = append(b.queue, n)
		return
	}
	b.deliverLocked(n)
}

// Ready flips the one-time readiness flag and drains the queue in enqueue
// order. Calling Ready again is a no-op.
func (b *Bridge) Ready() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.ready {
		return
	}
	b.ready = true
	for _, n := range b.queue {
		b.deliverLocked(n)
	}
	b.queue = nil
}

// Attach installs the UI sink and marks the bridge ready.
func (b *Bridge) Attach(s Sink) {
	b.mu.Lock()
	b.sink = s
	b.mu.Unlock()
	b.Ready()
}

// Detach removes the UI sink. Readiness is not reverted; subsequent sends
// go to the fallback sink.
func (b *Bridge) Detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sink = nil
}

// IsReady reports whether the UI has signalled readiness.
func (b *Bridge) IsReady() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ready
}

// Pending returns the number of buffered notifications.
func (b *Bridge) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}

func (b *Bridge) deliverLocked(n Notification) {
	sink := b.sink
	if sink == nil {
		sink = b.fallback
	}
	if sink == nil {
		return
	}
	if err := sink.Deliver(n); err != nil {
		// Delivery failures are terminal for the message; the UI
		// re-syncs its full state on reattach.
		log.Printf("[notify] deliver %s/%s failed: %v", n.Target, n.Channel, err)
	}
}
