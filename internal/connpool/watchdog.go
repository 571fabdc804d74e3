package connpool

import (
	"fmt"
	"log"
	"net"
	"sync"
	"time"

	"github.com/zhouBoom/xuance-sub001/internal/logging"
	"github.com/zhouBoom/xuance-sub001/internal/notify"
)

// probeNetwork reports baseline network reachability. Var so tests can
// stub the dial.
var probeNetwork = func(addr string) bool {
	conn, err := net.DialTimeout("tcp", addr, 3*time.Second)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}

// Watchdog escalates long reconnection episodes to the operator. It tracks
// wall-clock time from each EventReconnectStart; if the window elapses
// without an EventReconnect it probes baseline reachability and raises a
// blocking dialog (restart or keep waiting). The pool keeps retrying in
// the background regardless of the dialog. A successful reconnect resets
// the tracker and dismisses the dialog.
type Watchdog struct {
	bridge    *notify.Bridge
	window    time.Duration
	probeAddr string

	mu      sync.Mutex
	timers  map[string]*time.Timer
	dialogs map[string]bool
	stopped bool
}

// NewWatchdog creates a Watchdog and subscribes it to the pool's events.
func NewWatchdog(pool *Pool, bridge *notify.Bridge, window time.Duration, probeAddr string) *Watchdog {
	w := &Watchdog{
		bridge:    bridge,
		window:    window,
		probeAddr: probeAddr,
		timers:    make(map[string]*time.Timer),
		dialogs:   make(map[string]bool),
	}
	pool.Subscribe(w.handle)
	return w
}

func (w *Watchdog) handle(ev Event) {
	switch ev.Type {
	case EventReconnectStart:
		w.arm(ev.ID)
	case EventReconnect:
		w.clear(ev.ID, true)
	case EventRemoved:
		w.clear(ev.ID, false)
	}
}

func (w *Watchdog) arm(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return
	}
	// One timer per episode; the pool emits reconnect_start once per
	// episode, but guard anyway.
	if _, ok := w.timers[id]; ok {
		return
	}
	w.timers[id] = time.AfterFunc(w.window, func() { w.escalate(id) })
}

func (w *Watchdog) clear(id string, dismiss bool) {
	w.mu.Lock()
	if t, ok := w.timers[id]; ok {
		t.Stop()
		delete(w.timers, id)
	}
	shown := w.dialogs[id]
	delete(w.dialogs, id)
	w.mu.Unlock()

	if dismiss && shown {
		w.bridge.Send(notify.TargetMain, notify.ChannelDismissDialog, map[string]string{"id": id})
	}
}

func (w *Watchdog) escalate(id string) {
	w.mu.Lock()
	delete(w.timers, id)
	if w.stopped || w.dialogs[id] {
		w.mu.Unlock()
		return
	}
	w.dialogs[id] = true
	w.mu.Unlock()

	up := probeNetwork(w.probeAddr)
	log.Printf("[pool] %s: still reconnecting after %s (network up: %v), escalating",
		logging.Sanitize(id), w.window, up)

	w.bridge.Send(notify.TargetMain, notify.ChannelBlockingDialog, notify.Dialog{
		ID:     id,
		Reason: "reconnect-timeout",
		Message: fmt.Sprintf("Connection for %s has been down for %s.",
			logging.Sanitize(id), w.window),
		Actions:     []string{notify.ActionRestart, notify.ActionKeepWaiting},
		Dismissible: false,
		NetworkUp:   &up,
	})
}

// DialogShown reports whether an escalation dialog is up for id.
func (w *Watchdog) DialogShown(id string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.dialogs[id]
}

// Stop cancels all pending escalation timers.
func (w *Watchdog) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopped = true
	for id, t := range w.timers {
		t.Stop()
		delete(w.timers, id)
	}
}
