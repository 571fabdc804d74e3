// Package router dispatches inbound control-channel messages. Messages
// with a user-identifying field are resolved to an account and persisted
// as tasks before command routing; an explicit logout or device-kicked
// signal triggers the revocation path. Malformed messages are logged with
// the originating connection id and dropped; nothing here may take down
// the connection pool.
package router

import (
	"context"
	"encoding/json"
	"log"

	"github.com/google/uuid"

	"github.com/zhouBoom/xuance-sub001/internal/connpool"
	"github.com/zhouBoom/xuance-sub001/internal/lifecycle"
	"github.com/zhouBoom/xuance-sub001/internal/logging"
	"github.com/zhouBoom/xuance-sub001/internal/notify"
	"github.com/zhouBoom/xuance-sub001/internal/store"
)

// Envelope is the control-channel wire shape. All fields are optional;
// upstream is not trusted to send complete messages.
type Envelope struct {
	Command   string          `json:"command,omitempty"`
	Penetrate string          `json:"penetrate,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	AccountID string          `json:"account_id,omitempty"`
	RedID     string          `json:"red_id,omitempty"`
}

// Revocation triggers.
const (
	CommandLogout         = "logout"
	PenetrateDeviceKicked = "conn.device.kicked"
)

// CommandHandler handles one routed command for a resolved account.
// accountID may be empty when the message carried no user correlation.
type CommandHandler func(ctx context.Context, accountID string, env Envelope) error

// Router routes inbound messages from the pool.
type Router struct {
	store    *store.Store
	registry *lifecycle.Registry
	pool     *connpool.Pool
	bridge   *notify.Bridge

	handlers map[string]CommandHandler
}

// New creates a Router. Command handlers are registered with Handle before
// Bind attaches the router to the pool.
func New(st *store.Store, registry *lifecycle.Registry, pool *connpool.Pool, bridge *notify.Bridge) *Router {
	return &Router{
		store:    st,
		registry: registry,
		pool:     pool,
		bridge:   bridge,
		handlers: make(map[string]CommandHandler),
	}
}

// Handle registers the handler for a command type. Not safe to call after
// Bind.
func (r *Router) Handle(command string, h CommandHandler) {
	r.handlers[command] = h
}

// Bind subscribes the router to the pool's message events.
func (r *Router) Bind() {
	r.pool.Subscribe(func(ev connpool.Event) {
		if ev.Type != connpool.EventMessage {
			return
		}
		r.Route(context.Background(), ev.ID, ev.Payload)
	})
}

// Route processes one raw inbound message from connection connID.
func (r *Router) Route(ctx context.Context, connID string, raw []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[router] conn %s: panic routing message: %v", logging.Sanitize(connID), rec)
		}
	}()

	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Printf("[router] conn %s: malformed message, dropping: %v (%s)",
			logging.Sanitize(connID), err, logging.Sanitize(truncate(string(raw), 200)))
		return
	}

	if env.Command == CommandLogout || env.Penetrate == PenetrateDeviceKicked {
		r.revoke(ctx, connID, env)
		return
	}

	accountID, tagged := r.resolveAccount(connID, &env)
	if tagged {
		if err := r.ingestTask(accountID, env); err != nil {
			log.Printf("[router] conn %s: persist task: %v", logging.Sanitize(connID), err)
		}
	}

	h, ok := r.handlers[env.Command]
	if !ok {
		log.Printf("[router] conn %s: no handler for command %q, dropping",
			logging.Sanitize(connID), logging.Sanitize(env.Command))
		return
	}
	if err := h(ctx, accountID, env); err != nil {
		log.Printf("[router] conn %s: command %s: %v",
			logging.Sanitize(connID), logging.Sanitize(env.Command), err)
	}
}

// resolveAccount maps the message's correlation fields to the internal
// account id, tagging the envelope with it. It reports whether the message
// carried any user-identifying field.
func (r *Router) resolveAccount(connID string, env *Envelope) (string, bool) {
	if env.AccountID != "" {
		return env.AccountID, true
	}

	redID := env.RedID
	if redID == "" && len(env.Payload) > 0 {
		var fields struct {
			UserID string `json:"user_id"`
			RedID  string `json:"red_id"`
		}
		if err := json.Unmarshal(env.Payload, &fields); err == nil {
			if fields.UserID != "" {
				env.AccountID = fields.UserID
				return fields.UserID, true
			}
			redID = fields.RedID
		}
	}
	if redID == "" {
		// No user correlation; fall back to the connection's own red id
		// for command handlers, without task ingestion.
		if acct, err := r.store.GetAccountByRedID(connID); err == nil {
			return acct.ID, false
		}
		return "", false
	}

	acct, err := r.store.GetAccountByRedID(redID)
	if err != nil {
		log.Printf("[router] conn %s: unknown red id %s",
			logging.Sanitize(connID), logging.Sanitize(redID))
		return "", true
	}
	env.AccountID = acct.ID
	return acct.ID, true
}

func (r *Router) ingestTask(accountID string, env Envelope) error {
	return r.store.EnqueueTask(&store.Task{
		TaskID:    uuid.NewString(),
		AccountID: accountID,
		RedID:     env.RedID,
		Command:   env.Command,
		Payload:   string(env.Payload),
	})
}

// revoke handles an authoritative "logged in elsewhere" signal: the
// connection is removed permanently, the operator gets a non-dismissible
// restart-only notice, and the account's machine moves to not_logined.
func (r *Router) revoke(ctx context.Context, connID string, env Envelope) {
	log.Printf("[router] conn %s: account revoked (command=%s penetrate=%s)",
		logging.Sanitize(connID), logging.Sanitize(env.Command), logging.Sanitize(env.Penetrate))

	r.pool.RemoveClient(connID, connpool.ReasonLoggedInElsewhere)

	r.bridge.Send(notify.TargetMain, notify.ChannelBlockingDialog, notify.Dialog{
		ID:          connID,
		Reason:      "logged-in-elsewhere",
		Message:     "This account was logged in on another device. Restart to log in again.",
		Actions:     []string{notify.ActionRestart},
		Dismissible: false,
	})

	acct, err := r.store.GetAccountByRedID(connID)
	if err != nil {
		log.Printf("[router] conn %s: revoked connection has no account", logging.Sanitize(connID))
		return
	}
	if err := r.registry.Dispatch(ctx, acct.ID, lifecycle.StateNotLogined, nil); err != nil {
		log.Printf("[router] conn %s: dispatch not_logined: %v", logging.Sanitize(connID), err)
	}
}

// ReplayPending pushes unfinished persisted tasks back through the
// registered command handlers, in ingestion order.
func (r *Router) ReplayPending(ctx context.Context) {
	tasks, err := r.store.PendingTasks()
	if err != nil {
		log.Printf("[router] replay: load pending tasks: %v", err)
		return
	}
	for _, t := range tasks {
		h, ok := r.handlers[t.Command]
		if !ok {
			continue
		}
		env := Envelope{
			Command:   t.Command,
			Payload:   json.RawMessage(t.Payload),
			AccountID: t.AccountID,
			RedID:     t.RedID,
		}
		if err := h(ctx, t.AccountID, env); err != nil {
			log.Printf("[router] replay task %s: %v", t.TaskID, err)
			continue
		}
		if err := r.store.CompleteTask(t.TaskID); err != nil {
			log.Printf("[router] replay task %s: mark done: %v", t.TaskID, err)
		}
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
