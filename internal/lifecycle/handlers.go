package lifecycle

import (
	"context"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/zhouBoom/xuance-sub001/internal/capture"
	"github.com/zhouBoom/xuance-sub001/internal/config"
	"github.com/zhouBoom/xuance-sub001/internal/connpool"
	"github.com/zhouBoom/xuance-sub001/internal/crypto"
	"github.com/zhouBoom/xuance-sub001/internal/logging"
	"github.com/zhouBoom/xuance-sub001/internal/notify"
	"github.com/zhouBoom/xuance-sub001/internal/session"
	"github.com/zhouBoom/xuance-sub001/internal/store"
)

// Deps are the collaborators the state handlers drive.
type Deps struct {
	Provider session.Provider
	Store    *store.Store
	Cipher   *crypto.Cipher
	Pool     *connpool.Pool
	Bridge   *notify.Bridge
	Capture  *capture.Scheduler
	Platform config.Platform

	// ObservationWindow is baked into the login probe script: the window
	// after which the probe reports success if no failure signal arrived.
	ObservationWindow time.Duration
}

// New wires the state handlers to a Registry and returns it.
func New(d Deps) *Registry {
	h := &handlers{Deps: d}
	r := NewRegistry(map[State]Handler{
		StateInit:             HandlerFunc(h.handleInit),
		StateIdle:             HandlerFunc(h.handleIdle),
		StateWorking:          HandlerFunc(h.handleWorking),
		StateIdleException:    HandlerFunc(h.handleIdleException),
		StateWorkingException: HandlerFunc(h.handleWorkingException),
		StateNotLogined:       HandlerFunc(h.handleNotLogined),
	})
	h.registry = r
	return r
}

type handlers struct {
	Deps
	registry *Registry
}

// handleInit creates the account's session view, restores captured cookies,
// navigates to the platform home surface and injects the login probe. The
// probe reports back through the UI event ingress after the observation
// window.
func (h *handlers) handleInit(ctx context.Context, ev Event) {
	id := ev.AccountID

	view, err := h.Provider.Acquire(ctx, id)
	if err != nil {
		log.Printf("[lifecycle] %s init: acquire view: %v", logging.Sanitize(id), err)
		return
	}

	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountInitLoading,
		map[string]interface{}{"account_id": id, "loading": true})
	if err := h.Store.UpdateAccountStatus(id, notify.StatusInitializing); err != nil {
		log.Printf("[lifecycle] %s init: persist status: %v", logging.Sanitize(id), err)
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountStatus,
		notify.StatusUpdate{AccountID: id, Status: notify.StatusInitializing})

	// A fresh login flow re-opens the door a revocation closed.
	if acct, err := h.Store.GetAccount(id); err == nil && acct.RedID != "" {
		h.Pool.ClearRevocation(acct.RedID)
	}

	if snap, err := h.Store.GetSnapshot(id); err == nil {
		cookies, err := h.Cipher.Decrypt(snap.Cookies)
		if err != nil {
			log.Printf("[lifecycle] %s init: decrypt snapshot: %v", logging.Sanitize(id), err)
		} else if cookies != "" {
			if err := view.SetCookies(ctx, cookies); err != nil {
				log.Printf("[lifecycle] %s init: apply cookies: %v", logging.Sanitize(id), err)
			} else {
				log.Printf("[lifecycle] %s init: restored session cookies (%s)",
					logging.Sanitize(id), crypto.Mask(cookies))
			}
		}
	}

	if err := view.LoadURL(ctx, h.Platform.HomeURL); err != nil {
		log.Printf("[lifecycle] %s init: load %s: %v", logging.Sanitize(id), h.Platform.HomeURL, err)
	}
	if err := view.Inject(ctx, h.loginProbeScript()); err != nil {
		log.Printf("[lifecycle] %s init: inject login probe: %v", logging.Sanitize(id), err)
	}
}

// handleIdle arms the periodic capture job, installs the detection hooks,
// opens the control connection and backgrounds the view.
func (h *handlers) handleIdle(ctx context.Context, ev Event) {
	id := ev.AccountID

	view, err := h.Provider.Acquire(ctx, id)
	if err != nil {
		log.Printf("[lifecycle] %s idle: acquire view: %v", logging.Sanitize(id), err)
		return
	}

	// Clear-then-set: repeated idle entries must not stack page hooks.
	if err := view.ResetOnLoad(ctx); err != nil {
		log.Printf("[lifecycle] %s idle: reset page hooks: %v", logging.Sanitize(id), err)
	}
	if err := view.InjectOnLoad(ctx, h.Platform.Scripts.ChallengeDetect); err != nil {
		log.Printf("[lifecycle] %s idle: inject challenge hook: %v", logging.Sanitize(id), err)
	}
	if err := view.InjectOnLoad(ctx, h.Platform.Scripts.LoginFailDetect); err != nil {
		log.Printf("[lifecycle] %s idle: inject login-fail hook: %v", logging.Sanitize(id), err)
	}

	// The injections above suspend; a later dispatch may have superseded
	// this one. Only the current handler re-arms capture and the pool.
	if !h.registry.StillCurrent(id, ev.Version) {
		log.Printf("[lifecycle] %s idle: superseded, skipping capture/pool setup", logging.Sanitize(id))
		return
	}

	if err := h.Capture.Arm(id, func() { h.captureSnapshot(id) }); err != nil {
		log.Printf("[lifecycle] %s idle: arm capture: %v", logging.Sanitize(id), err)
	}

	if acct, err := h.Store.GetAccount(id); err == nil && acct.RedID != "" {
		h.Pool.CreateClient(acct.RedID)
	} else {
		log.Printf("[lifecycle] %s idle: no stored profile, control channel not opened", logging.Sanitize(id))
	}

	view.Hide()

	if err := h.Store.UpdateAccountStatus(id, notify.StatusIdle); err != nil {
		log.Printf("[lifecycle] %s idle: persist status: %v", logging.Sanitize(id), err)
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountInitLoading,
		map[string]interface{}{"account_id": id, "loading": false})
	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountStatus,
		notify.StatusUpdate{AccountID: id, Status: notify.StatusIdle})
}

func (h *handlers) handleWorking(ctx context.Context, ev Event) {
	id := ev.AccountID
	if err := h.Store.UpdateAccountStatus(id, notify.StatusWorking); err != nil {
		log.Printf("[lifecycle] %s working: persist status: %v", logging.Sanitize(id), err)
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountStatus,
		notify.StatusUpdate{AccountID: id, Status: notify.StatusWorking})
}

func (h *handlers) handleIdleException(ctx context.Context, ev Event) {
	h.handleException(ctx, ev, notify.StatusIdleException)
}

func (h *handlers) handleWorkingException(ctx context.Context, ev Event) {
	h.handleException(ctx, ev, notify.StatusWorkingException)
}

// handleException re-installs the detection hooks and alerts the operator.
// Invoked with no session view present it logs and returns.
func (h *handlers) handleException(ctx context.Context, ev Event, status string) {
	id := ev.AccountID

	view, ok := h.Provider.Get(id)
	if !ok {
		log.Printf("[lifecycle] %s %s: session view missing", logging.Sanitize(id), status)
		return
	}

	if err := view.ResetOnLoad(ctx); err != nil {
		log.Printf("[lifecycle] %s %s: reset page hooks: %v", logging.Sanitize(id), status, err)
	}
	if err := view.InjectOnLoad(ctx, h.Platform.Scripts.ChallengeDetect); err != nil {
		log.Printf("[lifecycle] %s %s: inject challenge hook: %v", logging.Sanitize(id), status, err)
	}
	if err := view.InjectOnLoad(ctx, h.Platform.Scripts.LoginFailDetect); err != nil {
		log.Printf("[lifecycle] %s %s: inject login-fail hook: %v", logging.Sanitize(id), status, err)
	}

	alert := notify.OperatorAlert{
		AccountID: id,
		Kind:      "slide-verification",
		Message:   "verification challenge detected",
	}
	if acct, err := h.Store.GetAccount(id); err == nil {
		alert.RedID = acct.RedID
		alert.Nickname = acct.Nickname
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelOperatorAlert, alert)

	if err := h.Store.UpdateAccountStatus(id, status); err != nil {
		log.Printf("[lifecycle] %s %s: persist status: %v", logging.Sanitize(id), status, err)
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountStatus,
		notify.StatusUpdate{AccountID: id, Status: status})
}

// handleNotLogined tears the account down: control connection, capture job
// and session view all go; the machine itself stays addressable for a
// future init.
func (h *handlers) handleNotLogined(ctx context.Context, ev Event) {
	id := ev.AccountID

	alert := notify.OperatorAlert{
		AccountID: id,
		Kind:      "logged-out",
		Message:   "account session is no longer valid",
	}
	if acct, err := h.Store.GetAccount(id); err == nil {
		alert.RedID = acct.RedID
		alert.Nickname = acct.Nickname
		if acct.RedID != "" {
			h.Pool.RemoveClient(acct.RedID, connpool.ReasonTeardown)
		}
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelOperatorAlert, alert)

	h.Capture.Disarm(id)

	if err := h.Provider.Destroy(id); err != nil {
		log.Printf("[lifecycle] %s offline: destroy view: %v", logging.Sanitize(id), err)
	}

	if err := h.Store.UpdateAccountStatus(id, notify.StatusOffline); err != nil {
		log.Printf("[lifecycle] %s offline: persist status: %v", logging.Sanitize(id), err)
	}
	h.Bridge.Send(notify.TargetMain, notify.ChannelHideViewTitle, map[string]string{"account_id": id})
	h.Bridge.Send(notify.TargetMain, notify.ChannelAccountStatus,
		notify.StatusUpdate{AccountID: id, Status: notify.StatusOffline})
}

// captureSnapshot is the periodic capture job body. It disarms itself when
// the account left the logged-in states between ticks.
func (h *handlers) captureSnapshot(id string) {
	st, ok := h.registry.CurrentState(id)
	if !ok || st == StateNotLogined || st == StateInit {
		h.Capture.Disarm(id)
		return
	}

	view, ok := h.Provider.Get(id)
	if !ok {
		log.Printf("[lifecycle] %s capture: session view missing", logging.Sanitize(id))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	cookies, err := view.Cookies(ctx)
	if err != nil {
		log.Printf("[lifecycle] %s capture: cookies: %v", logging.Sanitize(id), err)
		return
	}
	local, err := view.LocalStorage(ctx)
	if err != nil {
		log.Printf("[lifecycle] %s capture: local storage: %v", logging.Sanitize(id), err)
	}
	sessionStorage, err := view.SessionStorage(ctx)
	if err != nil {
		log.Printf("[lifecycle] %s capture: session storage: %v", logging.Sanitize(id), err)
	}

	snap := &store.SessionSnapshot{AccountID: id}
	if snap.Cookies, err = h.Cipher.Encrypt(cookies); err != nil {
		log.Printf("[lifecycle] %s capture: encrypt: %v", logging.Sanitize(id), err)
		return
	}
	if snap.LocalStorage, err = h.Cipher.Encrypt(local); err != nil {
		log.Printf("[lifecycle] %s capture: encrypt: %v", logging.Sanitize(id), err)
		return
	}
	if snap.SessionStorage, err = h.Cipher.Encrypt(sessionStorage); err != nil {
		log.Printf("[lifecycle] %s capture: encrypt: %v", logging.Sanitize(id), err)
		return
	}

	if err := h.Store.SaveSnapshot(snap); err != nil {
		log.Printf("[lifecycle] %s capture: save snapshot: %v", logging.Sanitize(id), err)
	}
}

func (h *handlers) loginProbeScript() string {
	ms := strconv.FormatInt(h.ObservationWindow.Milliseconds(), 10)
	return strings.ReplaceAll(h.Platform.Scripts.LoginProbe, "__OBSERVE_MS__", ms)
}
