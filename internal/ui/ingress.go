// Package ui maps inbound UI-originated events (operator clicks, signals
// from page-injected detection scripts relayed by the shell) onto state
// machine dispatches and bridge notifications.
package ui

import (
	"context"
	"fmt"
	"log"

	"github.com/zhouBoom/xuance-sub001/internal/lifecycle"
	"github.com/zhouBoom/xuance-sub001/internal/logging"
	"github.com/zhouBoom/xuance-sub001/internal/notify"
	"github.com/zhouBoom/xuance-sub001/internal/session"
)

// Inbound event names.
const (
	EventClickAccountItem = "click-account-item"
	EventClickAddAccount  = "click-add-account-button"
	EventInitLoginSuccess = "init-login-success"
	EventInitLoginFailed  = "init-login-failed"
	EventLoginFailed      = "login-status-change-to-failed"
	EventChallengeShown   = "slide-verification-popup-detected"
	EventChallengeHidden  = "slide-verification-popup-hidden"
	EventRendererReady    = "renderer-ready"
)

// Ingress fans inbound UI events into the orchestration core.
type Ingress struct {
	registry *lifecycle.Registry
	bridge   *notify.Bridge
	provider session.Provider
}

func NewIngress(registry *lifecycle.Registry, bridge *notify.Bridge, provider session.Provider) *Ingress {
	return &Ingress{registry: registry, bridge: bridge, provider: provider}
}

// Handle processes one inbound UI event for the given account. Unknown
// event names are an error; everything else is best-effort.
func (i *Ingress) Handle(ctx context.Context, event, accountID string, payload map[string]interface{}) error {
	switch event {
	case EventRendererReady:
		i.bridge.Ready()
		return nil

	case EventClickAccountItem:
		if view, ok := i.provider.Get(accountID); ok {
			view.Show()
		}
		i.bridge.Send(notify.TargetMain, notify.ChannelOpenAccountView,
			map[string]string{"account_id": accountID})
		return nil

	case EventClickAddAccount:
		// A new login flow: the machine must exist before the first
		// dispatch lands.
		i.registry.CreateStateMachine(accountID)
		return i.registry.Dispatch(ctx, accountID, lifecycle.StateInit, payload)

	case EventInitLoginSuccess:
		return i.registry.Dispatch(ctx, accountID, lifecycle.StateIdle, payload)

	case EventInitLoginFailed, EventLoginFailed:
		return i.registry.Dispatch(ctx, accountID, lifecycle.StateNotLogined, payload)

	case EventChallengeShown:
		// Detection scripts re-emit on every DOM mutation, so this event
		// arrives repeatedly while a challenge is up; an account already
		// in an exception state keeps its working/idle flavor.
		target := lifecycle.StateIdleException
		if st, ok := i.registry.CurrentState(accountID); ok {
			switch st {
			case lifecycle.StateWorking, lifecycle.StateWorkingException:
				target = lifecycle.StateWorkingException
			}
		}
		return i.registry.Dispatch(ctx, accountID, target, payload)

	case EventChallengeHidden:
		st, ok := i.registry.CurrentState(accountID)
		if !ok {
			log.Printf("[ui] %s: challenge cleared for unknown account", logging.Sanitize(accountID))
			return nil
		}
		switch st {
		case lifecycle.StateWorkingException:
			return i.registry.Dispatch(ctx, accountID, lifecycle.StateWorking, payload)
		case lifecycle.StateIdleException:
			return i.registry.Dispatch(ctx, accountID, lifecycle.StateIdle, payload)
		default:
			// Popup hidden without a recorded exception; nothing to do.
			return nil
		}

	default:
		return fmt.Errorf("unknown ui event %q", event)
	}
}
