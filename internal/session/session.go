// Package session defines the capability boundary to the embedded browser.
// The orchestration core only ever talks to these interfaces; the concrete
// browser engine lives in the host application and is injected at startup.
package session

import "context"

// View is one isolated browsing context (cookies, storage, navigation)
// dedicated to a single account.
type View interface {
	// LoadURL navigates the view.
	LoadURL(ctx context.Context, url string) error

	// Inject runs a script once in the current page.
	Inject(ctx context.Context, script string) error

	// InjectOnLoad arranges for the script to run on every subsequent
	// page load. Repeated registrations of the same script are the
	// caller's concern; use ResetOnLoad first for clear-then-set.
	InjectOnLoad(ctx context.Context, script string) error

	// ResetOnLoad removes all previously registered on-load scripts.
	ResetOnLoad(ctx context.Context) error

	// Cookies, LocalStorage and SessionStorage return the serialized
	// captured state of the view.
	Cookies(ctx context.Context) (string, error)
	LocalStorage(ctx context.Context) (string, error)
	SessionStorage(ctx context.Context) (string, error)

	// SetCookies applies a previously captured cookie payload.
	SetCookies(ctx context.Context, cookies string) error

	// Show brings the view to the foreground; Hide sends it to the
	// background without destroying it.
	Show()
	Hide()
}

// Provider owns the views, keyed by account id.
type Provider interface {
	// Acquire returns the account's view, creating an isolated one if
	// none exists. Acquire is idempotent.
	Acquire(ctx context.Context, accountID string) (View, error)

	// Get returns the existing view without creating one.
	Get(accountID string) (View, bool)

	// Destroy tears down the account's view. Destroying a missing view
	// is not an error.
	Destroy(accountID string) error
}
