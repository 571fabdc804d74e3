package session

import (
	"context"
	"sync"
)

// NullProvider is an in-memory Provider used when no browser engine is
// attached (development, sandbox runs). Views accept every call and
// remember nothing beyond applied cookies.
type NullProvider struct {
	mu    sync.Mutex
	views map[string]*nullView
}

func NewNullProvider() *NullProvider {
	return &NullProvider{views: make(map[string]*nullView)}
}

func (p *NullProvider) Acquire(ctx context.Context, accountID string) (View, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.views[accountID]
	if !ok {
		v = &nullView{}
		p.views[accountID] = v
	}
	return v, nil
}

func (p *NullProvider) Get(accountID string) (View, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.views[accountID]
	return v, ok
}

func (p *NullProvider) Destroy(accountID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.views, accountID)
	return nil
}

type nullView struct {
	mu      sync.Mutex
	cookies string
}

func (v *nullView) LoadURL(ctx context.Context, url string) error      { return nil }
func (v *nullView) Inject(ctx context.Context, script string) error    { return nil }
func (v *nullView) InjectOnLoad(ctx context.Context, s string) error   { return nil }
func (v *nullView) ResetOnLoad(ctx context.Context) error              { return nil }
func (v *nullView) LocalStorage(ctx context.Context) (string, error)   { return "", nil }
func (v *nullView) SessionStorage(ctx context.Context) (string, error) { return "", nil }
func (v *nullView) Show()                                              {}
func (v *nullView) Hide()                                              {}

func (v *nullView) Cookies(ctx context.Context) (string, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.cookies, nil
}

func (v *nullView) SetCookies(ctx context.Context, cookies string) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.cookies = cookies
	return nil
}
