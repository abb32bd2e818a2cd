// Package auth implements the per-provider OAuth/token state machine
// (§4.2/§4.3): NoToken -> AwaitingConsent -> HaveCode -> HaveToken ->
// (Refreshing -> HaveToken | Failed), plus the mutex that serializes
// concurrent 401-triggered reauth attempts so only one refresh round-trip
// happens at a time no matter how many in-flight requests hit 401
// together.
package auth

import (
	"context"
	"sync"

	"github.com/cloudkit/cloudkit"
)

// State is a snapshot of the auth state machine.
type State int

const (
	StateNoToken State = iota
	StateAwaitingConsent
	StateHaveCode
	StateHaveToken
	StateRefreshing
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNoToken:
		return "no_token"
	case StateAwaitingConsent:
		return "awaiting_consent"
	case StateHaveCode:
		return "have_code"
	case StateHaveToken:
		return "have_token"
	case StateRefreshing:
		return "refreshing"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// TokenStore persists and retrieves a provider's Token; concrete
// implementations live in package tokenstore.
type TokenStore interface {
	Load(label string) (cloudkit.Token, bool, error)
	Save(label string, tok cloudkit.Token) error
}

// Refresher exchanges a refresh token (or authorization code) for a new
// Token; concrete providers supply this against their own token endpoint.
type Refresher interface {
	Refresh(ctx context.Context, tok cloudkit.Token) (cloudkit.Token, error)
	ExchangeCode(ctx context.Context, code string) (cloudkit.Token, error)
}

// Manager drives one provider's auth state machine and serializes
// concurrent reauth attempts: if N in-flight requests all see 401 at once,
// only the first triggers a refresh; the rest wait on the same result.
type Manager struct {
	label     string
	store     TokenStore
	refresher Refresher
	consent   cloudkit.ConsentUI
	authorize func(ctx context.Context) (authorizeURL string, err error)

	mu     sync.Mutex
	state  State
	tok    cloudkit.Token
	tokGen uint64 // bumped on every commit; lets a waiting Reauth caller detect a refresh already happened

	reauthMu sync.Mutex // serializes concurrent Reauth calls
}

// NewManager builds a Manager, loading any persisted token immediately.
func NewManager(label string, store TokenStore, refresher Refresher, consent cloudkit.ConsentUI, authorizeURLFn func(ctx context.Context) (string, error)) *Manager {
	m := &Manager{
		label:     label,
		store:     store,
		refresher: refresher,
		consent:   consent,
		authorize: authorizeURLFn,
	}
	if tok, ok, err := store.Load(label); err == nil && ok {
		m.tok = tok
		m.state = StateHaveToken
	}
	return m
}

// State returns the current auth state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Token returns the current access token, or ok=false if none is held yet.
func (m *Manager) Token() (cloudkit.Token, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tok, m.state == StateHaveToken
}

// Authorize drives the interactive consent flow to completion: opens the
// authorize URL via the ConsentUI, exchanges the returned code for a
// token, and persists it. Safe to call again after StateFailed.
func (m *Manager) Authorize(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateAwaitingConsent
	m.mu.Unlock()

	url, err := m.authorize(ctx)
	if err != nil {
		m.setFailed()
		return err
	}

	code, err := m.consent.Show(ctx, url)
	if err != nil {
		m.setFailed()
		return err
	}

	m.mu.Lock()
	m.state = StateHaveCode
	m.mu.Unlock()

	tok, err := m.refresher.ExchangeCode(ctx, code)
	if err != nil {
		m.setFailed()
		return err
	}

	return m.commit(tok)
}

// Reauth is the hook engine.Options.Reauth wires to: if another goroutine
// is already mid-refresh, this call waits for it and reuses its result
// instead of issuing a second refresh request. A caller records the token
// generation it saw before blocking on reauthMu; if that generation has
// already moved by the time it acquires the lock, some other caller won
// the race and refreshed for it, so it just adopts the current token
// instead of hitting the network again.
func (m *Manager) Reauth(ctx context.Context) error {
	m.mu.Lock()
	tok := m.tok
	gen := m.tokGen
	m.mu.Unlock()

	m.reauthMu.Lock()
	defer m.reauthMu.Unlock()

	m.mu.Lock()
	if m.tokGen != gen {
		// Someone else refreshed while we were waiting for reauthMu.
		m.mu.Unlock()
		return nil
	}
	m.state = StateRefreshing
	m.mu.Unlock()

	newTok, err := m.refresher.Refresh(ctx, tok)
	if err != nil {
		// The caller must re-run Authorize from scratch.
		m.setFailed()
		return err
	}

	return m.commit(newTok)
}

func (m *Manager) commit(tok cloudkit.Token) error {
	m.mu.Lock()
	m.tok = tok
	m.state = StateHaveToken
	m.tokGen++
	m.mu.Unlock()
	return m.store.Save(m.label, tok)
}

func (m *Manager) setFailed() {
	m.mu.Lock()
	m.state = StateFailed
	m.mu.Unlock()
}
