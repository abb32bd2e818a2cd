package auth

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudkit/cloudkit"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu   sync.Mutex
	toks map[string]cloudkit.Token
}

func newMemStore() *memStore { return &memStore{toks: map[string]cloudkit.Token{}} }

func (s *memStore) Load(label string) (cloudkit.Token, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	tok, ok := s.toks[label]
	return tok, ok, nil
}

func (s *memStore) Save(label string, tok cloudkit.Token) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.toks[label] = tok
	return nil
}

type countingRefresher struct {
	refreshCalls atomic.Int32
}

func (r *countingRefresher) Refresh(ctx context.Context, tok cloudkit.Token) (cloudkit.Token, error) {
	r.refreshCalls.Add(1)
	return cloudkit.Token{AccessToken: "new-access", RefreshToken: tok.RefreshToken}, nil
}

func (r *countingRefresher) ExchangeCode(ctx context.Context, code string) (cloudkit.Token, error) {
	return cloudkit.Token{AccessToken: "from-code:" + code, RefreshToken: "r1"}, nil
}

type fakeConsent struct{ code string }

func (c fakeConsent) Show(ctx context.Context, authorizeURL string) (string, error) {
	return c.code, nil
}

func TestManager_AuthorizeFlow(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := NewManager("dropbox", store, &countingRefresher{}, fakeConsent{code: "abc"}, func(ctx context.Context) (string, error) {
		return "https://example.com/authorize", nil
	})

	require.Equal(t, StateNoToken, m.State())

	err := m.Authorize(context.Background())
	require.NoError(t, err)

	tok, ok := m.Token()
	require.True(t, ok)
	assert.Equal(t, "from-code:abc", tok.AccessToken)
	assert.Equal(t, StateHaveToken, m.State())

	saved, ok, err := store.Load("dropbox")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, tok, saved)
}

func TestManager_ReauthSerializesConcurrentCallers(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	refresher := &countingRefresher{}
	m := NewManager("s3", store, refresher, fakeConsent{}, nil)
	m.tok = cloudkit.Token{AccessToken: "stale", RefreshToken: "r"}
	m.state = StateHaveToken

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = m.Reauth(context.Background())
		}()
	}
	wg.Wait()

	tok, ok := m.Token()
	require.True(t, ok)
	assert.Equal(t, "new-access", tok.AccessToken)
	// All 8 callers raced in on the same stale token; the generation check
	// in Reauth means only the winner actually hits the network and every
	// loser adopts its result instead of refreshing again.
	assert.Equal(t, int32(1), refresher.refreshCalls.Load())
}

func TestManager_ReauthFailureSetsFailedState(t *testing.T) {
	t.Parallel()

	store := newMemStore()
	m := NewManager("mega", store, failingRefresher{}, fakeConsent{}, nil)
	m.tok = cloudkit.Token{AccessToken: "x"}
	m.state = StateHaveToken

	err := m.Reauth(context.Background())

	require.Error(t, err)
	assert.Equal(t, StateFailed, m.State())
}

type failingRefresher struct{}

func (failingRefresher) Refresh(ctx context.Context, tok cloudkit.Token) (cloudkit.Token, error) {
	return cloudkit.Token{}, assertErr{"refresh rejected"}
}

func (failingRefresher) ExchangeCode(ctx context.Context, code string) (cloudkit.Token, error) {
	return cloudkit.Token{}, assertErr{"exchange rejected"}
}

type assertErr struct{ msg string }

func (e assertErr) Error() string { return e.msg }
