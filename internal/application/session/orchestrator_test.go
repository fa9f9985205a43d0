package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/koe-workflow/internal/application/port"
	"github.com/garyjia/koe-workflow/internal/domain/entity"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type memoryKV struct {
	mu   sync.Mutex
	data map[string]string
}

func (m *memoryKV) Get(ctx context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memoryKV) Set(ctx context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memoryKV) Remove(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *memoryKV) Keys(ctx context.Context, prefix string) ([]string, error) {
	return nil, nil
}

type memorySessions struct {
	mu     sync.Mutex
	scopes map[string]*memoryKV
}

func newMemorySessions() *memorySessions {
	return &memorySessions{scopes: make(map[string]*memoryKV)}
}

func (m *memorySessions) Scope(sessionID string) port.KeyValueStore {
	m.mu.Lock()
	defer m.mu.Unlock()
	kv, ok := m.scopes[sessionID]
	if !ok {
		kv = &memoryKV{data: make(map[string]string)}
		m.scopes[sessionID] = kv
	}
	return kv
}

type mockVerifier struct {
	calls      int
	verifyFunc func(ctx context.Context, token string) (port.VerifyResult, error)
}

func (m *mockVerifier) Verify(ctx context.Context, token string) (port.VerifyResult, error) {
	m.calls++
	if m.verifyFunc != nil {
		return m.verifyFunc(ctx, token)
	}
	return port.VerifyResult{Success: true, CaseID: "SAK-001", Email: "kari@entreprenor.no"}, nil
}

type mockFetcher struct {
	calls   int
	getFunc func(ctx context.Context, caseID string, mode entity.CaseMode) (port.CaseData, error)
}

func (m *mockFetcher) GetCase(ctx context.Context, caseID string, mode entity.CaseMode) (port.CaseData, error) {
	m.calls++
	if m.getFunc != nil {
		return m.getFunc(ctx, caseID, mode)
	}
	return port.CaseData{
		Case:     entity.Case{ID: caseID, Mode: entity.ModeSvar},
		FormData: entity.CaseState{CaseID: caseID, Mode: entity.ModeSvar},
	}, nil
}

type recordingObserver struct {
	states []bool
}

func (r *recordingObserver) SetLoading(loading bool) {
	r.states = append(r.states, loading)
}

func (r *recordingObserver) falseCount() int {
	n := 0
	for _, s := range r.states {
		if !s {
			n++
		}
	}
	return n
}

var errNetwork = errors.New("network error")

func failingFetcher() *mockFetcher {
	return &mockFetcher{getFunc: func(ctx context.Context, caseID string, mode entity.CaseMode) (port.CaseData, error) {
		return port.CaseData{}, errNetwork
	}}
}

func newTestOrchestrator(v *mockVerifier, f *mockFetcher) (*Orchestrator, *memorySessions) {
	sessions := newMemorySessions()
	return NewOrchestrator(v, f, sessions, &mockLogger{}), sessions
}

func TestParseMarker(t *testing.T) {
	assert.Equal(t, MarkerUnused, ParseMarker(""))
	assert.Equal(t, MarkerUnused, ParseMarker("garbage"))
	assert.Equal(t, MarkerUsed, ParseMarker("used"))
	assert.Equal(t, MarkerConsumed, ParseMarker("consumed"))
	assert.True(t, MarkerUnused.AllowsVerify())
	assert.False(t, MarkerUsed.AllowsVerify())
	assert.False(t, MarkerConsumed.AllowsVerify())
}

func TestLoad_MagicLinkSuccess(t *testing.T) {
	v, f := &mockVerifier{}, &mockFetcher{}
	o, _ := newTestOrchestrator(v, f)
	obs := &recordingObserver{}

	res, err := o.Load(context.Background(), LoadRequest{SessionID: "s1", Token: "T1"}, obs)
	require.NoError(t, err)
	assert.Equal(t, PhaseSuccess, res.Identity.Status)
	assert.Equal(t, "SAK-001", res.Identity.CaseID)
	assert.True(t, res.Identity.FromMagicLink)
	assert.Equal(t, MarkerConsumed, res.Identity.Marker)
	require.NotNil(t, res.FormData)
	assert.Equal(t, "SAK-001", res.FormData.CaseID)
	assert.Empty(t, res.APIError)
	assert.Equal(t, []bool{true, false}, obs.states)

	marker, err := o.Marker(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, MarkerConsumed, marker)
}

func TestLoad_ConsumedMarkerNeverReverifies(t *testing.T) {
	v, f := &mockVerifier{}, &mockFetcher{}
	o, sessions := newTestOrchestrator(v, f)
	ctx := context.Background()

	_, err := o.Load(ctx, LoadRequest{SessionID: "s1", Token: "T1"}, nil)
	require.NoError(t, err)

	// Reload with the token still in the URL
	res, err := o.Load(ctx, LoadRequest{SessionID: "s1", Token: "T1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, PhaseSuccess, res.Identity.Status)
	assert.Equal(t, "SAK-001", res.Identity.CaseID)
	assert.True(t, res.Identity.FromMagicLink)

	// A session seeded with a consumed marker
	require.NoError(t, sessions.Scope("s2").Set(ctx, keyMarker, "consumed"))
	res, err = o.Load(ctx, LoadRequest{SessionID: "s2", Token: "T9"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls)
	assert.Equal(t, PhaseFailure, res.Identity.Status)
	assert.NotEmpty(t, res.AuthError)
	assert.Equal(t, PhaseSkip, res.CaseData.Status)
	assert.Equal(t, 2, f.calls)
}

func TestLoad_RejectedTokenIsTerminal(t *testing.T) {
	v := &mockVerifier{verifyFunc: func(ctx context.Context, token string) (port.VerifyResult, error) {
		return port.VerifyResult{Success: false, Error: "token expired"}, nil
	}}
	f := &mockFetcher{}
	o, _ := newTestOrchestrator(v, f)
	ctx := context.Background()
	obs := &recordingObserver{}

	res, err := o.Load(ctx, LoadRequest{SessionID: "s1", Token: "T1"}, obs)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailure, res.Identity.Status)
	assert.Equal(t, "token expired", res.AuthError)
	assert.Equal(t, MarkerUsed, res.Identity.Marker)
	assert.Zero(t, f.calls)
	assert.Equal(t, 1, obs.falseCount())

	res, err = o.Load(ctx, LoadRequest{SessionID: "s1", Token: "T1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, v.calls, "auth errors are not retried")
	assert.Equal(t, PhaseFailure, res.Identity.Status)
}

func TestLoad_VerifierTransportError(t *testing.T) {
	v := &mockVerifier{verifyFunc: func(ctx context.Context, token string) (port.VerifyResult, error) {
		return port.VerifyResult{}, errNetwork
	}}
	o, _ := newTestOrchestrator(v, &mockFetcher{})

	res, err := o.Load(context.Background(), LoadRequest{SessionID: "s1", Token: "T1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailure, res.Identity.Status)
	assert.Contains(t, res.AuthError, "network error")
}

func TestLoad_MagicLinkNeverFallsBackToCache(t *testing.T) {
	o, _ := newTestOrchestrator(&mockVerifier{}, failingFetcher())
	ctx := context.Background()

	cached := entity.CaseState{CaseID: "SAK-001", Mode: entity.ModeKoe}
	require.NoError(t, o.CacheForm(ctx, "s1", "SAK-001", cached))

	obs := &recordingObserver{}
	res, err := o.Load(ctx, LoadRequest{SessionID: "s1", Token: "T1"}, obs)
	require.NoError(t, err)
	assert.Equal(t, PhaseFailure, res.CaseData.Status)
	assert.False(t, res.CaseData.FromCache)
	assert.Nil(t, res.FormData)
	assert.Equal(t, "network error", res.APIError)
	assert.Equal(t, 1, obs.falseCount())

	// The origin survives a reload without the token
	res, err = o.Load(ctx, LoadRequest{SessionID: "s1"}, nil)
	require.NoError(t, err)
	assert.True(t, res.Identity.FromMagicLink)
	assert.Equal(t, "SAK-001", res.Identity.CaseID)
	assert.Nil(t, res.FormData)
}

func TestLoad_DirectEntryFallsBackToCache(t *testing.T) {
	v := &mockVerifier{}
	o, _ := newTestOrchestrator(v, failingFetcher())
	ctx := context.Background()

	cached := entity.CaseState{CaseID: "SAK-002", Mode: entity.ModeKoe, Grunnlag: entity.GrunnlagData{MainCategory: "endring"}}
	require.NoError(t, o.CacheForm(ctx, "s1", "SAK-002", cached))

	obs := &recordingObserver{}
	res, err := o.Load(ctx, LoadRequest{SessionID: "s1", CaseID: "SAK-002"}, obs)
	require.NoError(t, err)
	assert.Zero(t, v.calls)
	assert.False(t, res.Identity.FromMagicLink)
	assert.True(t, res.CaseData.FromCache)
	require.NotNil(t, res.FormData)
	assert.Equal(t, cached.Grunnlag, res.FormData.Grunnlag)
	assert.Equal(t, "network error", res.APIError, "fallback keeps the error")
	assert.Equal(t, 1, obs.falseCount())
}

func TestLoad_DirectEntryPrefersServer(t *testing.T) {
	o, _ := newTestOrchestrator(&mockVerifier{}, &mockFetcher{})
	ctx := context.Background()

	require.NoError(t, o.CacheForm(ctx, "s1", "SAK-002", entity.CaseState{CaseID: "SAK-002", Mode: entity.ModeKoe}))

	res, err := o.Load(ctx, LoadRequest{SessionID: "s1", CaseID: "SAK-002"}, nil)
	require.NoError(t, err)
	assert.False(t, res.CaseData.FromCache)
	require.NotNil(t, res.FormData)
	assert.Equal(t, entity.ModeSvar, res.FormData.Mode)
	assert.Empty(t, res.APIError)
}

func TestLoad_NothingToLoad(t *testing.T) {
	f := &mockFetcher{}
	o, _ := newTestOrchestrator(&mockVerifier{}, f)
	obs := &recordingObserver{}

	res, err := o.Load(context.Background(), LoadRequest{SessionID: "s1"}, obs)
	require.NoError(t, err)
	assert.Equal(t, PhaseSkip, res.Identity.Status)
	assert.Equal(t, PhaseSkip, res.CaseData.Status)
	assert.Zero(t, f.calls)
	assert.Equal(t, []bool{true, false}, obs.states)
}

func TestLoad_MissingSession(t *testing.T) {
	o, _ := newTestOrchestrator(&mockVerifier{}, &mockFetcher{})
	obs := &recordingObserver{}

	_, err := o.Load(context.Background(), LoadRequest{CaseID: "SAK-001"}, obs)
	assert.ErrorIs(t, err, ErrMissingSession)
	assert.Equal(t, 1, obs.falseCount())
}

func TestLoad_AbandonedWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	f := &mockFetcher{getFunc: func(ctx context.Context, caseID string, mode entity.CaseMode) (port.CaseData, error) {
		cancel()
		return port.CaseData{Case: entity.Case{ID: caseID}}, nil
	}}
	o, _ := newTestOrchestrator(&mockVerifier{}, f)
	obs := &recordingObserver{}

	res, err := o.Load(ctx, LoadRequest{SessionID: "s1", CaseID: "SAK-001"}, obs)
	assert.ErrorIs(t, err, ErrLoadAbandoned)
	assert.Nil(t, res)
	assert.Equal(t, 1, obs.falseCount())
}
