// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package startup

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/launchpad/internal/assets"
	"github.com/ManuGH/launchpad/internal/events"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeBackend struct {
	store *state.Store
	games []state.Game
	fail  map[string]bool

	mu    sync.Mutex
	calls map[string]int
}

func newFakeBackend(store *state.Store, games ...state.Game) *fakeBackend {
	return &fakeBackend{store: store, games: games, fail: map[string]bool{}, calls: map[string]int{}}
}

func (b *fakeBackend) hit(op string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[op]++
	if b.fail[op] {
		return errors.New(op + " unavailable")
	}
	return nil
}

func (b *fakeBackend) count(op string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[op]
}

func (b *fakeBackend) FetchSettings(context.Context) error { return b.hit("settings") }

func (b *fakeBackend) FetchRepositories(context.Context) error {
	if err := b.hit("repositories"); err != nil {
		return err
	}
	b.store.Apply(state.Fields{Games: b.games, MetadataLoaded: state.Ptr(true)})
	return nil
}

func (b *fakeBackend) FetchCompatibilityData(context.Context) error  { return b.hit("compat") }
func (b *fakeBackend) FetchInstalledRunners(context.Context) error   { return b.hit("runners") }
func (b *fakeBackend) FetchPlatformToolStatus(context.Context) error { return b.hit("tools") }
func (b *fakeBackend) FetchJobSnapshot(context.Context) error        { return b.hit("jobs") }

// seqChecker returns results in order, repeating the last one.
type seqChecker struct {
	mu      sync.Mutex
	results []netcheck.Result
	calls   int
}

func (c *seqChecker) Check(context.Context) netcheck.Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	c.calls++
	return c.results[i]
}

func (c *seqChecker) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func online() netcheck.Result {
	ms := int64(12)
	return netcheck.Result{Status: netcheck.StatusOnline, LatencyMs: &ms}
}

type fakeSource struct {
	mu       sync.Mutex
	ch       chan events.Event
	types    []events.Type
	subs     int
	released bool
	once     sync.Once
}

func newFakeSource() *fakeSource { return &fakeSource{ch: make(chan events.Event, 8)} }

func (s *fakeSource) Subscribe(_ context.Context, types []events.Type) (<-chan events.Event, func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs++
	s.types = types
	return s.ch, func() {
		s.once.Do(func() {
			s.mu.Lock()
			s.released = true
			s.mu.Unlock()
			close(s.ch)
		})
	}, nil
}

func (s *fakeSource) isReleased() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.released
}

type okFetcher struct {
	mu   sync.Mutex
	urls []string
}

func (f *okFetcher) Fetch(_ context.Context, url string, _ assets.Kind) (*assets.Element, error) {
	f.mu.Lock()
	f.urls = append(f.urls, url)
	f.mu.Unlock()
	return &assets.Element{Data: []byte("x")}, nil
}

type harness struct {
	store    *state.Store
	backend  *fakeBackend
	checker  *seqChecker
	cache    *assets.Cache
	fetcher  *okFetcher
	source   *fakeSource
	complete atomic.Int32
}

func newHarness(t *testing.T, results ...netcheck.Result) *harness {
	t.Helper()
	h := &harness{
		store:   state.NewStore(state.State{}),
		checker: &seqChecker{results: results},
		fetcher: &okFetcher{},
		source:  newFakeSource(),
	}
	h.backend = newFakeBackend(h.store,
		state.Game{ID: "g1", Background: "https://cdn.example/g1.png", LiveBackground: "https://cdn.example/g1.webm", Icon: "https://cdn.example/g1-icon.png"},
		state.Game{ID: "g2", Background: "https://cdn.example/g2.png"},
	)
	h.cache = assets.New(h.fetcher)
	t.Cleanup(h.cache.Close)
	return h
}

func (h *harness) orchestrator(cfg Config, decider Decider) *Orchestrator {
	if cfg.MetadataPollInterval == 0 {
		cfg.MetadataPollInterval = time.Millisecond
	}
	if cfg.Platform == "" {
		cfg.Platform = "linux"
	}
	return New(cfg, Deps{
		Checker:    h.checker,
		Backend:    h.backend,
		Assets:     h.cache,
		State:      h.store,
		Decider:    decider,
		Events:     h.source,
		OnComplete: func() { h.complete.Add(1) },
	})
}

func decideWith(limited bool, err error) (Decider, *atomic.Int32) {
	var n atomic.Int32
	return DeciderFunc(func(context.Context, netcheck.Result) (bool, error) {
		n.Add(1)
		return limited, err
	}), &n
}

func TestRun_OfflineLimitedMode(t *testing.T) {
	h := newHarness(t, netcheck.Offline("no route"))
	decider, asked := decideWith(true, nil)
	o := h.orchestrator(Config{}, decider)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, int32(1), asked.Load())
	assert.True(t, o.LimitedMode())
	assert.Equal(t, PhaseSubscribed, o.Phase())

	st := h.store.Snapshot()
	assert.True(t, st.LimitedMode)
	assert.Equal(t, 100, st.Progress)
	assert.True(t, st.Finalized)
	assert.Equal(t, "offline", st.Network.Status)

	assert.Equal(t, 1, h.backend.count("settings"))
	assert.Equal(t, 1, h.backend.count("repositories"))
	assert.Equal(t, 1, h.backend.count("jobs"))
	assert.Equal(t, int32(1), h.complete.Load())

	select {
	case <-o.Done():
	default:
		t.Fatal("Done not closed after Run")
	}
}

func TestRun_OnlineSkipsDecisionAndFetchesCompatOnLinux(t *testing.T) {
	h := newHarness(t, online())
	decider, asked := decideWith(true, nil)
	o := h.orchestrator(Config{Platform: "linux"}, decider)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, int32(0), asked.Load())
	assert.False(t, o.LimitedMode())
	assert.False(t, h.store.Snapshot().LimitedMode)
	assert.Equal(t, 1, h.backend.count("compat"))
	assert.Equal(t, 1, h.backend.count("runners"))
	assert.Equal(t, 1, h.backend.count("tools"))

	// Live backgrounds are skipped on linux.
	assert.True(t, h.cache.IsLoaded("https://cdn.example/g1.png"))
	assert.True(t, h.cache.IsLoaded("https://cdn.example/g1-icon.png"))
	assert.True(t, h.cache.IsLoaded("https://cdn.example/g2.png"))
	assert.False(t, h.cache.IsLoaded("https://cdn.example/g1.webm"))
}

func TestRun_OtherPlatformSkipsCompatButPreloadsLive(t *testing.T) {
	h := newHarness(t, online())
	o := h.orchestrator(Config{Platform: "windows"}, nil)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))

	assert.Equal(t, 0, h.backend.count("compat"))
	assert.Equal(t, 0, h.backend.count("runners"))
	assert.Equal(t, 0, h.backend.count("tools"))
	assert.True(t, h.cache.IsLoaded("https://cdn.example/g1.webm"))
}

func TestRun_RetryDecisionLoopsUntilOnline(t *testing.T) {
	h := newHarness(t, netcheck.Offline("down"), netcheck.Result{Status: netcheck.StatusSlow}, online())
	decider, asked := decideWith(false, nil)
	o := h.orchestrator(Config{RetryDelay: time.Millisecond}, decider)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, 3, h.checker.count())
	assert.Equal(t, int32(2), asked.Load())
	assert.False(t, o.LimitedMode())
}

func TestRun_DecisionErrorRetries(t *testing.T) {
	h := newHarness(t, netcheck.Offline("down"), online())
	decider, asked := decideWith(true, errors.New("dialog crashed"))
	o := h.orchestrator(Config{}, decider)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, int32(1), asked.Load())
	assert.False(t, o.LimitedMode())
	assert.Equal(t, 2, h.checker.count())
}

func TestRun_FetchErrorsAreNotFatal(t *testing.T) {
	h := newHarness(t, online())
	h.backend.fail["settings"] = true
	h.backend.fail["repositories"] = true
	h.backend.fail["compat"] = true
	h.backend.fail["jobs"] = true
	o := h.orchestrator(Config{MetadataPollAttempts: 3}, nil)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, PhaseSubscribed, o.Phase())
	assert.Equal(t, 100, h.store.Snapshot().Progress)
	assert.Equal(t, 1, h.backend.count("runners"))
	assert.Equal(t, int32(1), h.complete.Load())
}

func TestRun_ProgressIsMonotonic(t *testing.T) {
	h := newHarness(t, online())
	snaps, unsubscribe := h.store.Subscribe(1024)
	o := h.orchestrator(Config{}, nil)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))
	unsubscribe()

	last := 0
	var seen []int
	for st := range snaps {
		assert.GreaterOrEqual(t, st.Progress, last)
		last = st.Progress
		seen = append(seen, st.Progress)
	}
	assert.Equal(t, 100, last)
	assert.Contains(t, seen, 10)
	assert.Contains(t, seen, 25)
	assert.Contains(t, seen, 50)
	assert.Contains(t, seen, 75)
}

func TestRun_SubscribesOnceAndConsumesEvents(t *testing.T) {
	h := newHarness(t, online())
	o := h.orchestrator(Config{}, nil)

	require.NoError(t, o.Run(context.Background()))
	assert.Equal(t, 1, h.source.subs)
	assert.Equal(t, events.AllTypes, h.source.types)

	payload, _ := json.Marshal(events.JobPayload{JobID: "j1", Progress: 20})
	h.source.ch <- events.Event{Type: events.DownloadProgress, Payload: payload}
	require.Eventually(t, func() bool {
		return h.store.Snapshot().Jobs["j1"].Progress == 20
	}, time.Second, time.Millisecond)

	o.Cancel()
	assert.True(t, h.source.isReleased())
	assert.Equal(t, PhaseCancelled, o.Phase())
	assert.Equal(t, string(PhaseCancelled), h.store.Snapshot().Phase)
	assert.Equal(t, 100, h.store.Snapshot().Progress)
}

func TestCancel_DuringDecision(t *testing.T) {
	h := newHarness(t, netcheck.Offline("down"))
	gate := NewDecisionGate()
	o := h.orchestrator(Config{}, gate)

	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		_, pending := gate.Pending()
		return pending
	}, time.Second, time.Millisecond)

	assert.Equal(t, string(PhaseCheckingNetwork), h.store.Snapshot().Phase)

	o.Cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, PhaseCancelled, o.Phase())
	assert.Equal(t, string(PhaseCancelled), h.store.Snapshot().Phase)
	assert.Equal(t, 0, h.backend.count("settings"))
	assert.Equal(t, int32(0), h.complete.Load())
	assert.Equal(t, 0, h.source.subs)
	assert.False(t, o.LimitedMode())
}

func TestRun_GateResolvedLimited(t *testing.T) {
	h := newHarness(t, netcheck.Offline("down"))
	gate := NewDecisionGate()
	o := h.orchestrator(Config{}, gate)
	defer o.Cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- o.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		res, pending := gate.Pending()
		return pending && res.Status == netcheck.StatusOffline
	}, time.Second, time.Millisecond)
	require.NoError(t, gate.Resolve(true))

	require.NoError(t, <-errCh)
	assert.True(t, o.LimitedMode())
}

func TestCancel_BeforeRun(t *testing.T) {
	h := newHarness(t, online())
	o := h.orchestrator(Config{}, nil)
	o.Cancel()

	assert.Equal(t, string(PhaseCancelled), h.store.Snapshot().Phase)

	assert.ErrorIs(t, o.Run(context.Background()), context.Canceled)
	assert.Equal(t, 0, h.checker.count())
	assert.Equal(t, string(PhaseCancelled), h.store.Snapshot().Phase)
}

func TestRun_OnlyOnce(t *testing.T) {
	h := newHarness(t, online())
	o := h.orchestrator(Config{}, nil)
	defer o.Cancel()

	require.NoError(t, o.Run(context.Background()))
	assert.Error(t, o.Run(context.Background()))
}

func TestRun_ParentContextCancelled(t *testing.T) {
	h := newHarness(t, online())
	o := h.orchestrator(Config{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, o.Run(ctx), context.Canceled)
	o.Cancel()
}

func TestPreloadPercent(t *testing.T) {
	assert.Equal(t, 75, preloadPercent(0, 4))
	assert.Equal(t, 81, preloadPercent(1, 4))
	assert.Equal(t, 100, preloadPercent(4, 4))
	assert.Equal(t, 100, preloadPercent(5, 4))
	assert.Equal(t, 100, preloadPercent(0, 0))
}
