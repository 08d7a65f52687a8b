// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ManuGH/launchpad/internal/assets"
	"github.com/ManuGH/launchpad/internal/backend"
	"github.com/ManuGH/launchpad/internal/config"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("net/http.(*persistConn).readLoop"),
		goleak.IgnoreTopFunction("net/http.(*persistConn).writeLoop"),
		goleak.IgnoreTopFunction("internal/poll.runtime_pollWait"),
	)
}

var testGames = []state.Game{
	{ID: "g1", Name: "One", Background: "https://cdn.example/g1.png", Icon: "https://cdn.example/g1-icon.png"},
	{ID: "g2", Name: "Two", Background: "https://cdn.example/g2.png"},
}

func onlineChecker() netcheck.Checker {
	return netcheck.CheckerFunc(func(context.Context) netcheck.Result {
		return netcheck.Result{Status: netcheck.StatusOnline}
	})
}

type countingFetcher struct{ calls atomic.Int32 }

func (f *countingFetcher) Fetch(_ context.Context, url string, kind assets.Kind) (*assets.Element, error) {
	f.calls.Add(1)
	return &assets.Element{URL: url, Kind: kind, ContentType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}, nil
}

func newMock(t *testing.T) *backend.MockServer {
	t.Helper()
	mock := backend.NewMockServer(backend.Fixtures{
		Settings: map[string]any{"theme": "dark"},
		Repositories: backend.RepositoriesResponse{
			Repositories: []state.Repository{{ID: "main", Name: "Main", URL: "https://repo.example"}},
			Games:        testGames,
		},
	})
	t.Cleanup(mock.Close)
	return mock
}

func testConfig(t *testing.T, backendURL string) config.AppConfig {
	t.Helper()
	cfg := config.Defaults()
	cfg.DataDir = t.TempDir()
	cfg.Platform = "darwin"
	cfg.Backend.URL = backendURL
	cfg.Backend.Timeout = 2 * time.Second
	cfg.API.ListenAddr = "127.0.0.1:0"
	cfg.API.ShutdownTimeout = time.Second
	cfg.Network.PollInterval = time.Hour
	cfg.Startup.Policy = "limited"
	cfg.Startup.MetadataPollInterval = 5 * time.Millisecond
	cfg.Startup.SubscribeDelay = 0
	cfg.Startup.RetryDelay = 0
	cfg.Store.Backend = "memory"
	cfg.Telemetry.Enabled = false
	return cfg
}

type runningApp struct {
	app  *App
	c    *Components
	addr string
	stop func() error
}

func startApp(t *testing.T, cfg config.AppConfig, holder *config.ConfigHolder, fetcher assets.Fetcher) *runningApp {
	t.Helper()
	c, err := Build(context.Background(), cfg, WithChecker(onlineChecker()), WithFetcher(fetcher))
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	app, err := NewApp(c, holder, WithListener(ln), WithReloadSignal(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- app.Run(ctx) }()
	require.Eventually(t, app.running.Load, 5*time.Second, time.Millisecond)

	var stopped bool
	stop := func() error {
		if stopped {
			return nil
		}
		stopped = true
		cancel()
		select {
		case err := <-errCh:
			return err
		case <-time.After(10 * time.Second):
			t.Fatal("app did not stop")
			return nil
		}
	}
	t.Cleanup(func() { _ = stop() })
	return &runningApp{app: app, c: c, addr: ln.Addr().String(), stop: stop}
}

func TestApp_StartupCompletesAndPersists(t *testing.T) {
	mock := newMock(t)
	fetcher := &countingFetcher{}
	cfg := testConfig(t, mock.URL())
	ra := startApp(t, cfg, nil, fetcher)

	require.Eventually(t, func() bool {
		return ra.c.State.Snapshot().Finalized
	}, 5*time.Second, 10*time.Millisecond)

	snapPath := filepath.Join(cfg.DataDir, state.SnapshotFile)
	require.Eventually(t, func() bool {
		_, err := os.Stat(snapPath)
		return err == nil
	}, 2*time.Second, 10*time.Millisecond)

	st := ra.c.State.Snapshot()
	assert.Equal(t, 100, st.Progress)
	assert.False(t, st.LimitedMode)
	assert.Len(t, st.Games, 2)
	assert.Equal(t, "dark", st.Settings["theme"])
	assert.Equal(t, int32(3), fetcher.calls.Load())
	assert.True(t, ra.c.Assets.IsLoaded("https://cdn.example/g1-icon.png"))
	// darwin is not the compat platform
	assert.Zero(t, mock.Calls(backend.PathCompat))

	resp, err := http.Get("http://" + ra.addr + "/api/v1/state")
	require.NoError(t, err)
	var got state.State
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, got.Finalized)

	resp, err = http.Get("http://" + ra.addr + "/readyz")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	require.NoError(t, ra.stop())

	snap, err := state.LoadSnapshot(snapPath)
	require.NoError(t, err)
	assert.Len(t, snap.Games, 2)
}

func TestApp_RecoveryThroughAPI(t *testing.T) {
	mock := newMock(t)
	cfg := testConfig(t, mock.URL())
	cfg.Network.CompleteDisplay = 10 * time.Millisecond
	ra := startApp(t, cfg, nil, &countingFetcher{})

	require.Eventually(t, func() bool {
		return ra.c.State.Snapshot().Finalized
	}, 5*time.Second, 10*time.Millisecond)
	before := mock.Calls(backend.PathRepositories)

	resp, err := http.Post("http://"+ra.addr+"/api/v1/recovery", "application/json", nil)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return mock.Calls(backend.PathRepositories) > before && !ra.c.Monitor.Recovering()
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, ra.stop())
}

func TestApp_RestoresSnapshot(t *testing.T) {
	mock := newMock(t)
	cfg := testConfig(t, mock.URL())
	require.NoError(t, state.SaveSnapshot(filepath.Join(cfg.DataDir, state.SnapshotFile), state.State{
		Games: []state.Game{{ID: "cached", Name: "Cached"}},
	}))

	c, err := Build(context.Background(), cfg, WithChecker(onlineChecker()), WithFetcher(&countingFetcher{}))
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(context.Background())) }()

	st := c.State.Snapshot()
	require.Len(t, st.Games, 1)
	assert.Equal(t, "cached", st.Games[0].ID)
	assert.True(t, st.MetadataLoaded)
	assert.False(t, st.Finalized)
}

func TestApp_CorruptSnapshotIsIgnored(t *testing.T) {
	mock := newMock(t)
	cfg := testConfig(t, mock.URL())
	require.NoError(t, os.WriteFile(filepath.Join(cfg.DataDir, state.SnapshotFile), []byte("{nope"), 0o600))

	c, err := Build(context.Background(), cfg, WithChecker(onlineChecker()))
	require.NoError(t, err)
	defer func() { require.NoError(t, c.Close(context.Background())) }()
	assert.Empty(t, c.State.Snapshot().Games)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*config.AppConfig)
	}{
		{"bad backend scheme", func(c *config.AppConfig) { c.Backend.URL = "ftp://backend" }},
		{"unknown policy", func(c *config.AppConfig) { c.Startup.Policy = "maybe" }},
		{"unknown store", func(c *config.AppConfig) { c.Store.Backend = "tape" }},
		{"bad outbound cidr", func(c *config.AppConfig) {
			c.Assets.Outbound.Enabled = true
			c.Assets.Outbound.AllowCIDRs = []string{"not-a-cidr"}
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t, "http://127.0.0.1:1")
			tt.mutate(&cfg)
			c, err := Build(context.Background(), cfg, WithChecker(onlineChecker()))
			require.Error(t, err)
			assert.Nil(t, c)
		})
	}
}

func TestApp_ListenFailure(t *testing.T) {
	mock := newMock(t)
	busy, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer busy.Close()

	cfg := testConfig(t, mock.URL())
	cfg.API.ListenAddr = busy.Addr().String()
	c, err := Build(context.Background(), cfg, WithChecker(onlineChecker()), WithFetcher(&countingFetcher{}))
	require.NoError(t, err)
	app, err := NewApp(c, nil, WithReloadSignal(nil))
	require.NoError(t, err)

	err = app.Run(context.Background())
	require.ErrorIs(t, err, ErrServerStartFailed)
}

func TestApp_RunTwice(t *testing.T) {
	mock := newMock(t)
	cfg := testConfig(t, mock.URL())
	ra := startApp(t, cfg, nil, &countingFetcher{})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.ErrorIs(t, ra.app.Run(ctx), ErrAlreadyRunning)
	assert.True(t, ra.app.running.Load())

	_, err := NewApp(nil, nil)
	require.ErrorIs(t, err, ErrMissingComponents)
}

func TestApp_ReloadAppliesLogLevel(t *testing.T) {
	prev := zerolog.GlobalLevel()
	t.Cleanup(func() { zerolog.SetGlobalLevel(prev) })
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	mock := newMock(t)
	cfg := testConfig(t, mock.URL())

	path := filepath.Join(t.TempDir(), "config.yaml")
	write := func(level string) {
		body := "dataDir: " + cfg.DataDir + "\nlogLevel: " + level + "\nbackend:\n  url: " + mock.URL() + "\n"
		require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	}
	write("info")
	loader := config.NewLoader(path, "test")
	holder := config.NewConfigHolder(cfg, loader)
	holder.SetDebounce(time.Hour)

	startApp(t, cfg, holder, &countingFetcher{})

	write("debug")
	require.NoError(t, holder.Reload(context.Background()))
	require.Eventually(t, func() bool {
		return zerolog.GlobalLevel() == zerolog.DebugLevel
	}, 2*time.Second, 10*time.Millisecond)
}
