// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package assets

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeFetcher counts fetches per URL. URLs in fail fail; when gate is set,
// fetches block until it is closed.
type fakeFetcher struct {
	mu    sync.Mutex
	calls map[string]int
	kinds map[string]Kind
	fail  map[string]bool
	gate  chan struct{}
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		calls: make(map[string]int),
		kinds: make(map[string]Kind),
		fail:  make(map[string]bool),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string, kind Kind) (*Element, error) {
	f.mu.Lock()
	f.calls[url]++
	f.kinds[url] = kind
	fail := f.fail[url]
	gate := f.gate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if fail {
		return nil, errors.New("boom")
	}
	return &Element{ContentType: "image/png", Data: []byte("px")}, nil
}

func (f *fakeFetcher) count(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[url]
}

func (f *fakeFetcher) setFail(url string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[url] = fail
}

func waitAll(t *testing.T, ps ...*Pending) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, p := range ps {
		require.NoError(t, p.Wait(ctx))
	}
}

func TestLoad_DeduplicatesConcurrentCallers(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	c := New(f)
	defer c.Close()

	const n = 20
	handles := make([]*Pending, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			handles[i] = c.Load("https://cdn.example/a.png")
		}(i)
	}
	wg.Wait()

	for _, h := range handles[1:] {
		assert.Same(t, handles[0], h)
	}
	assert.Equal(t, 1, c.Stats().InFlight)

	close(f.gate)
	waitAll(t, handles...)

	assert.Equal(t, 1, f.count("https://cdn.example/a.png"))
	for _, h := range handles {
		assert.False(t, h.Failed())
	}
	assert.True(t, c.IsLoaded("https://cdn.example/a.png"))
}

func TestLoad_LoadedURLDoesNotFetch(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	waitAll(t, c.Load("u.png"))
	p := c.Load("u.png")
	select {
	case <-p.Done():
	default:
		t.Fatal("handle for loaded url should be resolved")
	}
	assert.Equal(t, 1, f.count("u.png"))
	assert.Equal(t, uint64(1), c.Stats().Hits)
}

func TestLoad_FailureResolvesAndMarksFailed(t *testing.T) {
	f := newFakeFetcher()
	f.setFail("bad.png", true)
	c := New(f)
	defer c.Close()

	p := c.Load("bad.png")
	waitAll(t, p)
	assert.True(t, p.Failed())
	assert.True(t, c.IsFailed("bad.png"))
	assert.False(t, c.IsLoaded("bad.png"))

	_, ok := c.GetElement("bad.png")
	assert.False(t, ok)

	// A failed URL is not refetched until cleared.
	again := c.Load("bad.png")
	waitAll(t, again)
	assert.True(t, again.Failed())
	assert.Equal(t, 1, f.count("bad.png"))
}

func TestLoad_PanickingFetcherFails(t *testing.T) {
	c := New(FetcherFunc(func(context.Context, string, Kind) (*Element, error) {
		panic("decoder exploded")
	}))
	defer c.Close()

	p := c.Load("x.png")
	waitAll(t, p)
	assert.True(t, p.Failed())
	assert.True(t, c.IsFailed("x.png"))
}

func TestLoad_NilElementFails(t *testing.T) {
	c := New(FetcherFunc(func(context.Context, string, Kind) (*Element, error) {
		return nil, nil
	}))
	defer c.Close()

	waitAll(t, c.Load("x.png"))
	assert.True(t, c.IsFailed("x.png"))
}

func TestClearFailed_AllowsRetry(t *testing.T) {
	f := newFakeFetcher()
	f.setFail("u.png", true)
	c := New(f)
	defer c.Close()

	waitAll(t, c.Load("u.png"))
	require.True(t, c.IsFailed("u.png"))

	f.setFail("u.png", false)
	assert.Equal(t, 1, c.ClearFailed())
	assert.False(t, c.IsFailed("u.png"))
	assert.False(t, c.IsLoaded("u.png"))

	p := c.Load("u.png")
	waitAll(t, p)
	assert.False(t, p.Failed())
	assert.Equal(t, 2, f.count("u.png"))
	assert.True(t, c.IsLoaded("u.png"))
	assert.Equal(t, 0, c.ClearFailed())
}

func TestExclusivity_NeverLoadedAndFailed(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	urls := []string{"a.png", "b.png", "c.mp4", "d.png"}
	f.setFail("b.png", true)
	require.NoError(t, c.LoadMany(context.Background(), urls, nil, nil))

	c.RegisterExternal("a.png", nil, true)
	c.RegisterExternal("b.png", &Element{Data: []byte("ok")}, false)

	for _, u := range urls {
		assert.False(t, c.IsLoaded(u) && c.IsFailed(u), u)
	}
	assert.True(t, c.IsFailed("a.png"))
	assert.True(t, c.IsLoaded("b.png"))
}

func TestLoadMany_BatchCompletesPastFailures(t *testing.T) {
	f := newFakeFetcher()
	f.setFail("u2.png", true)
	c := New(f)
	defer c.Close()

	var calls [][2]int
	err := c.LoadMany(context.Background(), []string{"u1.png", "u2.png", "u3.png"}, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{1, 3}, {2, 3}, {3, 3}}, calls)
	assert.True(t, c.IsLoaded("u1.png"))
	assert.True(t, c.IsFailed("u2.png"))
	assert.True(t, c.IsLoaded("u3.png"))
}

func TestLoadMany_SkipsLoadedAndSniffsVideo(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	waitAll(t, c.Load("a.png"))

	var calls [][2]int
	err := c.LoadMany(context.Background(), []string{"a.png", "b.mp4"}, func(done, total int) {
		calls = append(calls, [2]int{done, total})
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, [][2]int{{1, 1}}, calls)
	assert.Equal(t, 1, f.count("a.png"))
	assert.Equal(t, 1, f.count("b.mp4"))
	f.mu.Lock()
	assert.Equal(t, KindVideo, f.kinds["b.mp4"])
	f.mu.Unlock()

	el, ok := c.GetElement("b.mp4")
	require.True(t, ok)
	assert.Equal(t, KindVideo, el.Kind)
	assert.Equal(t, VideoPlayback, el.Playback)
}

func TestLoadMany_EmptyInputNoProgress(t *testing.T) {
	c := New(newFakeFetcher())
	defer c.Close()

	called := false
	require.NoError(t, c.LoadMany(context.Background(), nil, func(int, int) { called = true }, nil))
	require.NoError(t, c.LoadMany(context.Background(), []string{"", ""}, func(int, int) { called = true }, nil))
	assert.False(t, called)
}

func TestLoadMany_DeduplicatesInput(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	defer c.Close()

	var last [2]int
	require.NoError(t, c.LoadMany(context.Background(), []string{"a.png", "a.png", "b.png"}, func(d, t int) {
		last = [2]int{d, t}
	}, nil))
	assert.Equal(t, [2]int{2, 2}, last)
	assert.Equal(t, 1, f.count("a.png"))
}

func TestSeen(t *testing.T) {
	var nilSet *Seen
	assert.False(t, nilSet.Has("a.png"))
	assert.Zero(t, nilSet.Len())
	nilSet.Add("a.png")

	s := NewSeen()
	s.Add("a.png", "b.png", "a.png")
	assert.True(t, s.Has("a.png"))
	assert.False(t, s.Has("c.png"))
	assert.Equal(t, 2, s.Len())
}

func TestLoadMany_SeenSet(t *testing.T) {
	f := newFakeFetcher()
	f.setFail("fail.png", true)
	c := New(f)
	defer c.Close()

	seen := NewSeen()
	require.NoError(t, c.LoadMany(context.Background(), []string{"ok.png", "fail.png"}, nil, seen))
	assert.Equal(t, 2, seen.Len())
	require.True(t, c.IsFailed("fail.png"))

	// Seen but not loaded and not failed: skipped.
	seen.Add("skipped.png")

	f.setFail("fail.png", false)
	var totals []int
	require.NoError(t, c.LoadMany(context.Background(), []string{"fail.png", "skipped.png"}, func(_, total int) {
		totals = append(totals, total)
	}, seen))

	// The failed URL is retried despite being seen.
	assert.Equal(t, []int{1}, totals)
	assert.Equal(t, 2, f.count("fail.png"))
	assert.Equal(t, 0, f.count("skipped.png"))
	assert.True(t, c.IsLoaded("fail.png"))
}

func TestLoadMany_SeenDoesNotSkipInFlight(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	c := New(f)
	defer c.Close()

	p := c.Load("slow.png")
	seen := NewSeen()
	seen.Add("slow.png")

	// LoadMany joins the pending load synchronously before it starts waiting.
	go func() {
		time.Sleep(50 * time.Millisecond)
		close(f.gate)
	}()

	var totals []int
	require.NoError(t, c.LoadMany(context.Background(), []string{"slow.png"}, func(_, total int) {
		totals = append(totals, total)
	}, seen))
	waitAll(t, p)

	assert.Equal(t, []int{1}, totals)
	assert.Equal(t, 1, f.count("slow.png"))
}

func TestLoadMany_ContextCancelStopsWaitingOnly(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	c := New(f)
	defer c.Close()

	ctx, cancel := context.WithCancel(context.Background())
	var ticks int32
	errCh := make(chan error, 1)
	go func() {
		errCh <- c.LoadMany(ctx, []string{"a.png", "b.png"}, func(int, int) {
			atomic.AddInt32(&ticks, 1)
		}, nil)
	}()

	require.Eventually(t, func() bool { return c.Stats().InFlight == 2 }, time.Second, time.Millisecond)
	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)

	// Loads continue in the background and still update the cache.
	close(f.gate)
	require.Eventually(t, func() bool {
		return c.IsLoaded("a.png") && c.IsLoaded("b.png")
	}, time.Second, time.Millisecond)
	assert.Equal(t, int32(0), atomic.LoadInt32(&ticks))
}

func TestRegisterExternal_SupersedesInFlight(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	f.setFail("x.png", true)
	c := New(f)
	defer c.Close()

	p := c.Load("x.png")
	c.RegisterExternal("x.png", &Element{ContentType: "image/png", Data: []byte("ext")}, false)
	assert.Equal(t, 0, c.Stats().InFlight)

	close(f.gate)
	waitAll(t, p)

	// The superseded fetch failed but did not overwrite the external result.
	assert.True(t, p.Failed())
	assert.True(t, c.IsLoaded("x.png"))
	assert.False(t, c.IsFailed("x.png"))
	el, ok := c.GetElement("x.png")
	require.True(t, ok)
	assert.Equal(t, []byte("ext"), el.Data)
	assert.Equal(t, "x.png", el.URL)
}

func TestRegisterExternal_NilElementCountsAsFailure(t *testing.T) {
	c := New(newFakeFetcher())
	defer c.Close()

	c.RegisterExternal("y.png", nil, false)
	assert.True(t, c.IsFailed("y.png"))
}

func TestClose_AbortsInFlight(t *testing.T) {
	f := newFakeFetcher()
	f.gate = make(chan struct{})
	c := New(f)

	p := c.Load("a.png")
	c.Close()
	waitAll(t, p)
	assert.True(t, p.Failed())
	assert.True(t, c.IsFailed("a.png"))

	late := c.Load("b.png")
	waitAll(t, late)
	assert.True(t, late.Failed())
	assert.Equal(t, 0, f.count("b.png"))
}

func TestPending_WaitHonoursContext(t *testing.T) {
	p := newPending("u")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, p.Wait(ctx), context.Canceled)
	assert.False(t, p.Failed())
	assert.Equal(t, "u", p.URL())
}

func TestDefault_Wrappers(t *testing.T) {
	f := newFakeFetcher()
	c := New(f)
	prev := SetDefault(c)
	defer func() {
		SetDefault(prev)
		c.Close()
	}()

	require.Same(t, c, Default())
	require.NoError(t, LoadMany(context.Background(), []string{"a.png"}, nil, nil))
	assert.True(t, IsLoaded("a.png"))
	waitAll(t, Load("a.png"))

	RegisterExternal("b.png", nil, true)
	assert.True(t, IsFailed("b.png"))
	assert.Equal(t, 1, ClearFailed())

	_, ok := GetElement("a.png")
	assert.True(t, ok)
}
