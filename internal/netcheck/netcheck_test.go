// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package netcheck

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func statusServer(t *testing.T, code int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(code)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPChecker_Online(t *testing.T) {
	srv := statusServer(t, http.StatusNoContent)
	c := NewHTTPChecker(Config{URLs: []string{srv.URL}, SlowThreshold: time.Minute})

	res := c.Check(context.Background())
	assert.Equal(t, StatusOnline, res.Status)
	require.NotNil(t, res.LatencyMs)
	assert.GreaterOrEqual(t, *res.LatencyMs, int64(0))
	assert.True(t, res.Online())
}

func TestHTTPChecker_Slow(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	c := NewHTTPChecker(Config{URLs: []string{srv.URL}, SlowThreshold: time.Nanosecond})

	res := c.Check(context.Background())
	assert.Equal(t, StatusSlow, res.Status)
	assert.Contains(t, res.Message, "high latency")
	assert.False(t, res.Online())
}

func TestHTTPChecker_FallsBackToNextURL(t *testing.T) {
	bad := statusServer(t, http.StatusBadGateway)
	good := statusServer(t, http.StatusNotFound) // reachable, just not a page
	c := NewHTTPChecker(Config{URLs: []string{bad.URL, good.URL}, SlowThreshold: time.Minute})

	assert.Equal(t, StatusOnline, c.Check(context.Background()).Status)
}

func TestHTTPChecker_Offline(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	addr := srv.URL
	srv.Close()

	c := NewHTTPChecker(Config{URLs: []string{addr, "http://[::1]:namedport"}, Timeout: time.Second})
	res := c.Check(context.Background())

	assert.Equal(t, StatusOffline, res.Status)
	assert.Nil(t, res.LatencyMs)
	assert.Equal(t, int64(-1), res.Latency())
	assert.Contains(t, res.Message, "no probe endpoint reachable")
}

func TestHTTPChecker_CancelledContext(t *testing.T) {
	srv := statusServer(t, http.StatusOK)
	c := NewHTTPChecker(Config{URLs: []string{srv.URL, srv.URL}})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, StatusOffline, c.Check(ctx).Status)
}

func TestCheckerFunc(t *testing.T) {
	var c Checker = CheckerFunc(func(context.Context) Result { return Offline("down") })
	res := c.Check(context.Background())
	assert.Equal(t, StatusOffline, res.Status)
	assert.Equal(t, "down", res.Message)
}
