package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseTransport(t *testing.T, c *http.Client) *http.Transport {
	t.Helper()
	rt := c.Transport
	if ua, ok := rt.(*userAgentTransport); ok {
		rt = ua.next
	}
	tr, ok := rt.(*http.Transport)
	require.True(t, ok, "expected *http.Transport, got %T", rt)
	return tr
}

func TestNewClient_ClampsTimeouts(t *testing.T) {
	c := NewClient(1 * time.Second)
	assert.Equal(t, 1*time.Second, c.Timeout)

	tr := baseTransport(t, c)
	assert.Equal(t, 1*time.Second, tr.ResponseHeaderTimeout)
	assert.Equal(t, 1*time.Second, tr.TLSHandshakeTimeout)

	c = NewClient(30 * time.Second)
	tr = baseTransport(t, c)
	assert.Equal(t, defaultResponseHeaderTimeout, tr.ResponseHeaderTimeout)
}

func TestNewClient_DefaultTimeout(t *testing.T) {
	assert.Equal(t, defaultClientTimeout, NewClient(0).Timeout)
}

func TestNewClient_Options(t *testing.T) {
	c := NewClient(time.Second, WithPool(64, 16), WithoutKeepAlives())
	tr := baseTransport(t, c)
	assert.Equal(t, 64, tr.MaxIdleConns)
	assert.Equal(t, 16, tr.MaxIdleConnsPerHost)
	assert.True(t, tr.DisableKeepAlives)
}

func TestNewClient_SetsUserAgent(t *testing.T) {
	var got string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("User-Agent")
	}))
	defer srv.Close()

	c := NewClient(time.Second, WithUserAgent("launchpad-test/1.0"), WithTracing("probe"))
	resp, err := c.Get(srv.URL)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "launchpad-test/1.0", got)
}
