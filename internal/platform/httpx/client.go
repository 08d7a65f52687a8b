// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package httpx builds the outbound HTTP clients used for probes, asset
// fetches and backend calls.
package httpx

import (
	"net"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultClientTimeout         = 5 * time.Second
	defaultDialTimeout           = 3 * time.Second
	defaultResponseHeaderTimeout = 3 * time.Second
	defaultIdleConnTimeout       = 30 * time.Second
	defaultExpectContinueTimeout = 1 * time.Second
	defaultMaxIdleConns          = 16
	defaultMaxIdleConnsPerHost   = 4
)

// DefaultUserAgent is sent when a client is built without an explicit agent.
const DefaultUserAgent = "launchpad"

type options struct {
	userAgent         string
	maxIdleConns      int
	maxIdlePerHost    int
	disableKeepAlives bool
	tracing           bool
	name              string
}

// Option tunes a client built by NewClient.
type Option func(*options)

// WithUserAgent sets the User-Agent header on every request.
func WithUserAgent(ua string) Option { return func(o *options) { o.userAgent = ua } }

// WithPool sizes the idle connection pool (asset fetches want more than probes).
func WithPool(total, perHost int) Option {
	return func(o *options) {
		o.maxIdleConns = total
		o.maxIdlePerHost = perHost
	}
}

// WithoutKeepAlives forces a fresh connection per request. Connectivity probes
// use it so a pooled connection cannot mask a dead network.
func WithoutKeepAlives() Option { return func(o *options) { o.disableKeepAlives = true } }

// WithTracing wraps the transport with otelhttp under the given operation name.
func WithTracing(name string) Option {
	return func(o *options) {
		o.tracing = true
		o.name = name
	}
}

// NewClient returns a hardened HTTP client. The response header and dial
// timeouts never exceed the overall timeout.
func NewClient(timeout time.Duration, opts ...Option) *http.Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	o := options{
		userAgent:      DefaultUserAgent,
		maxIdleConns:   defaultMaxIdleConns,
		maxIdlePerHost: defaultMaxIdleConnsPerHost,
	}
	for _, opt := range opts {
		opt(&o)
	}

	dialTimeout := min(timeout, defaultDialTimeout)
	responseHeaderTimeout := min(timeout, defaultResponseHeaderTimeout)

	var rt http.RoundTripper = &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: dialTimeout, KeepAlive: 30 * time.Second}).DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          o.maxIdleConns,
		MaxIdleConnsPerHost:   o.maxIdlePerHost,
		IdleConnTimeout:       defaultIdleConnTimeout,
		TLSHandshakeTimeout:   dialTimeout,
		ResponseHeaderTimeout: responseHeaderTimeout,
		ExpectContinueTimeout: defaultExpectContinueTimeout,
		DisableKeepAlives:     o.disableKeepAlives,
	}
	if o.tracing {
		rt = otelhttp.NewTransport(rt, otelhttp.WithSpanNameFormatter(func(op string, r *http.Request) string {
			return o.name + " " + r.Method
		}))
	}
	if o.userAgent != "" {
		rt = &userAgentTransport{next: rt, ua: o.userAgent}
	}

	return &http.Client{Timeout: timeout, Transport: rt}
}

type userAgentTransport struct {
	next http.RoundTripper
	ua   string
}

func (t *userAgentTransport) RoundTrip(r *http.Request) (*http.Response, error) {
	if r.Header.Get("User-Agent") == "" {
		r = r.Clone(r.Context())
		r.Header.Set("User-Agent", t.ua)
	}
	return t.next.RoundTrip(r)
}
