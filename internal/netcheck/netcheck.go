// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package netcheck probes internet connectivity.
package netcheck

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ManuGH/launchpad/internal/metrics"
	"github.com/ManuGH/launchpad/internal/platform/httpx"
)

// Status is the coarse connectivity classification.
type Status string

const (
	StatusOnline  Status = "online"
	StatusSlow    Status = "slow"
	StatusOffline Status = "offline"
)

// Result is one probe outcome. LatencyMs is nil when nothing answered.
type Result struct {
	Status    Status `json:"status"`
	LatencyMs *int64 `json:"latency_ms,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Online reports whether the result allows normal operation.
func (r Result) Online() bool { return r.Status == StatusOnline }

// Latency returns the measured latency in milliseconds or -1.
func (r Result) Latency() int64 {
	if r.LatencyMs == nil {
		return -1
	}
	return *r.LatencyMs
}

// Offline builds an offline result with msg.
func Offline(msg string) Result {
	return Result{Status: StatusOffline, Message: msg}
}

// Checker answers "is the network usable right now". Implementations must be
// cheap and safe to call repeatedly; failures are folded into StatusOffline.
type Checker interface {
	Check(ctx context.Context) Result
}

// CheckerFunc adapts a function to Checker.
type CheckerFunc func(ctx context.Context) Result

func (f CheckerFunc) Check(ctx context.Context) Result { return f(ctx) }

// Config configures HTTPChecker.
type Config struct {
	// URLs are tried in order; the first answer wins.
	URLs          []string
	Timeout       time.Duration
	SlowThreshold time.Duration
}

// DefaultProbeURLs are lightweight endpoints that answer without a body.
var DefaultProbeURLs = []string{
	"https://www.google.com/generate_204",
	"https://cloudflare.com/cdn-cgi/trace",
}

// HTTPChecker probes a list of URLs over HTTP.
type HTTPChecker struct {
	urls   []string
	slow   time.Duration
	client *http.Client
	now    func() time.Time
}

// NewHTTPChecker creates a checker. Keep-alives are disabled so every probe
// measures a fresh connection.
func NewHTTPChecker(cfg Config) *HTTPChecker {
	if len(cfg.URLs) == 0 {
		cfg.URLs = DefaultProbeURLs
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.SlowThreshold <= 0 {
		cfg.SlowThreshold = 1500 * time.Millisecond
	}
	return &HTTPChecker{
		urls:   cfg.URLs,
		slow:   cfg.SlowThreshold,
		client: httpx.NewClient(cfg.Timeout, httpx.WithoutKeepAlives(), httpx.WithTracing("netcheck")),
		now:    time.Now,
	}
}

func (c *HTTPChecker) Check(ctx context.Context) Result {
	var failures []string
	for _, u := range c.urls {
		start := c.now()
		err := c.probe(ctx, u)
		elapsed := c.now().Sub(start)
		if err != nil {
			failures = append(failures, err.Error())
			if ctx.Err() != nil {
				break
			}
			continue
		}

		ms := elapsed.Milliseconds()
		res := Result{Status: StatusOnline, LatencyMs: &ms}
		if elapsed > c.slow {
			res.Status = StatusSlow
			res.Message = fmt.Sprintf("high latency: %dms", ms)
		}
		metrics.RecordProbe(string(res.Status), elapsed)
		return res
	}

	metrics.RecordProbe(string(StatusOffline), 0)
	return Offline("no probe endpoint reachable: " + strings.Join(failures, "; "))
}

// probe treats any non-5xx answer as reachable.
func (c *HTTPChecker) probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s: status %d", url, resp.StatusCode)
	}
	return nil
}
