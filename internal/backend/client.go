// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package backend talks to the native backend process: JSON over HTTP for
// snapshots and a websocket for live events.
package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ManuGH/launchpad/internal/platform/httpx"
	"github.com/ManuGH/launchpad/internal/state"
)

// ErrStatus is returned when the backend answers with a non-2xx status.
var ErrStatus = errors.New("backend returned unexpected status")

// Endpoint paths.
const (
	PathSettings     = "/api/settings"
	PathRepositories = "/api/repositories"
	PathInstalls     = "/api/installs"
	PathCompat       = "/api/compat"
	PathRunners      = "/api/runners"
	PathTools        = "/api/tools/status"
	PathJobs         = "/api/jobs"
	PathEvents       = "/api/events"
)

const maxResponseBytes = 16 << 20

// RepositoriesResponse is the body of GET /api/repositories.
type RepositoriesResponse struct {
	Repositories []state.Repository `json:"repositories"`
	Games        []state.Game       `json:"games"`
}

// Client is a thin JSON client for the backend.
type Client struct {
	base *url.URL
	http *http.Client
}

// NewClient validates baseURL. A nil httpClient gets a traced default.
func NewClient(baseURL string, httpClient *http.Client) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse backend url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("backend url must be http(s), got %q", baseURL)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("backend url %q has no host", baseURL)
	}
	if httpClient == nil {
		httpClient = httpx.NewClient(15*time.Second, httpx.WithTracing("backend"))
	}
	return &Client{base: u, http: httpClient}, nil
}

// BaseURL returns the normalized backend URL.
func (c *Client) BaseURL() string { return c.base.String() }

func (c *Client) endpoint(path string) string {
	u := *c.base
	u.Path = strings.TrimRight(u.Path, "/") + path
	return u.String()
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(path), nil)
	if err != nil {
		return fmt.Errorf("build request %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("GET %s: %w: %d %s", path, ErrStatus, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func (c *Client) Settings(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	if err := c.getJSON(ctx, PathSettings, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Repositories(ctx context.Context) (*RepositoriesResponse, error) {
	var out RepositoriesResponse
	if err := c.getJSON(ctx, PathRepositories, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) Installs(ctx context.Context) ([]state.InstalledItem, error) {
	var out []state.InstalledItem
	if err := c.getJSON(ctx, PathInstalls, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Compat(ctx context.Context) (map[string]string, error) {
	var out map[string]string
	if err := c.getJSON(ctx, PathCompat, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Runners(ctx context.Context) ([]state.Runner, error) {
	var out []state.Runner
	if err := c.getJSON(ctx, PathRunners, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Tools(ctx context.Context) ([]state.ToolStatus, error) {
	var out []state.ToolStatus
	if err := c.getJSON(ctx, PathTools, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Jobs(ctx context.Context) ([]state.Job, error) {
	var out []state.Job
	if err := c.getJSON(ctx, PathJobs, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Ping checks the backend answers at all (any status).
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint(PathSettings), nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	_ = resp.Body.Close()
	return nil
}
