// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package state holds the host application state that startup, recovery and
// backend events write into, and the UI reads.
package state

import (
	"maps"
	"slices"
	"time"
)

// RecoveryPhase is the step the recovery routine is in.
type RecoveryPhase string

const (
	RecoveryIdle          RecoveryPhase = "idle"
	RecoveryChecking      RecoveryPhase = "checking"
	RecoveryLoadingRepos  RecoveryPhase = "loading_repos"
	RecoveryLoadingImages RecoveryPhase = "loading_images"
	RecoveryComplete      RecoveryPhase = "complete"
)

// RecoveryState is what the UI shows while recovery runs.
type RecoveryState struct {
	Phase   RecoveryPhase `json:"phase"`
	Current int           `json:"current"`
	Total   int           `json:"total"`
	Message string        `json:"message,omitempty"`
}

// NetworkState is the post-hysteresis connectivity view.
type NetworkState struct {
	Status    string    `json:"status"`
	LatencyMs *int64    `json:"latency_ms,omitempty"`
	Message   string    `json:"message,omitempty"`
	Outage    bool      `json:"outage"`
	CheckedAt time.Time `json:"checked_at"`
}

// Repository is a configured game source.
type Repository struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Game is one catalogue entry with its displayable assets.
type Game struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Repository     string `json:"repository,omitempty"`
	Background     string `json:"background,omitempty"`
	LiveBackground string `json:"live_background,omitempty"`
	Icon           string `json:"icon,omitempty"`
}

// InstalledItem is a locally installed game.
type InstalledItem struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Path           string `json:"path,omitempty"`
	Runner         string `json:"runner,omitempty"`
	Version        string `json:"version,omitempty"`
	Background     string `json:"background,omitempty"`
	LiveBackground string `json:"live_background,omitempty"`
	Icon           string `json:"icon,omitempty"`
}

// Runner is a compatibility runner available on the host.
type Runner struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// ToolStatus reports a platform helper tool.
type ToolStatus struct {
	Name      string `json:"name"`
	Installed bool   `json:"installed"`
	Version   string `json:"version,omitempty"`
}

// Job is a running or finished backend task (download, install, ...).
type Job struct {
	ID        string    `json:"id"`
	Kind      string    `json:"kind"`
	GameID    string    `json:"game_id,omitempty"`
	Status    string    `json:"status"`
	Progress  float64   `json:"progress"`
	Message   string    `json:"message,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Job statuses.
const (
	JobQueued    = "queued"
	JobRunning   = "running"
	JobCompleted = "completed"
	JobFailed    = "failed"
)

// State is the full host state. Values returned by Store are copies.
type State struct {
	Progress    int    `json:"progress"`
	Message     string `json:"message"`
	Phase       string `json:"phase"`
	Finalized   bool   `json:"finalized"`
	LimitedMode bool   `json:"limited_mode"`

	Network  NetworkState  `json:"network"`
	Recovery RecoveryState `json:"recovery"`

	Settings       map[string]any    `json:"settings,omitempty"`
	Repositories   []Repository      `json:"repositories,omitempty"`
	MetadataLoaded bool              `json:"metadata_loaded"`
	Games          []Game            `json:"games,omitempty"`
	Installed      []InstalledItem   `json:"installed,omitempty"`
	Compat         map[string]string `json:"compat,omitempty"`
	Runners        []Runner          `json:"runners,omitempty"`
	Tools          []ToolStatus      `json:"tools,omitempty"`
	Jobs           map[string]Job    `json:"jobs,omitempty"`
}

// Clone returns a copy that shares no mutable containers with s.
func (s State) Clone() State {
	out := s
	if s.Network.LatencyMs != nil {
		v := *s.Network.LatencyMs
		out.Network.LatencyMs = &v
	}
	out.Settings = maps.Clone(s.Settings)
	out.Repositories = slices.Clone(s.Repositories)
	out.Games = slices.Clone(s.Games)
	out.Installed = slices.Clone(s.Installed)
	out.Compat = maps.Clone(s.Compat)
	out.Runners = slices.Clone(s.Runners)
	out.Tools = slices.Clone(s.Tools)
	out.Jobs = maps.Clone(s.Jobs)
	return out
}

// HasMetadata reports whether the game catalogue has arrived.
func (s State) HasMetadata() bool {
	return s.MetadataLoaded || len(s.Games) > 0
}
