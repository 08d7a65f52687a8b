// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package events defines the live update events the backend pushes and how
// they fold into host state.
package events

import (
	"context"
	"encoding/json"
)

// Type names one backend event.
type Type string

const (
	DownloadProgress Type = "download-progress"
	DownloadComplete Type = "download-complete"
	InstallProgress  Type = "install-progress"
	InstallComplete  Type = "install-complete"
	UpdateProgress   Type = "update-progress"
	UpdateComplete   Type = "update-complete"
	RepairProgress   Type = "repair-progress"
	RepairComplete   Type = "repair-complete"
	PreloadProgress  Type = "preload-progress"
	PreloadComplete  Type = "preload-complete"
	MoveProgress     Type = "move-progress"
	MoveComplete     Type = "move-complete"
	ExtractProgress  Type = "extract-progress"
	ExtractComplete  Type = "extract-complete"
	JobFailed        Type = "job-failed"
	QueueChanged     Type = "queue-changed"
	GameUpdated      Type = "game-updated"
)

// AllTypes is every type the host subscribes to after startup.
var AllTypes = []Type{
	DownloadProgress, DownloadComplete,
	InstallProgress, InstallComplete,
	UpdateProgress, UpdateComplete,
	RepairProgress, RepairComplete,
	PreloadProgress, PreloadComplete,
	MoveProgress, MoveComplete,
	ExtractProgress, ExtractComplete,
	JobFailed, QueueChanged, GameUpdated,
}

// Known reports whether t is in the catalogue.
func Known(t Type) bool {
	for _, k := range AllTypes {
		if k == t {
			return true
		}
	}
	return false
}

// Event is one frame from the backend.
type Event struct {
	Type    Type            `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JobPayload is the payload shape of progress, complete and failed events.
type JobPayload struct {
	JobID    string  `json:"job_id"`
	GameID   string  `json:"game_id,omitempty"`
	Progress float64 `json:"progress"`
	Message  string  `json:"message,omitempty"`
	Error    string  `json:"error,omitempty"`
}

// QueuePayload carries the full job list after a queue change.
type QueuePayload struct {
	Jobs []QueuedJob `json:"jobs"`
}

// QueuedJob is one queue entry.
type QueuedJob struct {
	JobID  string `json:"job_id"`
	Kind   string `json:"kind"`
	GameID string `json:"game_id,omitempty"`
	Status string `json:"status"`
}

// GamePayload is a refreshed catalogue entry.
type GamePayload struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Repository     string `json:"repository,omitempty"`
	Background     string `json:"background,omitempty"`
	LiveBackground string `json:"live_background,omitempty"`
	Icon           string `json:"icon,omitempty"`
}

// Source delivers events of the requested types. The returned function
// releases the subscription; the channel is closed when the subscription ends.
type Source interface {
	Subscribe(ctx context.Context, types []Type) (<-chan Event, func(), error)
}
