// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ManuGH/launchpad/internal/log"
	"github.com/google/renameio/v2"
)

// SnapshotFile is the file name used under the data directory.
const SnapshotFile = "state.json"

const snapshotVersion = 1

// Snapshot is the persisted metadata subset of State. Transient fields
// (progress, network, recovery, jobs) are never persisted.
type Snapshot struct {
	Version      int               `json:"version"`
	SavedAt      time.Time         `json:"saved_at"`
	Settings     map[string]any    `json:"settings,omitempty"`
	Repositories []Repository      `json:"repositories,omitempty"`
	Games        []Game            `json:"games,omitempty"`
	Installed    []InstalledItem   `json:"installed,omitempty"`
	Compat       map[string]string `json:"compat,omitempty"`
	Runners      []Runner          `json:"runners,omitempty"`
	Tools        []ToolStatus      `json:"tools,omitempty"`
}

// SnapshotOf extracts the persisted subset of s.
func SnapshotOf(s State, now time.Time) Snapshot {
	c := s.Clone()
	return Snapshot{
		Version:      snapshotVersion,
		SavedAt:      now.UTC(),
		Settings:     c.Settings,
		Repositories: c.Repositories,
		Games:        c.Games,
		Installed:    c.Installed,
		Compat:       c.Compat,
		Runners:      c.Runners,
		Tools:        c.Tools,
	}
}

// Patch restores the snapshot into a state. MetadataLoaded is only set when
// the snapshot actually carries games.
func (s Snapshot) Patch() Fields {
	f := Fields{
		Settings:     s.Settings,
		Repositories: s.Repositories,
		Games:        s.Games,
		Installed:    s.Installed,
		Compat:       s.Compat,
		Runners:      s.Runners,
		Tools:        s.Tools,
	}
	if len(s.Games) > 0 {
		f.MetadataLoaded = Ptr(true)
	}
	return f
}

// SaveSnapshot writes the metadata subset of st to path atomically.
func SaveSnapshot(path string, st State) error {
	data, err := json.MarshalIndent(SnapshotOf(st, time.Now()), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state snapshot: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o600))
	if err != nil {
		return fmt.Errorf("create pending file: %w", err)
	}
	defer func() {
		if err := pendingFile.Cleanup(); err != nil {
			log.L().Debug().Err(err).Str(log.FieldEvent, "state.snapshot_cleanup").Msg("snapshot cleanup")
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write state snapshot: %w", err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("commit state snapshot: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot written by SaveSnapshot. A missing file
// yields an error satisfying errors.Is(err, fs.ErrNotExist).
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- path comes from configured data dir
	if err != nil {
		return nil, fmt.Errorf("read state snapshot: %w", err)
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode state snapshot: %w", err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("unsupported state snapshot version %d", snap.Version)
	}
	return &snap, nil
}
