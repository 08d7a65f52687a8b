// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ManuGH/launchpad/internal/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func ev(t *testing.T, typ Type, payload any) Event {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return Event{Type: typ, Payload: raw}
}

func reduceInto(t *testing.T, s *state.Store, e Event) {
	t.Helper()
	p, err := DefaultReducer{Now: func() time.Time { return fixedNow }}.Reduce(e)
	require.NoError(t, err)
	require.NotNil(t, p)
	s.Apply(p)
}

func TestAllTypesAreUnique(t *testing.T) {
	seen := map[Type]bool{}
	for _, typ := range AllTypes {
		assert.False(t, seen[typ], typ)
		seen[typ] = true
		assert.True(t, Known(typ))
	}
	assert.False(t, Known("bogus"))
}

func TestDefaultReducer_JobLifecycle(t *testing.T) {
	s := state.NewStore(state.State{})

	reduceInto(t, s, ev(t, InstallProgress, JobPayload{JobID: "j1", GameID: "g1", Progress: 40}))
	job := s.Snapshot().Jobs["j1"]
	assert.Equal(t, "install", job.Kind)
	assert.Equal(t, state.JobRunning, job.Status)
	assert.Equal(t, 40.0, job.Progress)
	assert.Equal(t, "g1", job.GameID)
	assert.Equal(t, fixedNow, job.UpdatedAt)

	// Stale progress does not rewind.
	reduceInto(t, s, ev(t, InstallProgress, JobPayload{JobID: "j1", Progress: 30}))
	assert.Equal(t, 40.0, s.Snapshot().Jobs["j1"].Progress)

	reduceInto(t, s, ev(t, InstallComplete, JobPayload{JobID: "j1"}))
	job = s.Snapshot().Jobs["j1"]
	assert.Equal(t, state.JobCompleted, job.Status)
	assert.Equal(t, 100.0, job.Progress)
	assert.Equal(t, "g1", job.GameID)
}

func TestDefaultReducer_JobFailed(t *testing.T) {
	s := state.NewStore(state.State{})
	reduceInto(t, s, ev(t, DownloadProgress, JobPayload{JobID: "d", Progress: 10}))
	reduceInto(t, s, ev(t, JobFailed, JobPayload{JobID: "d", Error: "disk full"}))

	job := s.Snapshot().Jobs["d"]
	assert.Equal(t, state.JobFailed, job.Status)
	assert.Equal(t, "download", job.Kind)
	assert.Equal(t, "disk full", job.Message)
}

func TestDefaultReducer_QueueChangedKeepsFinished(t *testing.T) {
	s := state.NewStore(state.State{Jobs: map[string]state.Job{
		"done":  {ID: "done", Status: state.JobCompleted},
		"stale": {ID: "stale", Status: state.JobQueued},
		"run":   {ID: "run", Status: state.JobRunning, Progress: 55},
	}})

	reduceInto(t, s, ev(t, QueueChanged, QueuePayload{Jobs: []QueuedJob{
		{JobID: "run", Kind: "download", Status: state.JobRunning},
		{JobID: "new", Kind: "install", Status: state.JobQueued},
	}}))

	jobs := s.Snapshot().Jobs
	assert.Len(t, jobs, 3)
	assert.Contains(t, jobs, "done")
	assert.NotContains(t, jobs, "stale")
	assert.Equal(t, 55.0, jobs["run"].Progress)
	assert.Equal(t, state.JobQueued, jobs["new"].Status)
}

func TestDefaultReducer_GameUpdated(t *testing.T) {
	s := state.NewStore(state.State{Games: []state.Game{{ID: "g1", Name: "Old"}}})

	reduceInto(t, s, ev(t, GameUpdated, GamePayload{ID: "g1", Name: "New", Icon: "i.png"}))
	reduceInto(t, s, ev(t, GameUpdated, GamePayload{ID: "g2", Name: "Two"}))

	games := s.Snapshot().Games
	require.Len(t, games, 2)
	assert.Equal(t, "New", games[0].Name)
	assert.Equal(t, "i.png", games[0].Icon)
	assert.Equal(t, "g2", games[1].ID)
}

func TestDefaultReducer_Errors(t *testing.T) {
	r := DefaultReducer{}

	_, err := r.Reduce(Event{Type: InstallProgress, Payload: json.RawMessage(`{`)})
	assert.Error(t, err)

	_, err = r.Reduce(Event{Type: InstallProgress, Payload: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "job_id")

	_, err = r.Reduce(Event{Type: GameUpdated, Payload: json.RawMessage(`{}`)})
	assert.ErrorContains(t, err, "missing id")

	p, err := r.Reduce(Event{Type: "unknown-thing"})
	assert.NoError(t, err)
	assert.Nil(t, p)
}

func TestConsume_AppliesUntilClosed(t *testing.T) {
	s := state.NewStore(state.State{})
	ch := make(chan Event, 4)
	ch <- ev(t, MoveProgress, JobPayload{JobID: "m", Progress: 5})
	ch <- Event{Type: MoveProgress, Payload: json.RawMessage(`garbage`)}
	ch <- Event{Type: "ignored"}
	ch <- ev(t, MoveComplete, JobPayload{JobID: "m"})
	close(ch)

	var applied int
	Consume(context.Background(), ch, DefaultReducer{}, func(p state.Patch) {
		applied++
		s.Apply(p)
	})

	assert.Equal(t, 2, applied)
	assert.Equal(t, state.JobCompleted, s.Snapshot().Jobs["m"].Status)
}

func TestConsume_StopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan Event)
	done := make(chan struct{})
	go func() {
		Consume(ctx, ch, DefaultReducer{}, func(state.Patch) {})
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consume did not stop")
	}
}
