// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package events

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/launchpad/internal/state"
)

// Reducer maps an event to a state patch. A nil patch means "ignore".
type Reducer interface {
	Reduce(ev Event) (state.Patch, error)
}

// ReducerFunc adapts a function to Reducer.
type ReducerFunc func(ev Event) (state.Patch, error)

func (f ReducerFunc) Reduce(ev Event) (state.Patch, error) { return f(ev) }

// DefaultReducer folds job events into State.Jobs and game updates into
// State.Games.
type DefaultReducer struct {
	Now func() time.Time
}

func (r DefaultReducer) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

// jobKind derives the job kind from an event type: "install-progress" -> "install".
func jobKind(t Type) string {
	s := string(t)
	if i := strings.LastIndexByte(s, '-'); i > 0 {
		return s[:i]
	}
	return s
}

func (r DefaultReducer) Reduce(ev Event) (state.Patch, error) {
	switch ev.Type {
	case QueueChanged:
		var p QueuePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		return r.queuePatch(p), nil

	case GameUpdated:
		var p GamePayload
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
		}
		if p.ID == "" {
			return nil, fmt.Errorf("decode %s: missing id", ev.Type)
		}
		return gamePatch(p), nil
	}

	if !Known(ev.Type) {
		return nil, nil
	}

	var p JobPayload
	if err := json.Unmarshal(ev.Payload, &p); err != nil {
		return nil, fmt.Errorf("decode %s: %w", ev.Type, err)
	}
	if p.JobID == "" {
		return nil, fmt.Errorf("decode %s: missing job_id", ev.Type)
	}

	now := r.now()
	kind := jobKind(ev.Type)
	evType := ev.Type
	return state.Func(func(prev state.State) state.State {
		if prev.Jobs == nil {
			prev.Jobs = make(map[string]state.Job)
		}
		job := prev.Jobs[p.JobID]
		job.ID = p.JobID
		if evType != JobFailed {
			job.Kind = kind
		}
		if p.GameID != "" {
			job.GameID = p.GameID
		}
		job.Message = p.Message
		job.UpdatedAt = now

		switch {
		case evType == JobFailed:
			job.Status = state.JobFailed
			if p.Error != "" {
				job.Message = p.Error
			}
		case strings.HasSuffix(string(evType), "-complete"):
			job.Status = state.JobCompleted
			job.Progress = 100
		default:
			job.Status = state.JobRunning
			// Progress never goes backwards within one job.
			if p.Progress > job.Progress {
				job.Progress = p.Progress
			}
		}
		prev.Jobs[p.JobID] = job
		return prev
	}), nil
}

func (r DefaultReducer) queuePatch(p QueuePayload) state.Patch {
	now := r.now()
	return state.Func(func(prev state.State) state.State {
		next := make(map[string]state.Job, len(p.Jobs))
		for _, q := range p.Jobs {
			job, ok := prev.Jobs[q.JobID]
			if !ok {
				job = state.Job{ID: q.JobID}
			}
			job.Kind = q.Kind
			job.GameID = q.GameID
			job.Status = q.Status
			job.UpdatedAt = now
			next[q.JobID] = job
		}
		// Finished jobs stay visible even when they leave the queue.
		for id, job := range prev.Jobs {
			if _, ok := next[id]; ok {
				continue
			}
			if job.Status == state.JobCompleted || job.Status == state.JobFailed {
				next[id] = job
			}
		}
		prev.Jobs = next
		return prev
	})
}

func gamePatch(p GamePayload) state.Patch {
	g := state.Game{
		ID:             p.ID,
		Name:           p.Name,
		Repository:     p.Repository,
		Background:     p.Background,
		LiveBackground: p.LiveBackground,
		Icon:           p.Icon,
	}
	return state.Func(func(prev state.State) state.State {
		for i := range prev.Games {
			if prev.Games[i].ID == g.ID {
				prev.Games[i] = g
				return prev
			}
		}
		prev.Games = append(prev.Games, g)
		return prev
	})
}
