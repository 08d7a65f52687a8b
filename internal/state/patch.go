// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package state

// Patch transforms the state. It is either a literal partial update (Fields)
// or a function of the previous state (Func).
type Patch interface {
	apply(State) State
}

// Func derives the next state from the previous one. The argument is a copy
// owned by the function.
type Func func(prev State) State

func (f Func) apply(prev State) State { return f(prev) }

// Fields is a literal partial update; nil fields are left unchanged.
type Fields struct {
	Progress    *int
	Message     *string
	Phase       *string
	Finalized   *bool
	LimitedMode *bool

	Network  *NetworkState
	Recovery *RecoveryState

	Settings       map[string]any
	Repositories   []Repository
	MetadataLoaded *bool
	Games          []Game
	Installed      []InstalledItem
	Compat         map[string]string
	Runners        []Runner
	Tools          []ToolStatus
	Jobs           map[string]Job
}

func (f Fields) apply(s State) State {
	if f.Progress != nil {
		s.Progress = *f.Progress
	}
	if f.Message != nil {
		s.Message = *f.Message
	}
	if f.Phase != nil {
		s.Phase = *f.Phase
	}
	if f.Finalized != nil {
		s.Finalized = *f.Finalized
	}
	if f.LimitedMode != nil {
		s.LimitedMode = *f.LimitedMode
	}
	if f.Network != nil {
		s.Network = *f.Network
	}
	if f.Recovery != nil {
		s.Recovery = *f.Recovery
	}
	if f.Settings != nil {
		s.Settings = f.Settings
	}
	if f.Repositories != nil {
		s.Repositories = f.Repositories
	}
	if f.MetadataLoaded != nil {
		s.MetadataLoaded = *f.MetadataLoaded
	}
	if f.Games != nil {
		s.Games = f.Games
	}
	if f.Installed != nil {
		s.Installed = f.Installed
	}
	if f.Compat != nil {
		s.Compat = f.Compat
	}
	if f.Runners != nil {
		s.Runners = f.Runners
	}
	if f.Tools != nil {
		s.Tools = f.Tools
	}
	if f.Jobs != nil {
		s.Jobs = f.Jobs
	}
	return s
}

// Ptr returns a pointer to v, for building Fields literals.
func Ptr[T any](v T) *T { return &v }
