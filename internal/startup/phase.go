// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package startup

// Phase is the orchestrator's current step.
type Phase string

const (
	PhaseIdle                Phase = "idle"
	PhaseCheckingNetwork     Phase = "checking-network"
	PhaseLoadingSettings     Phase = "loading-settings"
	PhaseLoadingRepositories Phase = "loading-repositories"
	PhaseAwaitingMetadata    Phase = "awaiting-metadata"
	PhasePreloadingAssets    Phase = "preloading-assets"
	PhaseFinalizing          Phase = "finalizing"
	PhaseSubscribed          Phase = "subscribed"
	PhaseCancelled           Phase = "cancelled"
)

// band is the progress range a phase covers.
type band struct {
	start, end int
	message    string
}

var bands = map[Phase]band{
	PhaseCheckingNetwork:     {0, 10, "Checking network connection..."},
	PhaseLoadingSettings:     {10, 25, "Loading settings..."},
	PhaseLoadingRepositories: {25, 50, "Loading repositories..."},
	PhaseAwaitingMetadata:    {50, 75, "Waiting for game metadata..."},
	PhasePreloadingAssets:    {75, 100, "Loading images..."},
	PhaseFinalizing:          {100, 100, "Ready"},
}

// preloadPercent maps a preload tick into the preload band.
func preloadPercent(done, total int) int {
	b := bands[PhasePreloadingAssets]
	if total <= 0 {
		return b.end
	}
	if done > total {
		done = total
	}
	return b.start + (b.end-b.start)*done/total
}
