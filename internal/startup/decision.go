// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package startup

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ManuGH/launchpad/internal/netcheck"
)

// Decider is asked what to do when the network is not online during
// startup: true continues in limited mode, false retries the check.
type Decider interface {
	Decide(ctx context.Context, res netcheck.Result) (limited bool, err error)
}

// DeciderFunc adapts a function to Decider.
type DeciderFunc func(ctx context.Context, res netcheck.Result) (bool, error)

func (f DeciderFunc) Decide(ctx context.Context, res netcheck.Result) (bool, error) {
	return f(ctx, res)
}

// Decision policies.
const (
	PolicyPrompt  = "prompt"
	PolicyLimited = "limited"
	PolicyRetry   = "retry"
)

// NewDecider returns the decider for policy. The prompt policy needs a gate.
func NewDecider(policy string, gate *DecisionGate) (Decider, error) {
	switch policy {
	case PolicyLimited:
		return DeciderFunc(func(context.Context, netcheck.Result) (bool, error) { return true, nil }), nil
	case PolicyRetry:
		return DeciderFunc(func(context.Context, netcheck.Result) (bool, error) { return false, nil }), nil
	case PolicyPrompt, "":
		if gate == nil {
			return nil, errors.New("prompt decision policy requires a decision gate")
		}
		return gate, nil
	default:
		return nil, fmt.Errorf("unknown decision policy %q", policy)
	}
}

// ErrNoPendingDecision is returned by Resolve when nobody is waiting.
var ErrNoPendingDecision = errors.New("no startup decision pending")

// DecisionGate parks the orchestrator until the UI answers.
type DecisionGate struct {
	mu      sync.Mutex
	pending chan bool
	result  netcheck.Result
}

func NewDecisionGate() *DecisionGate { return &DecisionGate{} }

// Decide blocks until Resolve is called or ctx is done.
func (g *DecisionGate) Decide(ctx context.Context, res netcheck.Result) (bool, error) {
	ch := make(chan bool, 1)
	g.mu.Lock()
	g.pending = ch
	g.result = res
	g.mu.Unlock()

	defer func() {
		g.mu.Lock()
		if g.pending == ch {
			g.pending = nil
		}
		g.mu.Unlock()
	}()

	select {
	case limited := <-ch:
		return limited, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve answers the pending question.
func (g *DecisionGate) Resolve(limited bool) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return ErrNoPendingDecision
	}
	g.pending <- limited
	g.pending = nil
	return nil
}

// Pending returns the probe result being asked about, if any.
func (g *DecisionGate) Pending() (netcheck.Result, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.pending == nil {
		return netcheck.Result{}, false
	}
	return g.result, true
}
