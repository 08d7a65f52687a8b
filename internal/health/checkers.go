// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"time"

	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/state"
)

// ConnectivityChecker reports the network monitor's view. Being offline
// degrades the daemon but never makes it unready: limited mode is a valid
// operating state.
type ConnectivityChecker struct {
	status func() netcheck.Result
	outage func() bool
}

// NewConnectivityChecker reads the post-hysteresis status and outage flag.
func NewConnectivityChecker(status func() netcheck.Result, outage func() bool) *ConnectivityChecker {
	return &ConnectivityChecker{status: status, outage: outage}
}

func (c *ConnectivityChecker) Name() string { return "connectivity" }

func (c *ConnectivityChecker) Check(context.Context) CheckResult {
	res := c.status()
	if c.outage != nil && c.outage() {
		return CheckResult{Status: StatusDegraded, Message: "outage declared", Error: res.Message}
	}
	switch res.Status {
	case netcheck.StatusOnline:
		return CheckResult{Status: StatusHealthy, Message: "online"}
	case netcheck.StatusSlow:
		return CheckResult{Status: StatusDegraded, Message: "slow connection"}
	default:
		return CheckResult{Status: StatusDegraded, Message: string(res.Status), Error: res.Message}
	}
}

// StartupChecker gates readiness on the startup run having finalized.
type StartupChecker struct {
	snapshot func() state.State
}

// NewStartupChecker reads host state through snapshot.
func NewStartupChecker(snapshot func() state.State) *StartupChecker {
	return &StartupChecker{snapshot: snapshot}
}

func (c *StartupChecker) Name() string { return "startup" }

func (c *StartupChecker) Check(context.Context) CheckResult {
	st := c.snapshot()
	switch {
	case !st.Finalized:
		return CheckResult{Status: StatusUnhealthy, Message: "startup in progress: " + st.Phase}
	case st.LimitedMode:
		return CheckResult{Status: StatusDegraded, Message: "running in limited mode"}
	default:
		return CheckResult{Status: StatusHealthy, Message: "ready"}
	}
}

// Pinger is satisfied by asset stores.
type Pinger interface {
	Ping(ctx context.Context) error
}

// StoreChecker pings the persistent asset store. The store only warms the
// cache, so a failure degrades rather than fails readiness.
type StoreChecker struct {
	name    string
	store   Pinger
	timeout time.Duration
}

// NewStoreChecker creates a checker for store; a nil store reports
// "not configured".
func NewStoreChecker(name string, store Pinger) *StoreChecker {
	return &StoreChecker{name: name, store: store, timeout: 2 * time.Second}
}

func (c *StoreChecker) Name() string { return "asset_store" }

func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if c.store == nil {
		return CheckResult{Status: StatusHealthy, Message: "not configured (optional)"}
	}
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	if err := c.store.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Message: c.name, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy, Message: c.name}
}
