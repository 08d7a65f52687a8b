// SPDX-License-Identifier: MIT

// Package daemon wires the launcher host together and owns its lifecycle.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"

	"github.com/ManuGH/launchpad/internal/api"
	"github.com/ManuGH/launchpad/internal/assets"
	"github.com/ManuGH/launchpad/internal/assetstore"
	"github.com/ManuGH/launchpad/internal/backend"
	"github.com/ManuGH/launchpad/internal/config"
	"github.com/ManuGH/launchpad/internal/health"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/netmon"
	"github.com/ManuGH/launchpad/internal/platform/httpx"
	platformnet "github.com/ManuGH/launchpad/internal/platform/net"
	"github.com/ManuGH/launchpad/internal/startup"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/ManuGH/launchpad/internal/telemetry"
	"github.com/rs/zerolog"
)

const serviceName = "launchpad"

// Components is everything Build creates from one AppConfig.
type Components struct {
	Config config.AppConfig

	Provider     *telemetry.Provider
	State        *state.Store
	AssetStore   assetstore.Store
	Assets       *assets.Cache
	Backend      *backend.Service
	Checker      netcheck.Checker
	Gate         *startup.DecisionGate
	Orchestrator *startup.Orchestrator
	Monitor      *netmon.Monitor
	Health       *health.Manager
	API          *api.Server

	logger zerolog.Logger
}

// Option adjusts Build.
type Option func(*buildOptions)

type buildOptions struct {
	checker netcheck.Checker
	fetcher assets.Fetcher
}

// WithChecker replaces the HTTP connectivity checker.
func WithChecker(c netcheck.Checker) Option {
	return func(o *buildOptions) { o.checker = c }
}

// WithFetcher replaces the HTTP asset fetcher. The configured asset store
// still wraps it.
func WithFetcher(f assets.Fetcher) Option {
	return func(o *buildOptions) { o.fetcher = f }
}

// Build creates and wires every component. Nothing is started. On error the
// components created so far are closed.
func Build(ctx context.Context, cfg config.AppConfig, opts ...Option) (_ *Components, err error) {
	var o buildOptions
	for _, opt := range opts {
		opt(&o)
	}

	c := &Components{Config: cfg, logger: log.WithComponent("daemon")}
	defer func() {
		if err != nil {
			_ = c.Close(context.WithoutCancel(ctx))
		}
	}()

	c.Provider, err = telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    serviceName,
		ServiceVersion: cfg.Version,
		Environment:    cfg.Telemetry.Environment,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	c.State = state.NewStore(state.State{})
	c.restoreSnapshot()

	c.AssetStore, err = assetstore.Open(ctx, assetstore.Config{
		Backend:       cfg.Store.Backend,
		Path:          cfg.Store.Path,
		TTL:           cfg.Store.TTL,
		MaxSize:       cfg.Store.MaxSize,
		RedisAddr:     cfg.Store.RedisAddr,
		RedisPassword: cfg.Store.RedisPassword,
		RedisDB:       cfg.Store.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("open asset store: %w", err)
	}

	fetcher := o.fetcher
	if fetcher == nil {
		var guard *platformnet.Guard
		if cfg.Assets.Outbound.Enabled {
			guard, err = platformnet.NewGuard(platformnet.Policy{
				Hosts:        cfg.Assets.Outbound.AllowHosts,
				CIDRs:        cfg.Assets.Outbound.AllowCIDRs,
				AllowPrivate: cfg.Assets.Outbound.AllowPrivate,
			})
			if err != nil {
				return nil, fmt.Errorf("asset outbound policy: %w", err)
			}
		}
		fetcher = assets.NewHTTPFetcher(assets.HTTPFetcherConfig{
			MaxConcurrent: cfg.Assets.MaxConcurrent,
			RatePerSecond: cfg.Assets.RatePerSecond,
			Burst:         cfg.Assets.Burst,
			MaxBytes:      cfg.Assets.MaxBytes,
			Timeout:       cfg.Assets.Timeout,
			UserAgent:     cfg.Assets.UserAgent,
			Guard:         guard,
		}, nil)
	}
	c.Assets = assets.New(assets.NewStoreFetcher(fetcher, c.AssetStore))
	assets.SetDefault(c.Assets)

	client, err := backend.NewClient(cfg.Backend.URL, httpx.NewClient(cfg.Backend.Timeout, httpx.WithTracing("backend")))
	if err != nil {
		return nil, fmt.Errorf("backend client: %w", err)
	}
	c.Backend = backend.NewService(client, c.State)

	c.Checker = o.checker
	if c.Checker == nil {
		c.Checker = netcheck.NewHTTPChecker(netcheck.Config{
			URLs:          cfg.Network.ProbeURLs,
			Timeout:       cfg.Network.ProbeTimeout,
			SlowThreshold: cfg.Network.SlowThreshold,
		})
	}

	c.Gate = startup.NewDecisionGate()
	decider, err := startup.NewDecider(cfg.Startup.Policy, c.Gate)
	if err != nil {
		return nil, fmt.Errorf("decision policy: %w", err)
	}

	c.Orchestrator = startup.New(startup.Config{
		Platform:              cfg.Platform,
		CompatPlatform:        cfg.Startup.CompatPlatform,
		SkipLiveBackgroundsOn: cfg.Startup.SkipLiveBackgroundsOn,
		MetadataPollInterval:  cfg.Startup.MetadataPollInterval,
		MetadataPollAttempts:  cfg.Startup.MetadataPollAttempts,
		PreloadTimeout:        cfg.Startup.PreloadTimeout,
		SubscribeDelay:        cfg.Startup.SubscribeDelay,
		RetryDelay:            cfg.Startup.RetryDelay,
	}, startup.Deps{
		Checker:    c.Checker,
		Backend:    c.Backend,
		Assets:     c.Assets,
		State:      c.State,
		Decider:    decider,
		Events:     client.Events(),
		Seen:       assets.NewSeen(),
		OnComplete: func() { c.persistState("startup") },
	})

	c.Monitor = netmon.New(netmon.Config{
		Interval:              cfg.Network.PollInterval,
		FailureThreshold:      cfg.Network.FailureThreshold,
		Platform:              cfg.Platform,
		CompatPlatform:        cfg.Startup.CompatPlatform,
		SkipLiveBackgroundsOn: cfg.Startup.SkipLiveBackgroundsOn,
		MetadataPollInterval:  cfg.Startup.MetadataPollInterval,
		MetadataPollAttempts:  cfg.Startup.MetadataPollAttempts,
		PreloadTimeout:        cfg.Startup.PreloadTimeout,
		CompleteDisplay:       cfg.Network.CompleteDisplay,
	}, netmon.Deps{
		Checker: c.Checker,
		Backend: c.Backend,
		Assets:  c.Assets,
		State:   c.State,
		OnConnectivityLost: func(res netcheck.Result) {
			c.logger.Warn().
				Str(log.FieldEvent, "daemon.connectivity_lost").
				Str(log.FieldStatus, string(res.Status)).
				Str("message", res.Message).
				Msg("connectivity lost, recovery runs when the network returns")
		},
		OnRecovered: func() { c.persistState("recovery") },
	})

	c.Health = health.NewManager(cfg.Version)
	c.Health.RegisterChecker(health.NewConnectivityChecker(c.Monitor.Status, c.Monitor.Outage))
	c.Health.RegisterChecker(health.NewStartupChecker(c.State.Snapshot))
	var pinger health.Pinger
	storeName := cfg.Store.Backend
	if c.AssetStore != nil {
		pinger = c.AssetStore
		storeName = c.AssetStore.Name()
	}
	c.Health.RegisterChecker(health.NewStoreChecker(storeName, pinger))

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = serviceName
	}
	c.API = api.New(api.Config{
		ListenAddr:        cfg.API.ListenAddr,
		RecoveryRateLimit: cfg.API.RecoveryRateLimit,
		ShutdownTimeout:   cfg.API.ShutdownTimeout,
		TracingService:    tracing,
	}, api.Deps{
		State:     c.State,
		Network:   c.Monitor,
		Decisions: c.Gate,
		Assets:    c.Assets,
		Health:    c.Health,
	})

	c.logger.Info().
		Str(log.FieldEvent, "daemon.built").
		Str("backend", platformnet.SanitizeURL(cfg.Backend.URL)).
		Str("store", storeName).
		Str("policy", cfg.Startup.Policy).
		Str("platform", cfg.Platform).
		Msg("components ready")
	return c, nil
}

// SnapshotPath is where the metadata snapshot lives.
func (c *Components) SnapshotPath() string {
	return filepath.Join(c.Config.DataDir, state.SnapshotFile)
}

// restoreSnapshot seeds the store from the last saved snapshot. A missing or
// unreadable snapshot only costs a warm start.
func (c *Components) restoreSnapshot() {
	snap, err := state.LoadSnapshot(c.SnapshotPath())
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			c.logger.Debug().Str(log.FieldEvent, "daemon.snapshot_absent").Msg("no state snapshot to restore")
			return
		}
		c.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.snapshot_load_failed").Msg("ignoring unreadable state snapshot")
		return
	}
	c.State.Apply(snap.Patch())
	c.logger.Info().
		Str(log.FieldEvent, "daemon.snapshot_restored").
		Int("games", len(snap.Games)).
		Time("saved_at", snap.SavedAt).
		Msg("restored state snapshot")
}

func (c *Components) persistState(trigger string) {
	if err := state.SaveSnapshot(c.SnapshotPath(), c.State.Snapshot()); err != nil {
		c.logger.Warn().
			Err(err).
			Str(log.FieldEvent, "daemon.snapshot_save_failed").
			Str(log.FieldTrigger, trigger).
			Msg("failed to save state snapshot")
		return
	}
	c.logger.Debug().
		Str(log.FieldEvent, "daemon.snapshot_saved").
		Str(log.FieldTrigger, trigger).
		Msg("state snapshot saved")
}

// Close releases everything Build created, in reverse dependency order.
// The monitor and orchestrator must already be stopped.
func (c *Components) Close(ctx context.Context) error {
	var errs []error
	if c.Assets != nil {
		c.Assets.Close()
		assets.SetDefault(nil)
	}
	if c.AssetStore != nil {
		if err := c.AssetStore.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close asset store: %w", err))
		}
	}
	if c.Provider != nil {
		if err := c.Provider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown telemetry: %w", err))
		}
	}
	return errors.Join(errs...)
}
