// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"github.com/ManuGH/launchpad/internal/config"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/rs/zerolog"
)

// App owns the long-lived runtime: the control API, the startup sequence,
// the network monitor and config reloads.
type App struct {
	logger       zerolog.Logger
	c            *Components
	cfgHolder    *config.ConfigHolder
	listener     net.Listener
	reloadSignal os.Signal
	running      atomic.Bool
}

// AppOption adjusts an App.
type AppOption func(*App)

// WithListener serves the control API on ln instead of the configured address.
func WithListener(ln net.Listener) AppOption {
	return func(a *App) { a.listener = ln }
}

// WithReloadSignal changes the reload signal; nil disables signal reloads.
func WithReloadSignal(sig os.Signal) AppOption {
	return func(a *App) { a.reloadSignal = sig }
}

// NewApp creates an App over built components. cfgHolder may be nil.
func NewApp(c *Components, cfgHolder *config.ConfigHolder, opts ...AppOption) (*App, error) {
	if c == nil {
		return nil, ErrMissingComponents
	}
	a := &App{
		logger:       log.WithComponent("daemon"),
		c:            c,
		cfgHolder:    cfgHolder,
		reloadSignal: syscall.SIGHUP,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// Run starts every subsystem and blocks until ctx is cancelled or one of
// them fails. Components are closed before Run returns.
func (a *App) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}

	g, gctx := errgroup.WithContext(ctx)

	// Config watcher is best-effort: startup should not fail if watcher cannot be started.
	if a.cfgHolder != nil {
		if err := a.cfgHolder.StartWatcher(gctx); err != nil {
			a.logger.Warn().Err(err).Str(log.FieldEvent, "config.watcher_start_failed").Msg("failed to start config watcher")
		}

		applyCh := make(chan config.AppConfig, 1)
		a.cfgHolder.RegisterListener(applyCh)
		g.Go(func() error {
			for {
				select {
				case <-gctx.Done():
					return nil
				case cfg := <-applyCh:
					a.applyReload(cfg)
				}
			}
		})
	}

	// SIGHUP trigger for manual reload.
	if a.cfgHolder != nil && a.reloadSignal != nil {
		g.Go(func() error {
			hupChan := make(chan os.Signal, 1)
			signal.Notify(hupChan, a.reloadSignal)
			defer signal.Stop(hupChan)

			for {
				select {
				case <-gctx.Done():
					return nil
				case <-hupChan:
					a.logger.Info().
						Str(log.FieldEvent, "config.reload_signal").
						Str("signal", a.reloadSignal.String()).
						Msg("received reload signal, reloading config")

					if err := a.cfgHolder.Reload(gctx); err != nil {
						a.logger.Warn().
							Err(err).
							Str(log.FieldEvent, "config.reload_failed").
							Msg("config reload failed")
					}
				}
			}
		})
	}

	g.Go(func() error {
		var err error
		if a.listener != nil {
			err = a.c.API.Serve(gctx, a.listener)
		} else {
			err = a.c.API.ListenAndServe(gctx)
		}
		if err != nil {
			return fmt.Errorf("%w: %w", ErrServerStartFailed, err)
		}
		return nil
	})

	// The monitor and the startup sequence are independent; both share the
	// asset cache and the state store.
	a.c.Monitor.Start(gctx)
	g.Go(func() error {
		err := a.c.Orchestrator.Run(gctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("%w: %w", ErrStartupFailed, err)
		}
		return nil
	})

	runErr := g.Wait()
	a.shutdown(context.WithoutCancel(ctx))
	return runErr
}

func (a *App) applyReload(cfg config.AppConfig) {
	if !log.SetLevel(cfg.LogLevel) {
		a.logger.Warn().Str("level", cfg.LogLevel).Msg("ignoring unknown log level")
	}
	a.c.Monitor.SetInterval(cfg.Network.PollInterval)
	a.logger.Info().
		Str(log.FieldEvent, "config.applied").
		Str("log_level", cfg.LogLevel).
		Dur("poll_interval", cfg.Network.PollInterval).
		Msg("applied reloaded configuration")
}

// shutdown stops the producers first so nothing writes into closed stores.
func (a *App) shutdown(ctx context.Context) {
	if a.cfgHolder != nil {
		a.cfgHolder.Stop()
	}
	a.c.Monitor.Stop()
	a.c.Orchestrator.Cancel()
	a.c.Monitor.Wait()

	if err := a.c.Close(ctx); err != nil {
		a.logger.Warn().Err(err).Str(log.FieldEvent, "daemon.close_failed").Msg("error while closing components")
	}
	a.logger.Info().Str(log.FieldEvent, "daemon.stopped").Msg("daemon stopped")
}
