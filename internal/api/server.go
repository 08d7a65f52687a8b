// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package api serves the local control API the launcher UI talks to: state
// snapshots, network status, manual recovery and the offline decision.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/ManuGH/launchpad/internal/api/middleware"
	"github.com/ManuGH/launchpad/internal/assets"
	"github.com/ManuGH/launchpad/internal/health"
	"github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/netcheck"
	"github.com/ManuGH/launchpad/internal/state"
	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StateSource exposes host state.
type StateSource interface {
	Snapshot() state.State
	Subscribe(buffer int) (<-chan state.State, func())
}

// NetworkSource is the network monitor as seen by the API.
type NetworkSource interface {
	Status() netcheck.Result
	LastProbe() netcheck.Result
	ConsecutiveFailures() int
	Outage() bool
	Recovery() state.RecoveryState
	Recovering() bool
	StartRecovery(ctx context.Context) bool
}

// DecisionSource answers the startup offline question.
type DecisionSource interface {
	Pending() (netcheck.Result, bool)
	Resolve(limited bool) error
}

// AssetSource exposes asset cache bookkeeping.
type AssetSource interface {
	Stats() assets.Stats
	ClearFailed() int
}

// Config configures the HTTP server.
type Config struct {
	ListenAddr        string
	RecoveryRateLimit int
	ShutdownTimeout   time.Duration
	// TracingService enables otelhttp server spans when set.
	TracingService string
}

// Deps are the server's collaborators. Decisions, Assets and Health are optional.
type Deps struct {
	State     StateSource
	Network   NetworkSource
	Decisions DecisionSource
	Assets    AssetSource
	Health    *health.Manager
}

// Server is the control API.
type Server struct {
	cfg      Config
	deps     Deps
	logger   zerolog.Logger
	router   chi.Router
	upgrader websocket.Upgrader

	streams sync.WaitGroup
}

// New builds the router. It does not listen.
func New(cfg Config, deps Deps) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 5 * time.Second
	}
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		logger: log.WithComponent("api"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) routes() chi.Router {
	r := middleware.NewRouter(middleware.StackConfig{
		EnableMetrics:  true,
		TracingService: s.cfg.TracingService,
		EnableLogging:  true,
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/readyz", s.handleReady)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/state", s.handleState)
		r.Get("/state/stream", s.handleStateStream)
		r.Get("/network", s.handleNetwork)
		r.Get("/recovery", s.handleRecoveryStatus)
		r.Get("/startup/decision", s.handleDecisionPending)
		r.Get("/assets", s.handleAssetStats)

		r.Group(func(r chi.Router) {
			r.Use(middleware.ActionRateLimit(s.cfg.RecoveryRateLimit))
			r.Post("/recovery", s.handleRecoveryTrigger)
			r.Post("/startup/decision", s.handleDecisionResolve)
			r.Post("/assets/clear-failed", s.handleClearFailed)
		})
	})
	return r
}

// ListenAndServe listens on the configured address until ctx is done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is done, then shuts down gracefully and waits
// for open state streams to close.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().
			Str(log.FieldEvent, "api.listen").
			Str("addr", ln.Addr().String()).
			Msg("control API listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.cfg.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	<-errCh
	s.streams.Wait()

	s.logger.Info().Str(log.FieldEvent, "api.stopped").Msg("control API stopped")
	if err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
