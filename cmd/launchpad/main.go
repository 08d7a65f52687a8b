// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// SPDX-License-Identifier: MIT
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/ManuGH/launchpad/internal/config"
	"github.com/ManuGH/launchpad/internal/daemon"
	"github.com/ManuGH/launchpad/internal/health"
	xglog "github.com/ManuGH/launchpad/internal/log"
	"github.com/ManuGH/launchpad/internal/version"
)

func main() {
	if len(os.Args) > 1 && os.Args[1] == "config" {
		os.Exit(runConfigCLI(os.Args[2:], os.Stdout, os.Stderr))
	}

	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Println(version.String())
		os.Exit(0)
	}

	// Configure logger with safe defaults until config is loaded
	xglog.Configure(xglog.Config{
		Level:   "info",
		Service: "launchpad",
		Version: version.Version,
	})
	logger := xglog.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	explicitConfigPath := strings.TrimSpace(*configPath)
	effectiveConfigPath := explicitConfigPath
	if effectiveConfigPath == "" {
		effectiveConfigPath = resolveDefaultConfigPath()
	}

	// Load configuration with precedence: ENV > File > Defaults
	loader := config.NewLoader(effectiveConfigPath, version.Version)
	cfg, err := loader.Load()
	if err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "config.load_failed").
			Str("config_path", effectiveConfigPath).
			Msg("failed to load configuration")
	}

	xglog.Configure(xglog.Config{
		Level:   cfg.LogLevel,
		Service: "launchpad",
		Version: cfg.Version,
	})
	logger = xglog.WithComponent("daemon")

	switch {
	case explicitConfigPath != "":
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file").
			Str("path", explicitConfigPath).
			Msg("loaded configuration from file")
	case effectiveConfigPath != "":
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "file(auto)").
			Str("path", effectiveConfigPath).
			Msg("loaded configuration from file")
	default:
		logger.Info().
			Str(xglog.FieldEvent, "config.loaded").
			Str("source", "env+defaults").
			Msg("loaded configuration from environment and defaults")
	}

	// Pre-flight checks (fail fast)
	if err := health.PerformStartupChecks(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str(xglog.FieldEvent, "startup.check_failed").
			Msg("startup checks failed, verify configuration and permissions")
	}

	logger.Info().
		Str(xglog.FieldEvent, "startup").
		Str("version", version.Version).
		Str("commit", version.Commit).
		Str("build_date", version.Date).
		Str("addr", cfg.API.ListenAddr).
		Msg("starting launchpad")
	logger.Info().Msgf("→ Backend: %s", maskURL(cfg.Backend.URL))
	logger.Info().Msgf("→ Platform: %s (offline policy: %s)", cfg.Platform, cfg.Startup.Policy)
	logger.Info().Msgf("→ Asset store: %s", cfg.Store.Backend)
	logger.Info().Msgf("→ Data dir: %s", cfg.DataDir)

	components, err := daemon.Build(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "daemon.build_failed").Msg("failed to initialize")
	}

	var cfgHolder *config.ConfigHolder
	if effectiveConfigPath != "" {
		cfgHolder = config.NewConfigHolder(cfg, loader)
	}

	app, err := daemon.NewApp(components, cfgHolder)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create app")
	}
	if err := app.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal().Err(err).Str(xglog.FieldEvent, "daemon.failed").Msg("daemon failed")
	}
	logger.Info().Str(xglog.FieldEvent, "shutdown.complete").Msg("launchpad exited cleanly")
}

// resolveDefaultConfigPath returns $LAUNCHPAD_CONFIG, or config.yaml in the
// data directory when it exists.
func resolveDefaultConfigPath() string {
	if p := strings.TrimSpace(config.ParseString(config.EnvPrefix+"CONFIG", "")); p != "" {
		return p
	}
	dataDir := strings.TrimSpace(config.ParseString(config.EnvPrefix+"DATA_DIR", config.Defaults().DataDir))
	autoPath := filepath.Join(dataDir, "config.yaml")
	if _, err := os.Stat(autoPath); err == nil {
		return autoPath
	}
	return ""
}
