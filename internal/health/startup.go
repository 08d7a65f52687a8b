// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ManuGH/launchpad/internal/config"
	"github.com/ManuGH/launchpad/internal/log"
	platformnet "github.com/ManuGH/launchpad/internal/platform/net"
	"github.com/rs/zerolog"
)

// PerformStartupChecks validates the environment before the daemon starts.
// The data directory is created if missing.
func PerformStartupChecks(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponentFromContext(ctx, "startup-check")
	logger.Info().Str(log.FieldEvent, "startup_check.begin").Msg("running pre-flight startup checks")

	if err := checkDataDir(logger, cfg.DataDir); err != nil {
		return fmt.Errorf("data directory check failed: %w", err)
	}
	if err := checkTargetedValidations(logger, cfg); err != nil {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	logger.Info().Str(log.FieldEvent, "startup_check.passed").Msg("all startup checks passed")
	return nil
}

func checkDataDir(logger zerolog.Logger, path string) error {
	if path == "" {
		return fmt.Errorf("data directory not configured")
	}
	if err := os.MkdirAll(path, 0o750); err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	testFile := filepath.Join(path, ".write_test")
	if err := os.WriteFile(testFile, []byte("ok"), 0o600); err != nil {
		return fmt.Errorf("directory is not writable: %s (error: %v)", path, err)
	}
	_ = os.Remove(testFile)

	logger.Info().Str("path", path).Msg("data directory is writable")
	return nil
}

// checkTargetedValidations checks the runtime-critical settings.
func checkTargetedValidations(logger zerolog.Logger, cfg config.AppConfig) error {
	if cfg.API.ListenAddr != "" {
		_, port, err := net.SplitHostPort(cfg.API.ListenAddr)
		if err != nil {
			return fmt.Errorf("invalid API listen address %q: %w", cfg.API.ListenAddr, err)
		}
		portNum, err := strconv.Atoi(port)
		if err != nil || portNum < 0 || portNum > 65535 {
			return fmt.Errorf("invalid API listen port %q in %q", port, cfg.API.ListenAddr)
		}
	}

	if _, err := platformnet.ParseHTTPURL(cfg.Backend.URL); err != nil {
		return fmt.Errorf("invalid backend URL: %w", err)
	}
	logger.Info().Str(log.FieldURL, platformnet.SanitizeURL(cfg.Backend.URL)).Msg("backend URL is valid")

	switch cfg.Store.Backend {
	case "badger":
		if err := os.MkdirAll(cfg.Store.Path, 0o750); err != nil {
			return fmt.Errorf("asset store path %s: %w", cfg.Store.Path, err)
		}
	case "memory":
		logger.Debug().Msg("asset store is in-memory; payloads are not kept across restarts")
	}

	tempDir := filepath.Clean(os.TempDir())
	dataDir := filepath.Clean(cfg.DataDir)
	if tempDir != "." && (dataDir == tempDir || strings.HasPrefix(dataDir, tempDir+string(filepath.Separator))) {
		logger.Warn().
			Str("data_dir", cfg.DataDir).
			Msg("data directory is under temp; the state snapshot may be lost on reboot")
	}
	return nil
}
