// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/ManuGH/launchpad/internal/netcheck"
	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence.
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{}
}

// NewLoader creates a new configuration loader. An empty configPath means
// defaults plus environment only.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Path returns the config file path, if any.
func (l *Loader) Path() string { return l.configPath }

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseString(EnvPrefix+key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseBool(EnvPrefix+key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseInt(EnvPrefix+key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseDuration(EnvPrefix+key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseFloat(EnvPrefix+key, defaultVal)
}

func (l *Loader) envList(key string, defaultVal []string) []string {
	l.ConsumedEnvKeys[EnvPrefix+key] = struct{}{}
	return ParseList(EnvPrefix+key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults.
// Parse file (strict) -> apply env -> validate.
func (l *Loader) Load() (AppConfig, error) {
	cfg := Defaults()

	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	if cfg.Store.Backend == "badger" && cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.DataDir, "assets")
	}

	cfg.Version = l.version

	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Defaults returns the built-in configuration.
func Defaults() AppConfig {
	return AppConfig{
		DataDir:  defaultDataDir(),
		LogLevel: "info",
		Platform: runtime.GOOS,
		Backend: BackendConfig{
			URL:     "http://127.0.0.1:5000",
			Timeout: 10 * time.Second,
		},
		API: APIConfig{
			ListenAddr:        "127.0.0.1:8765",
			RecoveryRateLimit: 10,
			ShutdownTimeout:   5 * time.Second,
		},
		Network: NetworkConfig{
			ProbeURLs:        append([]string(nil), netcheck.DefaultProbeURLs...),
			ProbeTimeout:     5 * time.Second,
			SlowThreshold:    1500 * time.Millisecond,
			PollInterval:     30 * time.Second,
			FailureThreshold: 3,
			CompleteDisplay:  2 * time.Second,
		},
		Startup: StartupConfig{
			Policy:                "prompt",
			CompatPlatform:        "linux",
			SkipLiveBackgroundsOn: []string{"linux"},
			MetadataPollInterval:  100 * time.Millisecond,
			MetadataPollAttempts:  50,
			PreloadTimeout:        15 * time.Second,
			SubscribeDelay:        500 * time.Millisecond,
			RetryDelay:            time.Second,
		},
		Assets: AssetsConfig{
			MaxConcurrent: 8,
			MaxBytes:      64 << 20,
			Timeout:       30 * time.Second,
			UserAgent:     "launchpad",
		},
		Store: StoreConfig{
			Backend: "memory",
			TTL:     24 * time.Hour,
			MaxSize: 2048,
		},
		Telemetry: TelemetryConfig{
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			Environment:  "production",
			SamplingRate: 1.0,
		},
	}
}

func defaultDataDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "launchpad")
	}
	return filepath.Join(os.TempDir(), "launchpad")
}

// loadFile decodes a YAML file onto cfg with strict parsing. Keys absent
// from the file keep their current values; unknown keys are an error.
func (l *Loader) loadFile(path string, cfg *AppConfig) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *AppConfig) {
	cfg.DataDir = l.envString("DATA_DIR", cfg.DataDir)
	cfg.LogLevel = strings.ToLower(l.envString("LOG_LEVEL", cfg.LogLevel))
	cfg.Platform = l.envString("PLATFORM", cfg.Platform)

	cfg.Backend.URL = l.envString("BACKEND_URL", cfg.Backend.URL)
	cfg.Backend.Timeout = l.envDuration("BACKEND_TIMEOUT", cfg.Backend.Timeout)

	cfg.API.ListenAddr = l.envString("LISTEN_ADDR", cfg.API.ListenAddr)
	cfg.API.RecoveryRateLimit = l.envInt("API_RECOVERY_RATE_LIMIT", cfg.API.RecoveryRateLimit)
	cfg.API.ShutdownTimeout = l.envDuration("API_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	cfg.Network.ProbeURLs = l.envList("NETWORK_PROBE_URLS", cfg.Network.ProbeURLs)
	cfg.Network.ProbeTimeout = l.envDuration("NETWORK_PROBE_TIMEOUT", cfg.Network.ProbeTimeout)
	cfg.Network.SlowThreshold = l.envDuration("NETWORK_SLOW_THRESHOLD", cfg.Network.SlowThreshold)
	cfg.Network.PollInterval = l.envDuration("NETWORK_POLL_INTERVAL", cfg.Network.PollInterval)
	cfg.Network.FailureThreshold = l.envInt("NETWORK_FAILURE_THRESHOLD", cfg.Network.FailureThreshold)
	cfg.Network.CompleteDisplay = l.envDuration("NETWORK_COMPLETE_DISPLAY", cfg.Network.CompleteDisplay)

	cfg.Startup.Policy = strings.ToLower(l.envString("STARTUP_POLICY", cfg.Startup.Policy))
	cfg.Startup.CompatPlatform = l.envString("STARTUP_COMPAT_PLATFORM", cfg.Startup.CompatPlatform)
	cfg.Startup.SkipLiveBackgroundsOn = l.envList("STARTUP_SKIP_LIVE_BACKGROUNDS_ON", cfg.Startup.SkipLiveBackgroundsOn)
	cfg.Startup.MetadataPollInterval = l.envDuration("STARTUP_METADATA_POLL_INTERVAL", cfg.Startup.MetadataPollInterval)
	cfg.Startup.MetadataPollAttempts = l.envInt("STARTUP_METADATA_POLL_ATTEMPTS", cfg.Startup.MetadataPollAttempts)
	cfg.Startup.PreloadTimeout = l.envDuration("STARTUP_PRELOAD_TIMEOUT", cfg.Startup.PreloadTimeout)
	cfg.Startup.SubscribeDelay = l.envDuration("STARTUP_SUBSCRIBE_DELAY", cfg.Startup.SubscribeDelay)
	cfg.Startup.RetryDelay = l.envDuration("STARTUP_RETRY_DELAY", cfg.Startup.RetryDelay)

	cfg.Assets.MaxConcurrent = l.envInt("ASSETS_MAX_CONCURRENT", cfg.Assets.MaxConcurrent)
	cfg.Assets.RatePerSecond = l.envFloat("ASSETS_RATE_PER_SECOND", cfg.Assets.RatePerSecond)
	cfg.Assets.Burst = l.envInt("ASSETS_BURST", cfg.Assets.Burst)
	cfg.Assets.Timeout = l.envDuration("ASSETS_TIMEOUT", cfg.Assets.Timeout)
	cfg.Assets.UserAgent = l.envString("ASSETS_USER_AGENT", cfg.Assets.UserAgent)
	cfg.Assets.Outbound.Enabled = l.envBool("ASSETS_OUTBOUND_ENABLED", cfg.Assets.Outbound.Enabled)
	cfg.Assets.Outbound.AllowHosts = l.envList("ASSETS_OUTBOUND_ALLOW_HOSTS", cfg.Assets.Outbound.AllowHosts)
	cfg.Assets.Outbound.AllowCIDRs = l.envList("ASSETS_OUTBOUND_ALLOW_CIDRS", cfg.Assets.Outbound.AllowCIDRs)
	cfg.Assets.Outbound.AllowPrivate = l.envBool("ASSETS_OUTBOUND_ALLOW_PRIVATE", cfg.Assets.Outbound.AllowPrivate)

	cfg.Store.Backend = strings.ToLower(l.envString("STORE_BACKEND", cfg.Store.Backend))
	cfg.Store.Path = l.envString("STORE_PATH", cfg.Store.Path)
	cfg.Store.TTL = l.envDuration("STORE_TTL", cfg.Store.TTL)
	cfg.Store.MaxSize = l.envInt("STORE_MAX_SIZE", cfg.Store.MaxSize)
	cfg.Store.RedisAddr = l.envString("STORE_REDIS_ADDR", cfg.Store.RedisAddr)
	cfg.Store.RedisPassword = l.envString("STORE_REDIS_PASSWORD", cfg.Store.RedisPassword)
	cfg.Store.RedisDB = l.envInt("STORE_REDIS_DB", cfg.Store.RedisDB)

	cfg.Telemetry.Enabled = l.envBool("TELEMETRY_ENABLED", cfg.Telemetry.Enabled)
	cfg.Telemetry.Exporter = strings.ToLower(l.envString("TELEMETRY_EXPORTER", cfg.Telemetry.Exporter))
	cfg.Telemetry.Endpoint = l.envString("TELEMETRY_ENDPOINT", cfg.Telemetry.Endpoint)
	cfg.Telemetry.Environment = l.envString("TELEMETRY_ENVIRONMENT", cfg.Telemetry.Environment)
	cfg.Telemetry.SamplingRate = l.envFloat("TELEMETRY_SAMPLING_RATE", cfg.Telemetry.SamplingRate)
}

// LoadFile loads configuration from path with defaults and environment applied.
func LoadFile(path, version string) (AppConfig, error) {
	return NewLoader(path, version).Load()
}
