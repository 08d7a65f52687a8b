// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package config provides configuration management for launchpad.
package config

import "time"

// AppConfig is the fully resolved daemon configuration.
type AppConfig struct {
	// Version is stamped from the binary, never read from file.
	Version string `yaml:"-"`

	DataDir  string `yaml:"dataDir" validate:"required"`
	LogLevel string `yaml:"logLevel" validate:"oneof=trace debug info warn error"`
	// Platform overrides the detected OS (used for compat and live-background decisions).
	Platform string `yaml:"platform" validate:"required"`

	Backend   BackendConfig   `yaml:"backend"`
	API       APIConfig       `yaml:"api"`
	Network   NetworkConfig   `yaml:"network"`
	Startup   StartupConfig   `yaml:"startup"`
	Assets    AssetsConfig    `yaml:"assets"`
	Store     StoreConfig     `yaml:"store"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// BackendConfig locates the host backend.
type BackendConfig struct {
	URL     string        `yaml:"url" validate:"required,url"`
	Timeout time.Duration `yaml:"timeout" validate:"gt=0"`
}

// APIConfig configures the local control API.
type APIConfig struct {
	ListenAddr string `yaml:"listenAddr" validate:"required,hostname_port"`
	// RecoveryRateLimit is the number of recovery/decision requests per minute per client.
	RecoveryRateLimit int           `yaml:"recoveryRateLimit" validate:"gte=1,lte=600"`
	ShutdownTimeout   time.Duration `yaml:"shutdownTimeout" validate:"gt=0"`
}

// NetworkConfig configures connectivity probing and the monitor.
type NetworkConfig struct {
	ProbeURLs        []string      `yaml:"probeURLs" validate:"min=1,dive,url"`
	ProbeTimeout     time.Duration `yaml:"probeTimeout" validate:"gt=0"`
	SlowThreshold    time.Duration `yaml:"slowThreshold" validate:"gt=0"`
	PollInterval     time.Duration `yaml:"pollInterval" validate:"gte=1s"`
	FailureThreshold int           `yaml:"failureThreshold" validate:"gte=1,lte=20"`
	CompleteDisplay  time.Duration `yaml:"completeDisplay" validate:"gte=0"`
}

// StartupConfig configures the load orchestrator.
type StartupConfig struct {
	// Policy decides what happens when the startup probe is offline.
	Policy                string        `yaml:"policy" validate:"oneof=prompt limited retry"`
	CompatPlatform        string        `yaml:"compatPlatform" validate:"required"`
	SkipLiveBackgroundsOn []string      `yaml:"skipLiveBackgroundsOn"`
	MetadataPollInterval  time.Duration `yaml:"metadataPollInterval" validate:"gt=0"`
	MetadataPollAttempts  int           `yaml:"metadataPollAttempts" validate:"gte=1"`
	PreloadTimeout        time.Duration `yaml:"preloadTimeout" validate:"gte=0"`
	SubscribeDelay        time.Duration `yaml:"subscribeDelay" validate:"gte=0"`
	RetryDelay            time.Duration `yaml:"retryDelay" validate:"gte=0"`
}

// AssetsConfig bounds the HTTP asset fetcher.
type AssetsConfig struct {
	MaxConcurrent int           `yaml:"maxConcurrent" validate:"gte=1,lte=64"`
	RatePerSecond float64       `yaml:"ratePerSecond" validate:"gte=0"`
	Burst         int           `yaml:"burst" validate:"gte=0"`
	MaxBytes      int64         `yaml:"maxBytes" validate:"gt=0"`
	Timeout       time.Duration `yaml:"timeout" validate:"gt=0"`
	UserAgent     string        `yaml:"userAgent"`

	Outbound OutboundConfig `yaml:"outbound"`
}

// OutboundConfig restricts which hosts asset URLs from backend metadata may
// point at. Disabled by default.
type OutboundConfig struct {
	Enabled      bool     `yaml:"enabled"`
	AllowHosts   []string `yaml:"allowHosts" validate:"dive,hostname|ip"`
	AllowCIDRs   []string `yaml:"allowCIDRs" validate:"dive,cidr|ip"`
	AllowPrivate bool     `yaml:"allowPrivate"`
}

// StoreConfig selects the persistent asset payload store.
type StoreConfig struct {
	Backend       string        `yaml:"backend" validate:"oneof=none memory badger redis"`
	Path          string        `yaml:"path"`
	TTL           time.Duration `yaml:"ttl" validate:"gte=0"`
	MaxSize       int           `yaml:"maxSize" validate:"gte=0"`
	RedisAddr     string        `yaml:"redisAddr"`
	RedisPassword string        `yaml:"redisPassword"`
	RedisDB       int           `yaml:"redisDB" validate:"gte=0,lte=15"`
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	Exporter     string  `yaml:"exporter" validate:"oneof=grpc http"`
	Endpoint     string  `yaml:"endpoint"`
	Environment  string  `yaml:"environment"`
	SamplingRate float64 `yaml:"samplingRate" validate:"gte=0,lte=1"`
}
