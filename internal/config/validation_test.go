// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig(t *testing.T) AppConfig {
	t.Helper()
	cfg := Defaults()
	cfg.DataDir = t.TempDir()
	return cfg
}

func fields(err error) []string {
	var verrs ValidationErrors
	if !errors.As(err, &verrs) {
		return nil
	}
	out := make([]string, len(verrs))
	for i, e := range verrs {
		out[i] = e.Field
	}
	return out
}

func TestValidate_Defaults(t *testing.T) {
	assert.NoError(t, Validate(validConfig(t)))
}

func TestValidate_Rules(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*AppConfig)
		field  string
	}{
		{"empty data dir", func(c *AppConfig) { c.DataDir = "" }, "DataDir"},
		{"bad log level", func(c *AppConfig) { c.LogLevel = "loud" }, "LogLevel"},
		{"backend not a url", func(c *AppConfig) { c.Backend.URL = "backend" }, "Backend.URL"},
		{"backend scheme", func(c *AppConfig) { c.Backend.URL = "ftp://backend.example" }, "Backend.URL"},
		{"listen addr", func(c *AppConfig) { c.API.ListenAddr = "localhost" }, "API.ListenAddr"},
		{"no probe urls", func(c *AppConfig) { c.Network.ProbeURLs = nil }, "Network.ProbeURLs"},
		{"probe url", func(c *AppConfig) { c.Network.ProbeURLs = []string{"nope"} }, "Network.ProbeURLs[0]"},
		{"poll interval", func(c *AppConfig) { c.Network.PollInterval = 100 * time.Millisecond }, "Network.PollInterval"},
		{"threshold", func(c *AppConfig) { c.Network.FailureThreshold = 0 }, "Network.FailureThreshold"},
		{"slow above timeout", func(c *AppConfig) { c.Network.SlowThreshold = c.Network.ProbeTimeout }, "Network.SlowThreshold"},
		{"policy", func(c *AppConfig) { c.Startup.Policy = "ask" }, "Startup.Policy"},
		{"store backend", func(c *AppConfig) { c.Store.Backend = "s3" }, "Store.Backend"},
		{"badger path", func(c *AppConfig) { c.Store.Backend = "badger" }, "Store.Path"},
		{"redis addr", func(c *AppConfig) { c.Store.Backend = "redis" }, "Store.RedisAddr"},
		{"telemetry endpoint", func(c *AppConfig) { c.Telemetry.Enabled = true; c.Telemetry.Endpoint = "" }, "Telemetry.Endpoint"},
		{"sampling", func(c *AppConfig) { c.Telemetry.SamplingRate = 2 }, "Telemetry.SamplingRate"},
		{"outbound cidr", func(c *AppConfig) { c.Assets.Outbound.AllowCIDRs = []string{"10.0.0.0/99"} }, "Assets.Outbound.AllowCIDRs[0]"},
		{"outbound host", func(c *AppConfig) { c.Assets.Outbound.AllowHosts = []string{"http://cdn.example"} }, "Assets.Outbound.AllowHosts[0]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig(t)
			tt.mutate(&cfg)
			err := Validate(cfg)
			require.Error(t, err)
			assert.Contains(t, fields(err), tt.field)
		})
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	cfg := validConfig(t)
	cfg.LogLevel = "loud"
	cfg.Startup.Policy = "ask"

	err := Validate(cfg)
	require.Error(t, err)
	assert.ElementsMatch(t, []string{"LogLevel", "Startup.Policy"}, fields(err))
	assert.Contains(t, err.Error(), "must be one of")
}
