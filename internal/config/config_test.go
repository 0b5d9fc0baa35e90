package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.BaseURL == "" || cfg.Decision.NextInterval <= 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
}

func TestLoadMissingFileIsIgnored(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err != nil {
		t.Fatalf("Load with missing file: %v", err)
	}
}

func TestLoadYAMLOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := []byte(`
portal:
  timeout: 10s
decision:
  critical_time: 780
  prev_interval: 5
refresh_interval: 2m
`)
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Remote.Timeout != 10*time.Second {
		t.Errorf("timeout = %v, want 10s", cfg.Remote.Timeout)
	}
	if cfg.Decision.CriticalTime != 780 || cfg.Decision.PrevInterval != 5 {
		t.Errorf("decision overrides not applied: %+v", cfg.Decision)
	}
	if cfg.RefreshInterval != 2*time.Minute {
		t.Errorf("refresh interval = %v, want 2m", cfg.RefreshInterval)
	}
	// Untouched fields keep their defaults.
	if cfg.Decision.NextInterval != Default().Decision.NextInterval {
		t.Errorf("next interval = %d, want default", cfg.Decision.NextInterval)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CRITICAL_TIME_MINUTES", "600")
	t.Setenv("MORNING_INBOUND", "false")
	t.Setenv("PORTAL_TIMEOUT", "3s")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Decision.CriticalTime != 600 {
		t.Errorf("critical time = %d, want 600", cfg.Decision.CriticalTime)
	}
	if cfg.Decision.MorningInbound {
		t.Error("morning inbound not overridden")
	}
	if cfg.Remote.Timeout != 3*time.Second {
		t.Errorf("timeout = %v, want 3s", cfg.Remote.Timeout)
	}
}

func TestValidateRejectsBadRanges(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"critical time above range", func(c *Config) { c.Decision.CriticalTime = 1440 }},
		{"zero prev interval", func(c *Config) { c.Decision.PrevInterval = 0 }},
		{"empty inbound partition", func(c *Config) { c.Decision.InboundRouteIDs = nil }},
		{"bad base url", func(c *Config) { c.Remote.BaseURL = "not a url" }},
		{"too many retries", func(c *Config) { c.Remote.RetryAttempts = 10 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("invalid config passed validation")
			}
		})
	}
}
