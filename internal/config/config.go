// Package config loads and validates service configuration. Defaults
// work out of the box; an optional YAML file and environment variables
// override them, in that order.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Decision holds the tunables of the bus selection engine. CriticalTime
// is minutes since midnight; before it the rider's morning direction is
// chosen, at or after it the opposite.
type Decision struct {
	CriticalTime   int  `yaml:"critical_time" json:"critical_time" validate:"gte=0,lte=1439"`
	MorningInbound bool `yaml:"morning_inbound" json:"morning_inbound"`
	// PrevInterval is the grace window in minutes for boarding a bus
	// that has already departed; NextInterval is the lookahead window
	// for reserving one that has not.
	PrevInterval int `yaml:"prev_interval" json:"prev_interval" validate:"gt=0"`
	NextInterval int `yaml:"next_interval" json:"next_interval" validate:"gt=0"`

	// Route-id partition per direction, fixed by the portal.
	InboundRouteIDs  []int `yaml:"inbound_route_ids" json:"inbound_route_ids" validate:"min=1"`
	OutboundRouteIDs []int `yaml:"outbound_route_ids" json:"outbound_route_ids" validate:"min=1"`
}

// Portal holds remote portal connectivity settings. The request paths
// themselves are fixed by the wrapped portal and live in the portal
// package; only the hosts and transport behavior are configurable.
type Portal struct {
	BaseURL     string        `yaml:"base_url" validate:"url"`
	AuthBaseURL string        `yaml:"auth_base_url" validate:"url"`
	Timeout     time.Duration `yaml:"timeout" validate:"gt=0"`

	// Transport-level retry only; application rejections are never retried.
	RetryAttempts int           `yaml:"retry_attempts" validate:"gte=1,lte=5"`
	RetryBackoff  time.Duration `yaml:"retry_backoff" validate:"gt=0"`
}

// Config is the full service configuration.
type Config struct {
	Remote   Portal   `yaml:"portal"`
	Decision Decision `yaml:"decision"`

	// RefreshInterval drives the idle schedule refresh scheduler.
	RefreshInterval time.Duration `yaml:"refresh_interval" validate:"gte=0"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Remote: Portal{
			BaseURL:       "https://wproc.pku.edu.cn",
			AuthBaseURL:   "https://iaaa.pku.edu.cn",
			Timeout:       30 * time.Second,
			RetryAttempts: 3,
			RetryBackoff:  500 * time.Millisecond,
		},
		Decision: Decision{
			CriticalTime:     14 * 60,
			MorningInbound:   true,
			PrevInterval:     10,
			NextInterval:     60,
			InboundRouteIDs:  []int{2, 4},
			OutboundRouteIDs: []int{5, 6, 7},
		},
		RefreshInterval: 5 * time.Minute,
	}
}

// Load builds the configuration from defaults, the YAML file at path
// (skipped when path is empty or the file does not exist), and finally
// environment variables. The result is validated before being returned.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !os.IsNotExist(err) {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return Config{}, fmt.Errorf("parsing config file: %w", err)
			}
		}
	}

	applyEnv(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks all configured ranges.
func (c Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c.Remote); err != nil {
		return fmt.Errorf("portal config: %w", err)
	}
	if err := c.Decision.Validate(); err != nil {
		return err
	}
	return nil
}

// Validate checks the decision tunables alone. Used both at startup and
// when settings are updated over the API.
func (d Decision) Validate() error {
	if err := validator.New().Struct(d); err != nil {
		return fmt.Errorf("decision config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.Remote.BaseURL, "PORTAL_BASE_URL")
	setString(&cfg.Remote.AuthBaseURL, "PORTAL_AUTH_BASE_URL")
	setDuration(&cfg.Remote.Timeout, "PORTAL_TIMEOUT")
	setInt(&cfg.Remote.RetryAttempts, "PORTAL_RETRY_ATTEMPTS")
	setDuration(&cfg.Remote.RetryBackoff, "PORTAL_RETRY_BACKOFF")

	setInt(&cfg.Decision.CriticalTime, "CRITICAL_TIME_MINUTES")
	setBool(&cfg.Decision.MorningInbound, "MORNING_INBOUND")
	setInt(&cfg.Decision.PrevInterval, "PREV_INTERVAL_MINUTES")
	setInt(&cfg.Decision.NextInterval, "NEXT_INTERVAL_MINUTES")

	setDuration(&cfg.RefreshInterval, "REFRESH_INTERVAL")
}

func setString(target *string, key string) {
	if v := os.Getenv(key); v != "" {
		*target = v
	}
}

func setInt(target *int, key string) {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			*target = i
		}
	}
}

func setBool(target *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*target = b
		}
	}
}

func setDuration(target *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*target = d
		}
	}
}
