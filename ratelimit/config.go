/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package ratelimit

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/config"
)

const cfgDefaultKeyPrefix = "rateLimit"

const (
	cfgKeyMaxKeys       = "maxKeys"
	cfgKeySweepInterval = "sweepInterval"
	cfgKeyIdleHorizon   = "idleHorizon"
	cfgKeyZones         = "zones"
)

// ZoneConfig describes one named admission zone: at most MaxRequests requests
// per identifier within the trailing Window.
type ZoneConfig struct {
	MaxRequests int                 `mapstructure:"maxRequests" yaml:"maxRequests" json:"maxRequests"`
	Window      config.TimeDuration `mapstructure:"window" yaml:"window" json:"window"`
}

// Config represents a set of configuration parameters for rate limiting.
type Config struct {
	// MaxKeys bounds the number of tracked (scope, identifier) pairs.
	MaxKeys int

	// SweepInterval is the cadence of the background sweep.
	SweepInterval time.Duration

	// IdleHorizon is how long an entry may stay untouched before the sweep removes it.
	IdleHorizon time.Duration

	// Zones contains named admission zones. Key is a zone's name (used as Policy.ScopeName),
	// and value is a zone's configuration.
	Zones map[string]ZoneConfig

	keyPrefix string
}

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

// ConfigOption is a type for functional options for the Config.
type ConfigOption func(*configOptions)

type configOptions struct {
	keyPrefix string
}

// WithKeyPrefix returns a ConfigOption that sets a key prefix for parsing configuration parameters.
// This prefix will be used by config.Loader.
func WithKeyPrefix(keyPrefix string) ConfigOption {
	return func(o *configOptions) {
		o.keyPrefix = keyPrefix
	}
}

// NewConfig creates a new instance of the Config.
func NewConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{keyPrefix: opts.keyPrefix}
}

// NewDefaultConfig creates a new instance of the Config with default values.
func NewDefaultConfig(options ...ConfigOption) *Config {
	opts := configOptions{keyPrefix: cfgDefaultKeyPrefix}
	for _, opt := range options {
		opt(&opts)
	}
	return &Config{
		keyPrefix:     opts.keyPrefix,
		MaxKeys:       DefaultMaxKeys,
		SweepInterval: DefaultSweepInterval,
		IdleHorizon:   DefaultIdleHorizon,
	}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
// Implements config.KeyPrefixProvider interface.
func (c *Config) KeyPrefix() string {
	if c.keyPrefix == "" {
		return cfgDefaultKeyPrefix
	}
	return c.keyPrefix
}

// SetProviderDefaults sets default configuration values for the limiter in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxKeys, DefaultMaxKeys)
	dp.SetDefault(cfgKeySweepInterval, DefaultSweepInterval.String())
	dp.SetDefault(cfgKeyIdleHorizon, DefaultIdleHorizon.String())
}

// Set sets limiter configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxKeys, err = dp.GetInt(cfgKeyMaxKeys); err != nil {
		return err
	}
	if c.MaxKeys <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxKeys, fmt.Errorf("must be positive, got %d", c.MaxKeys))
	}

	if c.SweepInterval, err = dp.GetDuration(cfgKeySweepInterval); err != nil {
		return err
	}
	if c.SweepInterval <= 0 {
		return dp.WrapKeyErr(cfgKeySweepInterval, fmt.Errorf("must be positive, got %s", c.SweepInterval))
	}

	if c.IdleHorizon, err = dp.GetDuration(cfgKeyIdleHorizon); err != nil {
		return err
	}
	if c.IdleHorizon <= 0 {
		return dp.WrapKeyErr(cfgKeyIdleHorizon, fmt.Errorf("must be positive, got %s", c.IdleHorizon))
	}

	c.Zones = nil
	if err = dp.UnmarshalKey(cfgKeyZones, &c.Zones, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
	}); err != nil {
		return err
	}
	for zoneName, zone := range c.Zones {
		policy := Policy{ScopeName: zoneName, MaxRequests: zone.MaxRequests, Window: time.Duration(zone.Window)}
		if err = ValidatePolicy(policy); err != nil {
			return dp.WrapKeyErr(cfgKeyZones, fmt.Errorf("validate zone %q: %w", zoneName, err))
		}
	}

	return nil
}

// PolicyFor returns the policy of the named zone.
func (c *Config) PolicyFor(zoneName string) (Policy, bool) {
	zone, ok := c.Zones[zoneName]
	if !ok {
		return Policy{}, false
	}
	return Policy{ScopeName: zoneName, MaxRequests: zone.MaxRequests, Window: time.Duration(zone.Window)}, true
}

// LimiterOpts builds limiter options from the configuration.
func (c *Config) LimiterOpts() Opts {
	return Opts{MaxKeys: c.MaxKeys, SweepInterval: c.SweepInterval, IdleHorizon: c.IdleHorizon}
}
