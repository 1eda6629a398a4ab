/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/config"
)

const cfgDefaultKeyPrefix = "throttle"

const (
	cfgKeyDefaultRequestsPerSecond = "defaultProfile.requestsPerSecond"
	cfgKeyDefaultMaxConcurrent     = "defaultProfile.maxConcurrent"
	cfgKeyDefaultMaxRetries        = "defaultProfile.maxRetries"
	cfgKeyDefaultInitialBackoff    = "defaultProfile.initialBackoff"
	cfgKeyDefaultMaxBackoff        = "defaultProfile.maxBackoff"
	cfgKeyServices                 = "services"
)

// ProfileConfig describes pacing of calls to one external service.
// An empty profile means the default profile. In a partially set profile
// unset fields fall back to the built-in defaults, and maxRetries zero
// (or unset) disables retries for the service.
type ProfileConfig struct {
	RequestsPerSecond float64             `mapstructure:"requestsPerSecond" yaml:"requestsPerSecond" json:"requestsPerSecond"`
	MaxConcurrent     int                 `mapstructure:"maxConcurrent" yaml:"maxConcurrent" json:"maxConcurrent"`
	MaxRetries        int                 `mapstructure:"maxRetries" yaml:"maxRetries" json:"maxRetries"`
	InitialBackoff    config.TimeDuration `mapstructure:"initialBackoff" yaml:"initialBackoff" json:"initialBackoff"`
	MaxBackoff        config.TimeDuration `mapstructure:"maxBackoff" yaml:"maxBackoff" json:"maxBackoff"`
}

// Validate checks that all set fields are sane. Zero fields are allowed,
// they are filled from the default profile values later.
func (pc *ProfileConfig) Validate() error {
	if pc.RequestsPerSecond < 0 {
		return fmt.Errorf("requestsPerSecond should not be negative, got %v", pc.RequestsPerSecond)
	}
	if pc.MaxConcurrent < 0 {
		return fmt.Errorf("maxConcurrent should not be negative, got %d", pc.MaxConcurrent)
	}
	if pc.MaxRetries < 0 {
		return fmt.Errorf("maxRetries should not be negative, got %d", pc.MaxRetries)
	}
	if pc.InitialBackoff < 0 {
		return fmt.Errorf("initialBackoff should not be negative, got %s", time.Duration(pc.InitialBackoff))
	}
	if pc.MaxBackoff < 0 {
		return fmt.Errorf("maxBackoff should not be negative, got %s", time.Duration(pc.MaxBackoff))
	}
	if pc.InitialBackoff > 0 && pc.MaxBackoff > 0 && pc.MaxBackoff < pc.InitialBackoff {
		return fmt.Errorf("maxBackoff should not be less than initialBackoff, got %s < %s",
			time.Duration(pc.MaxBackoff), time.Duration(pc.InitialBackoff))
	}
	return nil
}

func (pc *ProfileConfig) toServiceProfile() ServiceProfile {
	return ServiceProfile{
		RequestsPerSecond: pc.RequestsPerSecond,
		MaxConcurrent:     pc.MaxConcurrent,
		MaxRetries:        pc.MaxRetries,
		InitialBackoff:    time.Duration(pc.InitialBackoff),
		MaxBackoff:        time.Duration(pc.MaxBackoff),
	}
}

// Config represents a set of configuration parameters for outbound call throttling.
type Config struct {
	// DefaultProfile is used for services missing from Services.
	DefaultProfile ProfileConfig

	// Services contains per-service pacing profiles. Key is a service's name,
	// and value is its profile.
	Services map[string]ProfileConfig

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
		keyPrefix: opts.keyPrefix,
		DefaultProfile: ProfileConfig{
			RequestsPerSecond: DefaultRequestsPerSecond,
			MaxConcurrent:     DefaultMaxConcurrent,
			MaxRetries:        DefaultMaxRetries,
			InitialBackoff:    config.TimeDuration(DefaultInitialBackoff),
			MaxBackoff:        config.TimeDuration(DefaultMaxBackoff),
		},
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

// SetProviderDefaults sets default configuration values for the throttler in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyDefaultRequestsPerSecond, DefaultRequestsPerSecond)
	dp.SetDefault(cfgKeyDefaultMaxConcurrent, DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyDefaultMaxRetries, DefaultMaxRetries)
	dp.SetDefault(cfgKeyDefaultInitialBackoff, DefaultInitialBackoff.String())
	dp.SetDefault(cfgKeyDefaultMaxBackoff, DefaultMaxBackoff.String())
}

// Set sets throttler configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.DefaultProfile.RequestsPerSecond, err = dp.GetFloat64(cfgKeyDefaultRequestsPerSecond); err != nil {
		return err
	}
	if c.DefaultProfile.MaxConcurrent, err = dp.GetInt(cfgKeyDefaultMaxConcurrent); err != nil {
		return err
	}
	if c.DefaultProfile.MaxRetries, err = dp.GetInt(cfgKeyDefaultMaxRetries); err != nil {
		return err
	}
	var initialBackoff time.Duration
	if initialBackoff, err = dp.GetDuration(cfgKeyDefaultInitialBackoff); err != nil {
		return err
	}
	c.DefaultProfile.InitialBackoff = config.TimeDuration(initialBackoff)
	var maxBackoff time.Duration
	if maxBackoff, err = dp.GetDuration(cfgKeyDefaultMaxBackoff); err != nil {
		return err
	}
	c.DefaultProfile.MaxBackoff = config.TimeDuration(maxBackoff)
	if err = c.DefaultProfile.Validate(); err != nil {
		return dp.WrapKeyErr("defaultProfile", err)
	}

	c.Services = nil
	if err = dp.UnmarshalKey(cfgKeyServices, &c.Services, func(dc *mapstructure.DecoderConfig) {
		dc.DecodeHook = mapstructure.TextUnmarshallerHookFunc()
	}); err != nil {
		return err
	}
	for serviceName, profile := range c.Services {
		if err = profile.Validate(); err != nil {
			return dp.WrapKeyErr(cfgKeyServices, fmt.Errorf("validate service %q: %w", serviceName, err))
		}
	}

	return nil
}

// ThrottlerOpts builds throttler options from the configuration.
func (c *Config) ThrottlerOpts() Opts {
	profiles := make(map[string]ServiceProfile, len(c.Services))
	for name, profile := range c.Services {
		profiles[name] = profile.toServiceProfile()
	}
	return Opts{
		DefaultProfile: c.DefaultProfile.toServiceProfile(),
		Profiles:       profiles,
	}
}
