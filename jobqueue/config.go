/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package jobqueue

import (
	"fmt"
	"time"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/config"
)

const cfgDefaultKeyPrefix = "jobQueue"

const (
	cfgKeyMaxConcurrent      = "maxConcurrent"
	cfgKeyDispatchInterval   = "dispatchInterval"
	cfgKeyJobTimeout         = "jobTimeout"
	cfgKeyDefaultMaxAttempts = "defaultMaxAttempts"
	cfgKeyRetryDelay         = "retryDelay"
	cfgKeyRetryBackoff       = "retryBackoff"
	cfgKeyMaxCompletedJobs   = "maxCompletedJobs"
	cfgKeyRetentionInterval  = "retentionInterval"
)

// Config represents a set of configuration parameters for the job queue.
type Config struct {
	// MaxConcurrent bounds the number of jobs processed simultaneously.
	MaxConcurrent int

	// DispatchInterval is the cadence of the periodic dispatch.
	DispatchInterval time.Duration

	// JobTimeout bounds a single execution attempt.
	JobTimeout time.Duration

	// DefaultMaxAttempts is applied to jobs submitted without an explicit cap.
	DefaultMaxAttempts int

	// RetryDelay is the delay before the first retry of a failed job.
	RetryDelay time.Duration

	// RetryBackoff is the growth factor of consecutive retry delays.
	RetryBackoff float64

	// MaxCompletedJobs bounds how many completed jobs the retention sweep keeps.
	MaxCompletedJobs int

	// RetentionInterval is the cadence of the retention sweep.
	RetentionInterval time.Duration

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
		keyPrefix:          opts.keyPrefix,
		MaxConcurrent:      DefaultMaxConcurrent,
		DispatchInterval:   DefaultDispatchInterval,
		JobTimeout:         DefaultJobTimeout,
		DefaultMaxAttempts: DefaultMaxAttempts,
		RetryDelay:         DefaultRetryDelay,
		RetryBackoff:       DefaultRetryBackoff,
		MaxCompletedJobs:   DefaultMaxCompletedJobs,
		RetentionInterval:  DefaultRetentionInterval,
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

// SetProviderDefaults sets default configuration values for the job queue in config.DataProvider.
// Implements config.Config interface.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyMaxConcurrent, DefaultMaxConcurrent)
	dp.SetDefault(cfgKeyDispatchInterval, DefaultDispatchInterval.String())
	dp.SetDefault(cfgKeyJobTimeout, DefaultJobTimeout.String())
	dp.SetDefault(cfgKeyDefaultMaxAttempts, DefaultMaxAttempts)
	dp.SetDefault(cfgKeyRetryDelay, DefaultRetryDelay.String())
	dp.SetDefault(cfgKeyRetryBackoff, DefaultRetryBackoff)
	dp.SetDefault(cfgKeyMaxCompletedJobs, DefaultMaxCompletedJobs)
	dp.SetDefault(cfgKeyRetentionInterval, DefaultRetentionInterval.String())
}

// Set sets job queue configuration values from config.DataProvider.
// Implements config.Config interface.
func (c *Config) Set(dp config.DataProvider) error {
	var err error

	if c.MaxConcurrent, err = dp.GetInt(cfgKeyMaxConcurrent); err != nil {
		return err
	}
	if c.MaxConcurrent <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxConcurrent, fmt.Errorf("must be positive, got %d", c.MaxConcurrent))
	}

	if c.DispatchInterval, err = dp.GetDuration(cfgKeyDispatchInterval); err != nil {
		return err
	}
	if c.DispatchInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyDispatchInterval, fmt.Errorf("must be positive, got %s", c.DispatchInterval))
	}

	if c.JobTimeout, err = dp.GetDuration(cfgKeyJobTimeout); err != nil {
		return err
	}
	if c.JobTimeout <= 0 {
		return dp.WrapKeyErr(cfgKeyJobTimeout, fmt.Errorf("must be positive, got %s", c.JobTimeout))
	}

	if c.DefaultMaxAttempts, err = dp.GetInt(cfgKeyDefaultMaxAttempts); err != nil {
		return err
	}
	if c.DefaultMaxAttempts <= 0 {
		return dp.WrapKeyErr(cfgKeyDefaultMaxAttempts, fmt.Errorf("must be positive, got %d", c.DefaultMaxAttempts))
	}

	if c.RetryDelay, err = dp.GetDuration(cfgKeyRetryDelay); err != nil {
		return err
	}
	if c.RetryDelay <= 0 {
		return dp.WrapKeyErr(cfgKeyRetryDelay, fmt.Errorf("must be positive, got %s", c.RetryDelay))
	}

	if c.RetryBackoff, err = dp.GetFloat64(cfgKeyRetryBackoff); err != nil {
		return err
	}
	if c.RetryBackoff < 1 {
		return dp.WrapKeyErr(cfgKeyRetryBackoff, fmt.Errorf("must be at least 1, got %v", c.RetryBackoff))
	}

	if c.MaxCompletedJobs, err = dp.GetInt(cfgKeyMaxCompletedJobs); err != nil {
		return err
	}
	if c.MaxCompletedJobs <= 0 {
		return dp.WrapKeyErr(cfgKeyMaxCompletedJobs, fmt.Errorf("must be positive, got %d", c.MaxCompletedJobs))
	}

	if c.RetentionInterval, err = dp.GetDuration(cfgKeyRetentionInterval); err != nil {
		return err
	}
	if c.RetentionInterval <= 0 {
		return dp.WrapKeyErr(cfgKeyRetentionInterval, fmt.Errorf("must be positive, got %s", c.RetentionInterval))
	}

	return nil
}

// QueueOpts builds queue options from the configuration.
func (c *Config) QueueOpts() Opts {
	return Opts{
		MaxConcurrent:      c.MaxConcurrent,
		DispatchInterval:   c.DispatchInterval,
		JobTimeout:         c.JobTimeout,
		DefaultMaxAttempts: c.DefaultMaxAttempts,
		RetryDelay:         c.RetryDelay,
		RetryBackoff:       c.RetryBackoff,
		MaxCompletedJobs:   c.MaxCompletedJobs,
		RetentionInterval:  c.RetentionInterval,
	}
}
