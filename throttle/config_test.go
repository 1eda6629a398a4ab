/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package throttle

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/config"
)

func loadThrottleConfigFromYAML(t *testing.T, yamlData string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(yamlData), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfigSet(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadThrottleConfigFromYAML(t, "throttle: {}")
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("full config", func(t *testing.T) {
		cfg, err := loadThrottleConfigFromYAML(t, `
throttle:
  defaultProfile:
    requestsPerSecond: 10
    maxConcurrent: 5
    maxRetries: 1
    initialBackoff: 500ms
    maxBackoff: 10s
  services:
    espn-api:
      requestsPerSecond: 2
      maxConcurrent: 2
      maxRetries: 3
      initialBackoff: 1s
      maxBackoff: 30s
    ai-inference:
      requestsPerSecond: 0.5
      maxConcurrent: 1
`)
		require.NoError(t, err)
		require.Equal(t, ProfileConfig{
			RequestsPerSecond: 10,
			MaxConcurrent:     5,
			MaxRetries:        1,
			InitialBackoff:    config.TimeDuration(time.Millisecond * 500),
			MaxBackoff:        config.TimeDuration(time.Second * 10),
		}, cfg.DefaultProfile)
		require.Len(t, cfg.Services, 2)
		require.Equal(t, ProfileConfig{
			RequestsPerSecond: 2,
			MaxConcurrent:     2,
			MaxRetries:        3,
			InitialBackoff:    config.TimeDuration(time.Second),
			MaxBackoff:        config.TimeDuration(time.Second * 30),
		}, cfg.Services["espn-api"])
		require.Equal(t, ProfileConfig{RequestsPerSecond: 0.5, MaxConcurrent: 1}, cfg.Services["ai-inference"])

		opts := cfg.ThrottlerOpts()
		require.Equal(t, ServiceProfile{
			RequestsPerSecond: 10,
			MaxConcurrent:     5,
			MaxRetries:        1,
			InitialBackoff:    time.Millisecond * 500,
			MaxBackoff:        time.Second * 10,
		}, opts.DefaultProfile)
		require.Equal(t, ServiceProfile{RequestsPerSecond: 0.5, MaxConcurrent: 1}, opts.Profiles["ai-inference"])
	})

	t.Run("negative requestsPerSecond", func(t *testing.T) {
		_, err := loadThrottleConfigFromYAML(t, "throttle:\n  defaultProfile:\n    requestsPerSecond: -1")
		require.ErrorContains(t, err, "throttle.defaultProfile")
		require.ErrorContains(t, err, "requestsPerSecond should not be negative")
	})

	t.Run("service with maxBackoff below initialBackoff", func(t *testing.T) {
		_, err := loadThrottleConfigFromYAML(t, `
throttle:
  services:
    espn-api:
      initialBackoff: 10s
      maxBackoff: 1s
`)
		require.ErrorContains(t, err, "throttle.services")
		require.ErrorContains(t, err, `service "espn-api"`)
		require.ErrorContains(t, err, "maxBackoff should not be less than initialBackoff")
	})

	t.Run("service with negative maxRetries", func(t *testing.T) {
		_, err := loadThrottleConfigFromYAML(t, "throttle:\n  services:\n    espn-api:\n      maxRetries: -2")
		require.ErrorContains(t, err, "maxRetries should not be negative")
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("scheduler.throttle"))
		err := config.NewDefaultLoader("").LoadFromReader(
			bytes.NewBufferString("scheduler:\n  throttle:\n    defaultProfile:\n      requestsPerSecond: 7"),
			config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, 7.0, cfg.DefaultProfile.RequestsPerSecond)
	})
}
