/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testSchedulerConfigYAML = `
jobqueue:
  maxConcurrentJobs: 5
  jobTimeout: 45s
ratelimit:
  sweepInterval: 2m
log:
  level: warn
  file:
    rotation:
      maxSize: 256M
`

const testSchedulerConfigJSON = `
{
	"jobqueue": {
		"maxConcurrentJobs": 5,
		"jobTimeout": "45s"
	},
	"ratelimit": {
		"sweepInterval": "2m"
	},
	"log": {
		"level": "warn",
		"file": {"rotation": {"maxSize": "256M"}}
	}
}
`

func TestViperAdapterSetFromReader(t *testing.T) {
	t.Run("yaml", func(t *testing.T) {
		va := NewViperAdapter()
		require.NoError(t, va.SetFromReader(bytes.NewBufferString(testSchedulerConfigYAML), DataTypeYAML))

		maxJobs, err := va.GetInt("jobqueue.maxConcurrentJobs")
		require.NoError(t, err)
		require.Equal(t, 5, maxJobs)

		jobTimeout, err := va.GetDuration("jobqueue.jobTimeout")
		require.NoError(t, err)
		require.Equal(t, 45*time.Second, jobTimeout)
	})

	t.Run("json", func(t *testing.T) {
		va := NewViperAdapter()
		require.NoError(t, va.SetFromReader(bytes.NewBufferString(testSchedulerConfigJSON), DataTypeJSON))

		maxJobs, err := va.GetInt("jobqueue.maxConcurrentJobs")
		require.NoError(t, err)
		require.Equal(t, 5, maxJobs)

		sweep, err := va.GetDuration("ratelimit.sweepInterval")
		require.NoError(t, err)
		require.Equal(t, 2*time.Minute, sweep)
	})
}

func TestViperAdapterUseEnvVars(t *testing.T) {
	require.NoError(t, os.Setenv("SBC_TEST_LOG_LEVEL", "error"))
	defer func() {
		require.NoError(t, os.Unsetenv("SBC_TEST_LOG_LEVEL"))
	}()

	va := NewViperAdapter()
	va.UseEnvVars("sbc_test")

	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testSchedulerConfigYAML), DataTypeYAML))

	level, err := va.GetString("log.level")
	require.NoError(t, err)
	require.Equal(t, "error", level)
}

func TestViperAdapterTypedGetters(t *testing.T) {
	va := NewViperAdapter()
	va.Set("enabled", true)
	va.Set("count", 42)
	va.Set("rate", 1.5)
	va.Set("name", "guide")
	va.Set("interval", "500ms")
	va.Set("size", "1Ki")
	va.Set("labels", map[string]interface{}{"env": "prod"})
	va.Set("tags", []string{"tv", "audio"})

	enabled, err := va.GetBool("enabled")
	require.NoError(t, err)
	require.True(t, enabled)

	count, err := va.GetInt("count")
	require.NoError(t, err)
	require.Equal(t, 42, count)

	rate, err := va.GetFloat64("rate")
	require.NoError(t, err)
	require.Equal(t, 1.5, rate)

	name, err := va.GetStringFromSet("name", []string{"guide", "scores"}, false)
	require.NoError(t, err)
	require.Equal(t, "guide", name)

	_, err = va.GetStringFromSet("name", []string{"scores"}, false)
	require.ErrorContains(t, err, "should be one of")

	interval, err := va.GetDuration("interval")
	require.NoError(t, err)
	require.Equal(t, 500*time.Millisecond, interval)

	size, err := va.GetSizeInBytes("size")
	require.NoError(t, err)
	require.Equal(t, uint64(1024), size)

	labels, err := va.GetStringMapString("labels")
	require.NoError(t, err)
	require.Equal(t, map[string]string{"env": "prod"}, labels)

	tags, err := va.GetStringSlice("tags")
	require.NoError(t, err)
	require.Equal(t, []string{"tv", "audio"}, tags)

	_, err = va.GetInt("name")
	require.ErrorContains(t, err, "name")
}

func TestKeyPrefixedDataProvider(t *testing.T) {
	va := NewViperAdapter()
	require.NoError(t, va.SetFromReader(bytes.NewBufferString(testSchedulerConfigYAML), DataTypeYAML))

	dp := NewKeyPrefixedDataProvider(va, "jobqueue")
	require.True(t, dp.IsSet("maxConcurrentJobs"))

	maxJobs, err := dp.GetInt("maxConcurrentJobs")
	require.NoError(t, err)
	require.Equal(t, 5, maxJobs)

	dp.SetDefault("retryDelay", "1s")
	retryDelay, err := dp.GetDuration("retryDelay")
	require.NoError(t, err)
	require.Equal(t, time.Second, retryDelay)

	err = dp.WrapKeyErr("jobTimeout", os.ErrInvalid)
	require.ErrorContains(t, err, "jobqueue.jobTimeout")
}

type testSubConfig struct {
	prefix string
	Name   string
}

func (c *testSubConfig) KeyPrefix() string {
	return c.prefix
}

func (c *testSubConfig) SetProviderDefaults(dp DataProvider) {
	dp.SetDefault("name", "fallback")
}

func (c *testSubConfig) Set(dp DataProvider) (err error) {
	c.Name, err = dp.GetString("name")
	return err
}

type testAppConfig struct {
	Queue   *testSubConfig
	Limiter *testSubConfig
}

func (c *testAppConfig) SetProviderDefaults(dp DataProvider) {
	CallSetProviderDefaultsForFields(c, dp)
}

func (c *testAppConfig) Set(dp DataProvider) error {
	return CallSetForFields(c, dp)
}

func TestLoaderLoadFromReader(t *testing.T) {
	cfg := &testAppConfig{
		Queue:   &testSubConfig{prefix: "queue"},
		Limiter: &testSubConfig{prefix: "limiter"},
	}
	loader := NewDefaultLoader("")
	err := loader.LoadFromReader(bytes.NewBufferString("queue:\n  name: dispatcher\n"), DataTypeYAML, cfg)
	require.NoError(t, err)
	require.Equal(t, "dispatcher", cfg.Queue.Name)
	require.Equal(t, "fallback", cfg.Limiter.Name, "defaults should apply when the key is absent")
}

func TestLoaderLoadFromFile(t *testing.T) {
	fname := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(fname, []byte(testSchedulerConfigYAML), 0o600))

	cfg := &testSubConfig{prefix: "log"}
	cfg2 := &testSubConfig{prefix: "missing"}
	loader := NewDefaultLoader("")

	require.NoError(t, loader.LoadFromFile(fname, DataTypeYAML, cfg, cfg2))
	require.Equal(t, "fallback", cfg.Name)
	require.Equal(t, "fallback", cfg2.Name)
}
