/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/config"
)

func loadLogConfigFromYAML(t *testing.T, yamlData string) (*Config, error) {
	t.Helper()
	cfg := NewConfig()
	err := config.NewDefaultLoader("").LoadFromReader(bytes.NewBufferString(yamlData), config.DataTypeYAML, cfg)
	return cfg, err
}

func TestConfigSet(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg, err := loadLogConfigFromYAML(t, "log: {}")
		require.NoError(t, err)
		require.Equal(t, NewDefaultConfig(), cfg)
	})

	t.Run("full config", func(t *testing.T) {
		cfg, err := loadLogConfigFromYAML(t, `
log:
  level: warn
  format: text
  output: file
  nocolor: true
  addCaller: true
  file:
    path: /var/log/scheduler-{{pid}}.log
    rotation:
      compress: true
      maxSize: 100M
      maxBackups: 5
      maxAgeDays: 7
      localTimeInNames: true
  error:
    noVerbose: true
    verboseSuffix: _details
`)
		require.NoError(t, err)
		require.Equal(t, LevelWarn, cfg.Level)
		require.Equal(t, FormatText, cfg.Format)
		require.Equal(t, OutputFile, cfg.Output)
		require.True(t, cfg.NoColor)
		require.True(t, cfg.AddCaller)
		require.Equal(t, "/var/log/scheduler-{{pid}}.log", cfg.File.Path)
		require.True(t, cfg.File.Rotation.Compress)
		require.Equal(t, config.ByteSize(100*1024*1024), cfg.File.Rotation.MaxSize)
		require.Equal(t, 5, cfg.File.Rotation.MaxBackups)
		require.Equal(t, 7, cfg.File.Rotation.MaxAgeDays)
		require.True(t, cfg.File.Rotation.LocalTimeInNames)
		require.True(t, cfg.Error.NoVerbose)
		require.Equal(t, "_details", cfg.Error.VerboseSuffix)
	})

	t.Run("level is case-insensitive", func(t *testing.T) {
		cfg, err := loadLogConfigFromYAML(t, "log:\n  level: WARN")
		require.NoError(t, err)
		require.Equal(t, LevelWarn, cfg.Level)
	})

	t.Run("unknown level", func(t *testing.T) {
		_, err := loadLogConfigFromYAML(t, "log:\n  level: verbose")
		require.ErrorContains(t, err, "log.level")
	})

	t.Run("unknown output", func(t *testing.T) {
		_, err := loadLogConfigFromYAML(t, "log:\n  output: syslog")
		require.ErrorContains(t, err, "log.output")
	})

	t.Run("file output requires path", func(t *testing.T) {
		_, err := loadLogConfigFromYAML(t, "log:\n  output: file")
		require.ErrorContains(t, err, "log.file.path")
	})

	t.Run("rotation maxSize lower bound", func(t *testing.T) {
		_, err := loadLogConfigFromYAML(t, `
log:
  file:
    rotation:
      maxSize: 100K
`)
		require.ErrorContains(t, err, "log.file.rotation.maxSize")
	})

	t.Run("custom key prefix", func(t *testing.T) {
		cfg := NewConfig(WithKeyPrefix("scheduler.log"))
		err := config.NewDefaultLoader("").LoadFromReader(
			bytes.NewBufferString("scheduler:\n  log:\n    level: debug"), config.DataTypeYAML, cfg)
		require.NoError(t, err)
		require.Equal(t, LevelDebug, cfg.Level)
	})
}
