/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"io"
)

// Loader populates configuration objects from a data provider:
// first it lets every object register its defaults, then sets final values.
type Loader struct {
	DataProvider DataProvider
}

// NewDefaultLoader creates a new configuration loader with the ability
// to read values from environment variables with the given prefix.
func NewDefaultLoader(envVarsPrefix string) *Loader {
	va := NewViperAdapter()
	va.UseEnvVars(envVarsPrefix)
	return NewLoader(va)
}

// NewLoader creates a new configuration loader.
func NewLoader(dp DataProvider) *Loader {
	return &Loader{dp}
}

// LoadFromFile loads configuration values from a file and sets them in configuration objects.
func (l *Loader) LoadFromFile(path string, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromFile(path, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

// LoadFromReader loads configuration values from a reader and sets them in configuration objects.
func (l *Loader) LoadFromReader(reader io.Reader, dataType DataType, cfg Config, cfgs ...Config) error {
	if err := l.DataProvider.SetFromReader(reader, dataType); err != nil {
		return err
	}
	return l.load(append([]Config{cfg}, cfgs...))
}

func (l *Loader) load(cfgs []Config) error {
	for _, cfg := range cfgs {
		cfg.SetProviderDefaults(l.dataProviderFor(cfg))
	}
	for _, cfg := range cfgs {
		if err := cfg.Set(l.dataProviderFor(cfg)); err != nil {
			return err
		}
	}
	return nil
}

// dataProviderFor wraps the loader's data provider with the object's key prefix when it declares one.
func (l *Loader) dataProviderFor(cfg Config) DataProvider {
	if kpHolder, ok := cfg.(KeyPrefixProvider); ok && kpHolder.KeyPrefix() != "" {
		return NewKeyPrefixedDataProvider(l.DataProvider, kpHolder.KeyPrefix())
	}
	return l.DataProvider
}
