/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import "reflect"

// Config is implemented by configuration objects that can be populated by Loader.
// SetProviderDefaults registers default values in the data provider,
// Set reads the final values back. Both are called by Loader in that order.
type Config interface {
	SetProviderDefaults(dp DataProvider)
	Set(dp DataProvider) error
}

// KeyPrefixProvider is implemented by configuration objects whose keys
// live under a common prefix (for example "jobqueue" or "ratelimit").
type KeyPrefixProvider interface {
	KeyPrefix() string
}

// CallSetProviderDefaultsForFields calls SetProviderDefaults on every exported,
// non-nil field of obj that implements Config. Fields implementing KeyPrefixProvider
// get a data provider scoped to their prefix.
func CallSetProviderDefaultsForFields(obj interface{}, dp DataProvider) {
	_ = forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		c.SetProviderDefaults(cDp)
		return nil
	})
}

// CallSetForFields calls Set on every exported, non-nil field of obj that
// implements Config, stopping at the first error.
func CallSetForFields(obj interface{}, dp DataProvider) error {
	return forEachConfigField(obj, dp, func(c Config, cDp DataProvider) error {
		return c.Set(cDp)
	})
}

func forEachConfigField(obj interface{}, dp DataProvider, fn func(c Config, cDp DataProvider) error) error {
	el := reflect.ValueOf(obj).Elem()
	for i := 0; i < el.NumField(); i++ {
		if !el.Type().Field(i).IsExported() {
			continue
		}
		v := el.Field(i).Interface()
		if reflect.ValueOf(v).Kind() == reflect.Ptr && reflect.ValueOf(v).IsNil() {
			continue
		}
		c, ok := v.(Config)
		if !ok {
			continue
		}
		cDp := dp
		if kp, ok := v.(KeyPrefixProvider); ok && kp.KeyPrefix() != "" {
			cDp = NewKeyPrefixedDataProvider(dp, kp.KeyPrefix())
		}
		if err := fn(c, cDp); err != nil {
			return err
		}
	}
	return nil
}
