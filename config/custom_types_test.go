/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestTimeDurationUnmarshal(t *testing.T) {
	type holder struct {
		Timeout TimeDuration `json:"timeout" yaml:"timeout"`
	}

	t.Run("json", func(t *testing.T) {
		tests := []struct {
			data    string
			want    time.Duration
			wantErr string
		}{
			{data: `{"timeout": "30s"}`, want: 30 * time.Second},
			{data: `{"timeout": "1h30m"}`, want: 90 * time.Minute},
			{data: `{"timeout": 1000000}`, want: time.Millisecond},
			{data: `{"timeout": "-5s"}`, want: -5 * time.Second},
			{data: `{"timeout": -42}`, wantErr: "negative value is not allowed"},
			{data: `{"timeout": "1 parsec"}`, wantErr: "invalid time duration format"},
		}
		for _, tt := range tests {
			var h holder
			err := json.Unmarshal([]byte(tt.data), &h)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				continue
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, time.Duration(h.Timeout))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var h holder
		require.NoError(t, yaml.Unmarshal([]byte("timeout: 45s"), &h))
		require.Equal(t, 45*time.Second, time.Duration(h.Timeout))

		require.NoError(t, yaml.Unmarshal([]byte("timeout: 500"), &h))
		require.Equal(t, 500*time.Nanosecond, time.Duration(h.Timeout))

		require.Error(t, yaml.Unmarshal([]byte("timeout: tomorrow"), &h))
	})

	t.Run("text", func(t *testing.T) {
		var d TimeDuration
		require.NoError(t, d.UnmarshalText([]byte("250ms")))
		require.Equal(t, 250*time.Millisecond, time.Duration(d))
		require.Equal(t, "250ms", d.String())
	})
}

func TestByteSizeUnmarshal(t *testing.T) {
	type holder struct {
		MaxSize ByteSize `json:"maxSize" yaml:"maxSize"`
	}

	t.Run("json", func(t *testing.T) {
		tests := []struct {
			data    string
			want    uint64
			wantErr string
		}{
			{data: `{"maxSize": "1K"}`, want: 1024},
			{data: `{"maxSize": "10M"}`, want: 10 * 1024 * 1024},
			{data: `{"maxSize": "1Gi"}`, want: 1024 * 1024 * 1024},
			{data: `{"maxSize": 2048}`, want: 2048},
			{data: `{"maxSize": -1}`, wantErr: "negative value is not allowed"},
			{data: `{"maxSize": "many"}`, wantErr: "invalid byte size format"},
		}
		for _, tt := range tests {
			var h holder
			err := json.Unmarshal([]byte(tt.data), &h)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				continue
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, uint64(h.MaxSize))
		}
	})

	t.Run("yaml", func(t *testing.T) {
		var h holder
		require.NoError(t, yaml.Unmarshal([]byte("maxSize: 256M"), &h))
		require.Equal(t, uint64(256*1024*1024), uint64(h.MaxSize))

		require.NoError(t, yaml.Unmarshal([]byte("maxSize: 4096"), &h))
		require.Equal(t, uint64(4096), uint64(h.MaxSize))
	})
}
