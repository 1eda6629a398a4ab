/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPrefixedLogger(t *testing.T) {
	delegate, ew := newCapturingLogger()
	logger := NewPrefixedLogger(delegate, "cron: ")

	logger.Info("schedule registered")
	logger.Errorf("submit failed: %s", "queue stopped")
	logger.AtLevel(LevelWarn, func(logFunc LogFunc) {
		logFunc("entry skipped")
	})

	require.Equal(t, []string{
		"cron: schedule registered",
		"cron: submit failed: queue stopped",
		"cron: entry skipped",
	}, ew.texts())

	withFields := logger.With(String("component", "scheduler"))
	withFields.Info("fields preserved")
	entry := ew.entries[len(ew.entries)-1]
	require.Equal(t, "cron: fields preserved", entry.Text)
	require.NotEmpty(t, entry.DerivedFields)
}
