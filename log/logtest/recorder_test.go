/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package logtest

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/dfultonthebar/Sports-Bar-TV-Controller-sub012/log"
)

func TestRecorder(t *testing.T) {
	recorder := NewRecorder()
	recorder.Info("job added", log.String("job_id", "42"), log.String("job_type", "echo"))
	recorder.With(log.String("service", "espn-api")).Warn("request retried")

	entries := recorder.Entries()
	require.Len(t, entries, 2)

	entry, found := recorder.FindEntry("job added")
	require.True(t, found)
	require.Equal(t, log.LevelInfo, entry.Level)
	field, found := entry.FindField("job_type")
	require.True(t, found)
	require.Equal(t, "echo", string(field.Bytes))

	entry, found = recorder.FindEntryByFilter(func(e RecordedEntry) bool {
		return e.Level == log.LevelWarn
	})
	require.True(t, found)
	require.Equal(t, "request retried", entry.Text)
	_, found = entry.FindField("service")
	require.True(t, found)

	recorder.Reset()
	require.Empty(t, recorder.Entries())
}
