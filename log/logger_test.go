/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package log

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/ssgreg/logf"
	"github.com/stretchr/testify/require"
)

type capturingEntryWriter struct {
	mu      sync.Mutex
	entries []logf.Entry
}

//nolint:gocritic
func (w *capturingEntryWriter) WriteEntry(e logf.Entry) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.entries = append(w.entries, e)
}

func (w *capturingEntryWriter) texts() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	res := make([]string, 0, len(w.entries))
	for _, e := range w.entries {
		res = append(res, e.Text)
	}
	return res
}

func newCapturingLogger() (*LogfAdapter, *capturingEntryWriter) {
	ew := &capturingEntryWriter{}
	return &LogfAdapter{Logger: logf.NewLogger(logf.LevelDebug, ew)}, ew
}

func TestLogfAdapterFormattedLogging(t *testing.T) {
	logger, ew := newCapturingLogger()

	logger.Debugf("dispatching %d jobs", 3)
	logger.Infof("queue %q started", "main")
	logger.Warnf("slot wait took %dms", 150)
	logger.Errorf("handler failed: %v", os.ErrDeadlineExceeded)

	require.Equal(t, []string{
		"dispatching 3 jobs",
		`queue "main" started`,
		"slot wait took 150ms",
		"handler failed: " + os.ErrDeadlineExceeded.Error(),
	}, ew.texts())
}

func TestLogfAdapterAtLevel(t *testing.T) {
	logger, ew := newCapturingLogger()

	called := false
	logger.AtLevel(LevelInfo, func(logFunc LogFunc) {
		called = true
		logFunc("admission denied", String("scope", "api"))
	})
	require.True(t, called)
	require.Equal(t, []string{"admission denied"}, ew.texts())

	limited := logger.WithLevel(LevelError)
	limited.Info("should be dropped")
	limited.AtLevel(LevelDebug, func(logFunc LogFunc) {
		t.Fatal("callback must not be called for a disabled level")
	})
	limited.Error("kept")
	require.Equal(t, []string{"admission denied", "kept"}, ew.texts())
}

func TestNewLoggerFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "scheduler-{{pid}}.log")

	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.Format = FormatJSON
	cfg.File.Path = logFile

	logger, closeFn := NewLogger(cfg)
	logger.Info("job completed", String("job_type", "tv-guide-refresh"), Int("attempts", 1))
	closeFn()

	resolvedPath := resolvePlaceholders(logFile)
	require.NotEqual(t, logFile, resolvedPath)

	data, err := os.ReadFile(resolvedPath)
	require.NoError(t, err)
	content := string(data)
	require.Contains(t, content, `"msg":"job completed"`)
	require.Contains(t, content, `"job_type":"tv-guide-refresh"`)
	require.Contains(t, content, `"pid":`)
}

func TestNewLoggerTextFormat(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "scheduler.log")

	cfg := NewDefaultConfig()
	cfg.Output = OutputFile
	cfg.Format = FormatText
	cfg.NoColor = true
	cfg.File.Path = logFile

	logger, closeFn := NewLogger(cfg)
	logger.Warn("rate limit exceeded", String("identifier", "10.0.0.5"))
	closeFn()

	data, err := os.ReadFile(logFile)
	require.NoError(t, err)
	require.True(t, strings.Contains(string(data), "rate limit exceeded"))
	require.True(t, strings.Contains(string(data), "10.0.0.5"))
}

func TestDurationInField(t *testing.T) {
	f := DurationIn(1500*1000*1000, 1000*1000) // 1.5s in ms
	require.Equal(t, "duration", f.Key)
	require.Equal(t, int64(1500), f.Int)
}
