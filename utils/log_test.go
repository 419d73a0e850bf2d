package utils

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]LogLevel{
		"trace":    TRACE,
		"DEBUG":    DEBUG,
		" info ":   INFO,
		"warning":  WARN,
		"error":    ERROR,
		"critical": CRITICAL,
		"verbose":  INFO,
	}
	for in, want := range tests {
		assert.Equal(t, want, ParseLevel(in), in)
	}
}

func TestLoggerFiltersByLevel(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	log := NewLogger(&buf, WARN)

	log.Debug("hidden %d", 1)
	log.Warn("shown %d", 2)
	log.SetMinLevel(TRACE)
	log.Trace("now visible")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "[WARN] shown 2")
	assert.Contains(t, out, "[TRACE] now visible")
	assert.True(t, log.Enabled(TRACE))
}

func TestNopLoggerDiscards(t *testing.T) {
	t.Parallel()

	log := NopLogger()
	assert.False(t, log.Enabled(CRITICAL))
	log.Critical("nothing")
	assert.NoError(t, log.Close())
}

func TestFileLoggerWritesAndCloses(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "brake.log")
	log, err := NewFileLogger(path, INFO, false)
	require.NoError(t, err)

	log.Info("session open profile=%s", "kia_niro")
	log.Debug("dropped")
	require.NoError(t, log.Close())
	require.NoError(t, log.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "[INFO] session open profile=kia_niro")

	_, err = NewFileLogger(" ", INFO, false)
	assert.Error(t, err)
}
