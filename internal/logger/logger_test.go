package logger

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogDatabase(t *testing.T) {
	var out bytes.Buffer
	New(nil, &out).LogDatabase("MIGRATE", "schema_migrations", "Current schema version: 3 (dirty=false)")

	var entry LogEntry
	require.NoError(t, json.Unmarshal(out.Bytes(), &entry))
	assert.Equal(t, "INFO", entry.Level)
	assert.Equal(t, "DATABASE", entry.Category)
	assert.Equal(t, "[MIGRATE] schema_migrations - Current schema version: 3 (dirty=false)", entry.Message)
	assert.Equal(t, "logger_test.go", entry.File)
}

func TestSetLevelFiltersEntries(t *testing.T) {
	var out bytes.Buffer
	log := New(nil, &out)
	log.SetLevel("warn")

	log.Info("API", "dropped")
	log.Warn("API", "kept")

	assert.NotContains(t, out.String(), "dropped")
	assert.Contains(t, out.String(), "kept")
}

func TestNilLoggerIsSafe(t *testing.T) {
	var log *Logger
	assert.NotPanics(t, func() { log.LogDatabase("CONNECT", "speakers", "ok") })
}
