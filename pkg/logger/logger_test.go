package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_RejectsUnknownLevel(t *testing.T) {
	_, err := NewLogger(Config{Level: "loud"})
	assert.Error(t, err)
}

func TestNewLogger_WritesRotatedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cadence.log")

	log, err := NewLogger(Config{Level: "debug", Format: "json", Timezone: "UTC", File: FileConfig{Path: path}})
	require.NoError(t, err)

	log.Info("Publish run finished")
	_ = log.Sync()

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"message":"Publish run finished"`)
	assert.Contains(t, string(data), `"level":"info"`)
}
