package logging

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLevels(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, false).Debug("hidden")
	assert.Empty(t, buf.String())

	New(&buf, false).Info("pipeline: started", "zones", 8)
	out := buf.String()
	assert.Contains(t, out, "pipeline: started")
	assert.Contains(t, out, "zones=8")
	assert.NotContains(t, out, "\x1b[", "no colors outside a terminal")

	buf.Reset()
	New(&buf, true).Debug("visible")
	assert.Contains(t, buf.String(), "visible")
	assert.Contains(t, buf.String(), "logging_test.go")
}

func TestOpenFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.log")
	logger, f, err := OpenFile(path, false)
	require.NoError(t, err)
	logger.Warn("serial: link lost")
	require.NoError(t, f.Close())

	logger, f, err = OpenFile(path, false)
	require.NoError(t, err)
	logger.Info("appended")
	require.NoError(t, f.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "serial: link lost")
	assert.Contains(t, string(data), "appended")
}
