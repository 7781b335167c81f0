package logflags

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestSetup_Level verifies the level applies to every layer logger.
func TestSetup_Level(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer Close()

	require.NoError(t, Setup("warn", ""))
	SessionLogger().Info("hidden")
	BreakpointsLogger().Warn("shown")

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, "shown")
	assert.Contains(t, out, "layer=breakpoints")

	require.NoError(t, Setup("info", ""))
}

// TestSetup_InvalidLevel verifies an unknown level is rejected.
func TestSetup_InvalidLevel(t *testing.T) {
	err := Setup("chatty", "")
	assert.Error(t, err)
}

// TestSetup_LogFile verifies output can be redirected to a file.
func TestSetup_LogFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dapctl.log")
	require.NoError(t, Setup("", path))
	DAPLogger().Info("to file")
	assert.NoError(t, Close())
	assert.FileExists(t, path)
}
