package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	c := Defaults("/tmp/trek")
	require.NoError(t, c.Validate())
	assert.Equal(t, 150, c.Orchestrator.RecursionLimit)
	assert.Equal(t, 5*time.Minute, c.Timeout())
	assert.Equal(t, 24*time.Hour, c.CacheTTL())
	assert.Equal(t, 3, c.Jobs.Attempts)
	assert.Equal(t, 2*time.Second, c.Backoff())
	assert.Equal(t, 1, c.Jobs.Concurrency)
	assert.Equal(t, filepath.Join("/tmp/trek", "trek.db"), c.DBPath)
}

func TestLoadFileOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
orchestrator:
  recursion_limit: 12
  tools_enabled: false
jobs:
  attempts: 5
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0644))

	c := Defaults(dir)
	require.NoError(t, c.LoadFile(path))
	assert.Equal(t, 12, c.Orchestrator.RecursionLimit)
	assert.False(t, c.Orchestrator.ToolsEnabled)
	assert.Equal(t, 5, c.Jobs.Attempts)
	assert.Equal(t, 300000, c.Orchestrator.TimeoutMs)
}

func TestNewReadsEnvironment(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("TREK_DATA_DIR", dir)
	t.Setenv("TREK_CONFIG", filepath.Join(dir, "missing.yaml"))
	t.Setenv("TAVILY_API_KEY", "tvly-test")
	t.Setenv("TREK_TOOLS_ENABLED", "false")

	c, err := New()
	require.NoError(t, err)
	assert.Equal(t, dir, c.DataDir)
	assert.Equal(t, "tvly-test", c.Search.APIKey)
	assert.False(t, c.Orchestrator.ToolsEnabled)
}

func TestValidateRejectsBadLimits(t *testing.T) {
	c := Defaults("/tmp/trek")
	c.Orchestrator.RecursionLimit = 0
	assert.Error(t, c.Validate())

	c = Defaults("/tmp/trek")
	c.Jobs.Attempts = 0
	assert.Error(t, c.Validate())
}
