package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func healthyConfig(t *testing.T) *Config {
	t.Helper()
	dir := t.TempDir()

	source := filepath.Join(dir, "projects")
	require.NoError(t, os.MkdirAll(source, 0755))
	catalog := filepath.Join(dir, "Projects.db3")
	require.NoError(t, os.WriteFile(catalog, []byte{}, 0644))
	tool := filepath.Join(dir, "RevitServerTool")
	require.NoError(t, os.WriteFile(tool, []byte{}, 0755))

	c := &Config{
		Source:          source,
		Target:          filepath.Join(dir, "backup"),
		DBLocation:      catalog,
		ServerName:      "rs01",
		ToolPath:        tool,
		TempFolder:      filepath.Join(dir, "tmp"),
		SnapshotTimeout: 1,
	}
	c.SetDefaults()
	return c
}

func TestHealthChecker_Healthy(t *testing.T) {
	result := NewHealthChecker(healthyConfig(t)).RunHealthCheck()

	assert.Equal(t, HealthHealthy, result.OverallHealth)
	assert.Empty(t, result.Issues)
	for _, component := range []string{"configuration", "source", "catalog", "tool", "temp_folder", "target"} {
		assert.Equal(t, HealthHealthy, result.ComponentStatus[component], component)
	}
}

func TestHealthChecker_MissingTool(t *testing.T) {
	c := healthyConfig(t)
	c.ToolPath = filepath.Join(t.TempDir(), "absent.exe")

	result := NewHealthChecker(c).RunHealthCheck()

	assert.Equal(t, HealthUnhealthy, result.OverallHealth)
	assert.Equal(t, HealthUnhealthy, result.ComponentStatus["tool"])
	require.Len(t, result.Issues, 1)
	assert.Contains(t, result.Issues[0], "tool:")
}

func TestHealthChecker_InvalidConfig(t *testing.T) {
	c := healthyConfig(t)
	c.Source = ""

	result := NewHealthChecker(c).RunHealthCheck()

	assert.Equal(t, HealthUnhealthy, result.OverallHealth)
	assert.Equal(t, HealthUnhealthy, result.ComponentStatus["configuration"])
	_, checked := result.ComponentStatus["source"]
	assert.False(t, checked)
}

func TestHealthChecker_MissingPassphraseDegrades(t *testing.T) {
	c := healthyConfig(t)
	c.Upload = UploadConfig{
		Enabled:    true,
		Provider:   UploadProviderLocal,
		Local:      LocalConfig{BasePath: t.TempDir()},
		Encryption: EncryptionConfig{Enabled: true, PassphraseEnvVar: "TEST_REVIT_HEALTH_PASSPHRASE"},
	}
	t.Setenv("TEST_REVIT_HEALTH_PASSPHRASE", "")

	result := NewHealthChecker(c).RunHealthCheck()

	assert.Equal(t, HealthDegraded, result.OverallHealth)
	assert.Equal(t, HealthDegraded, result.ComponentStatus["encryption"])
}

func TestHealthChecker_Recommendations(t *testing.T) {
	c := healthyConfig(t)
	c.Parallelism = 3
	c.SnapshotTimeout = 0

	result := NewHealthChecker(c).RunHealthCheck()

	assert.Len(t, result.Recommendations, 2)
}
