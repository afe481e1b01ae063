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
	d := Defaults()
	assert.Equal(t, 30*time.Second, d.CheckInterval)
	assert.Equal(t, uint64(65536), d.MaxArtifactSize)
	assert.Equal(t, 8, d.MaxModules)
	assert.False(t, d.SignatureRequired)
	assert.Equal(t, 3, d.DownloadRetries)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
catalog_base_url: "https://catalog.example.com"
catalog_bearer_token: "tok-123"
device_id: "dev-1"
max_modules: 4
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://catalog.example.com", cfg.CatalogBaseURL)
	assert.Equal(t, "tok-123", cfg.CatalogBearerToken)
	assert.Equal(t, 4, cfg.MaxModules)
	// Defaults still apply for unset fields.
	assert.Equal(t, 30*time.Second, cfg.CheckInterval)
}

func TestLoadMissingRequiredFields(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("device_id: dev-1\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
catalog_base_url: "https://catalog.example.com"
catalog_bearer_token: "tok-123"
device_id: "dev-1"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	t.Setenv("OTAAGENT_DEVICE_ID", "dev-overridden")
	t.Setenv("OTAAGENT_MAX_MODULES", "2")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "dev-overridden", cfg.DeviceID)
	assert.Equal(t, 2, cfg.MaxModules)
}

func TestValidateSignatureRequiredWithoutKey(t *testing.T) {
	cfg := Defaults()
	cfg.CatalogBaseURL = "https://catalog.example.com"
	cfg.CatalogBearerToken = "tok"
	cfg.DeviceID = "dev-1"
	cfg.SignatureRequired = true

	err := cfg.Validate()
	assert.Error(t, err)
}
