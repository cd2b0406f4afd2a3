package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	t.Setenv(configPathEnvVar, filepath.Join(t.TempDir(), "does-not-exist.json"))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, defaultDatabasePath, cfg.DatabasePath())
	assert.Equal(t, defaultOrchestratorBindAddress, cfg.OrchestratorBindAddress())
	assert.Equal(t, defaultWorkerBind, cfg.WorkerBind())

	_, ok := cfg.OrchestratorBaseDomain()
	assert.False(t, ok)
}

func TestLoadParsesPresentFields(t *testing.T) {
	path := writeConfigFile(t, `{
		"database_path": "/var/lib/nanoscale.db",
		"tls_email": "ops@example.com",
		"orchestrator": {
			"bind_address": "0.0.0.0:9000",
			"base_domain": "apps.example.com"
		},
		"worker": {
			"orchestrator_url": "https://orch.internal:4000"
		}
	}`)
	t.Setenv(configPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/nanoscale.db", cfg.DatabasePath())
	assert.Equal(t, "0.0.0.0:9000", cfg.OrchestratorBindAddress())
	assert.Equal(t, "https://orch.internal:4000", cfg.WorkerOrchestratorURL())

	domain, ok := cfg.OrchestratorBaseDomain()
	assert.True(t, ok)
	assert.Equal(t, "apps.example.com", domain)

	email, ok := cfg.TLSEmail()
	assert.True(t, ok)
	assert.Equal(t, "ops@example.com", email)

	// Fields left out of the file still fall back to defaults.
	assert.Equal(t, defaultOrchestratorServerID, cfg.OrchestratorServerID())
	assert.Equal(t, defaultWorkerBind, cfg.WorkerBind())
}

func TestLoadRejectsMalformedJSON(t *testing.T) {
	path := writeConfigFile(t, `{not valid json`)
	t.Setenv(configPathEnvVar, path)

	_, err := Load()
	assert.Error(t, err)
}

func TestTLSEmailFallsBackToEnvironmentVariable(t *testing.T) {
	path := writeConfigFile(t, `{}`)
	t.Setenv(configPathEnvVar, path)
	t.Setenv(tlsEmailEnvVar, "fallback@example.com")

	cfg, err := Load()
	require.NoError(t, err)

	email, ok := cfg.TLSEmail()
	assert.True(t, ok)
	assert.Equal(t, "fallback@example.com", email)
}

func TestAccessorsTrimWhitespace(t *testing.T) {
	path := writeConfigFile(t, `{
		"database_path": "  /var/lib/nanoscale.db  ",
		"orchestrator": {"base_domain": "  apps.example.com  "}
	}`)
	t.Setenv(configPathEnvVar, path)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/nanoscale.db", cfg.DatabasePath())
	domain, ok := cfg.OrchestratorBaseDomain()
	assert.True(t, ok)
	assert.Equal(t, "apps.example.com", domain)
}
