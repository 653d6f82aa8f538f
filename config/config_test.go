package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("API_KEY", "my-test-key")
	t.Setenv("SSH_HOST", "203.0.113.5")
	t.Setenv("SSH_USER", "admin")
	t.Setenv("SSH_PASSWORD", "hunter2")
	t.Setenv("AI_API_KEY", "ai-key")
}

func TestLoadWithDefaults(t *testing.T) {
	cfg := LoadWithDefaults()

	assert.NotNil(t, cfg)
	assert.Equal(t, 8090, cfg.Port)
	assert.Equal(t, "0.0.0.0", cfg.Host)
	assert.Equal(t, "test-api-key", cfg.APIKey)
	assert.Equal(t, 10, cfg.MaxEscalationDepth)
}

func TestLoadMissingAPIKey(t *testing.T) {
	os.Unsetenv("API_KEY")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API_KEY is required")
}

func TestLoadMissingSSHHost(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SSH_HOST", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSH_HOST is required")
}

func TestLoadMissingSSHCredentials(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SSH_PASSWORD", "")
	t.Setenv("SSH_KEY_FILE", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SSH_PASSWORD or SSH_KEY_FILE")
}

func TestLoadWithEnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("PORT", "9000")
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("SSH_PORT", "2222")
	t.Setenv("AI_MODEL", "qwen-max")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "my-test-key", cfg.APIKey)
	assert.Equal(t, 9000, cfg.Port)
	assert.Equal(t, "127.0.0.1", cfg.Host)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 2222, cfg.SSHPort)
	assert.Equal(t, "qwen-max", cfg.AIModel)
	// JWT secret falls back to the API key.
	assert.Equal(t, "my-test-key", cfg.JWTSecret)
}

func TestConfigAddr(t *testing.T) {
	cfg := LoadWithDefaults()
	assert.Equal(t, "0.0.0.0:8090", cfg.Addr())
}

func TestSSHTarget(t *testing.T) {
	cfg := LoadWithDefaults()
	assert.Equal(t, "deploy@198.51.100.10:22", cfg.SSHTarget())
}
