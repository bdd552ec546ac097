package cli

import (
	"path/filepath"
	"testing"

	"github.com/harun/recall/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	configPath := filepath.Join(t.TempDir(), "recall", "config.yaml")
	ws := t.TempDir()

	output, err := executeCommand(t, "configure", "--config", configPath, "-w", ws,
		"--provider", "ollama", "--model", "nomic-embed-text", "--fallback", "local",
		"--base-url", "http://localhost:11434/v1")
	require.NoError(t, err)
	assert.Contains(t, output, "Configuration saved to: "+configPath)

	cfg, err := config.Load(configPath)
	require.NoError(t, err)
	assert.Equal(t, ws, cfg.WorkspacePath)
	assert.Equal(t, "ollama", cfg.Provider)
	assert.Equal(t, "local", cfg.Fallback)
	assert.Equal(t, "nomic-embed-text", cfg.Model)
	assert.Equal(t, "http://localhost:11434/v1", cfg.Remote.BaseURL)
	assert.Equal(t, 400, cfg.Chunking.Tokens)

	t.Run("existing file needs force", func(t *testing.T) {
		_, err := executeCommand(t, "configure", "--config", configPath)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "--force")

		_, err = executeCommand(t, "configure", "--config", configPath, "--force")
		require.NoError(t, err)
		cfg, err := config.Load(configPath)
		require.NoError(t, err)
		assert.Equal(t, "local", cfg.Provider)
	})

	t.Run("invalid provider", func(t *testing.T) {
		_, err := executeCommand(t, "configure", "--config", filepath.Join(t.TempDir(), "c.yaml"), "--provider", "gemini")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("fallback equal to provider", func(t *testing.T) {
		_, err := executeCommand(t, "configure", "--config", filepath.Join(t.TempDir(), "c.yaml"), "--fallback", "local")
		assert.Error(t, err)
	})
}
