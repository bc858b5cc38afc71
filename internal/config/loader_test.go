package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLoader(t *testing.T) {
	loader := NewLoader("/path/to/config.json")
	assert.NotNil(t, loader)
	assert.Equal(t, "/path/to/config.json", loader.configPath)
}

func TestLoaderLoad(t *testing.T) {
	t.Run("load default config when file doesn't exist", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "nonexistent.json")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "gpt-4.1", cfg.Agent.DefaultModel)
	})

	t.Run("load config from file", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		testConfig := `{
			"agent": {"default_model": "claude-3-5-sonnet-latest"},
			"providers": {"anthropic_api_key": "sk-ant-test-key"},
			"gateway": {"port": 9090}
		}`
		err := os.WriteFile(configPath, []byte(testConfig), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "claude-3-5-sonnet-latest", cfg.Agent.DefaultModel)
		assert.Equal(t, "sk-ant-test-key", cfg.Providers.AnthropicAPIKey)
		assert.Equal(t, 9090, cfg.Gateway.Port)
		// Defaults survive a partial file.
		assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	})

	t.Run("set default paths", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{}`), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.NotEmpty(t, cfg.DataDir)
		assert.NotEmpty(t, cfg.ConversationsDir)
		assert.NotEmpty(t, cfg.SystemPromptPath)
		assert.NotEmpty(t, cfg.Logging.File)
	})

	t.Run("credentials fall back to environment", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "config.json")

		err := os.WriteFile(configPath, []byte(`{}`), 0644)
		require.NoError(t, err)

		t.Setenv("OPENAI_API_KEY", "sk-env-openai")
		t.Setenv("ANTHROPIC_API_KEY", "")

		loader := NewLoader(configPath)
		cfg, err := loader.Load()

		require.NoError(t, err)
		assert.Equal(t, "sk-env-openai", cfg.Providers.OpenAIAPIKey)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		tmpDir := t.TempDir()
		configPath := filepath.Join(tmpDir, "invalid.json")

		err := os.WriteFile(configPath, []byte("invalid json"), 0644)
		require.NoError(t, err)

		loader := NewLoader(configPath)
		_, err = loader.Load()
		assert.Error(t, err)
	})
}

func TestLoaderSave(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.json")

	cfg := DefaultConfig()
	cfg.Providers.OpenAIAPIKey = "sk-test"
	cfg.DataDir = tmpDir

	loader := NewLoader(configPath)
	require.NoError(t, loader.Save(cfg))

	loaded, err := loader.Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-test", loaded.Providers.OpenAIAPIKey)
	assert.Equal(t, tmpDir, loaded.DataDir)
}

func TestGetConfigPath(t *testing.T) {
	loader := NewLoader("/custom/path.json")
	assert.Equal(t, "/custom/path.json", loader.GetConfigPath())

	defaultLoader := NewLoader("")
	assert.Contains(t, defaultLoader.GetConfigPath(), ".dreamytin")
}
