package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "gpt-4.1", cfg.Agent.DefaultModel)
	assert.Equal(t, 0.7, cfg.Agent.Temperature)
	assert.Equal(t, 4096, cfg.Agent.MaxTokens)
	assert.Equal(t, 120, cfg.Agent.ProviderTimeout)
	assert.Equal(t, 30, cfg.Tools.Timeout)
	assert.Equal(t, 8080, cfg.Gateway.Port)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestValidate(t *testing.T) {
	t.Run("should accept default config", func(t *testing.T) {
		cfg := DefaultConfig()
		assert.NoError(t, cfg.Validate())
	})

	t.Run("should reject missing default model", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.DefaultModel = ""
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "default_model")
	})

	t.Run("should reject out of range temperature", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.Temperature = 3.5
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject non-positive max tokens", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Agent.MaxTokens = 0
		assert.Error(t, cfg.Validate())
	})

	t.Run("should reject catalog entry without provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Models.Catalog = []ModelConfig{
			{ID: "custom-model", ContextWindow: 8192},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "provider is required")
	})

	t.Run("should reject catalog entry with unknown provider", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Models.Catalog = []ModelConfig{
			{ID: "custom-model", Provider: "mistral", ContextWindow: 8192},
		}
		err := cfg.Validate()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid provider")
	})

	t.Run("should reject invalid gateway port", func(t *testing.T) {
		cfg := DefaultConfig()
		cfg.Gateway.Port = 70000
		assert.Error(t, cfg.Validate())
	})
}

func TestHasCredentials(t *testing.T) {
	cfg := DefaultConfig()
	assert.False(t, cfg.HasCredentials())

	cfg.Providers.AnthropicAPIKey = "sk-ant-test"
	assert.True(t, cfg.HasCredentials())
}

func TestString(t *testing.T) {
	cfg := DefaultConfig()
	s := cfg.String()
	assert.True(t, strings.Contains(s, "gpt-4.1"))
}
