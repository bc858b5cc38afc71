package config

import (
	"encoding/json"
	"fmt"
)

// Supported provider names.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
)

// Config represents the main DreamyTin configuration
type Config struct {
	// Agent runtime
	Agent AgentConfig `json:"agent" mapstructure:"agent"`

	// Models
	Models ModelsConfig `json:"models" mapstructure:"models"`

	// AI provider credentials
	Providers ProvidersConfig `json:"providers" mapstructure:"providers"`

	// Tools
	Tools ToolsConfig `json:"tools" mapstructure:"tools"`

	// Logging
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`

	// Gateway configuration
	Gateway GatewayConfig `json:"gateway" mapstructure:"gateway"`

	// Data directory
	DataDir string `json:"data_dir" mapstructure:"data_dir"`

	// Conversations directory (defaults under DataDir)
	ConversationsDir string `json:"conversations_dir" mapstructure:"conversations_dir"`

	// System prompt file (defaults under DataDir)
	SystemPromptPath string `json:"system_prompt_path" mapstructure:"system_prompt_path"`
}

// AgentConfig holds the completion loop settings
type AgentConfig struct {
	DefaultModel    string  `json:"default_model" mapstructure:"default_model"`
	Temperature     float64 `json:"temperature" mapstructure:"temperature"`
	MaxTokens       int     `json:"max_tokens" mapstructure:"max_tokens"`
	ProviderTimeout int     `json:"provider_timeout" mapstructure:"provider_timeout"` // seconds
}

// ModelsConfig holds the model catalog configuration
type ModelsConfig struct {
	Default string        `json:"default" mapstructure:"default"`
	Catalog []ModelConfig `json:"catalog" mapstructure:"catalog"`
}

// ModelConfig describes one model entry. Entries with an ID matching a
// built-in model override that entry; others extend the catalog.
type ModelConfig struct {
	ID            string `json:"id" mapstructure:"id"`
	Provider      string `json:"provider" mapstructure:"provider"` // openai, anthropic, google
	Name          string `json:"name" mapstructure:"name"`
	ContextWindow int    `json:"context_window" mapstructure:"context_window"`
	SupportsTools bool   `json:"supports_tools" mapstructure:"supports_tools"`
}

// ProvidersConfig holds provider API keys. Empty keys fall back to the
// conventional environment variables at load time.
type ProvidersConfig struct {
	OpenAIAPIKey    string `json:"openai_api_key" mapstructure:"openai_api_key"`
	AnthropicAPIKey string `json:"anthropic_api_key" mapstructure:"anthropic_api_key"`
	GoogleAPIKey    string `json:"google_api_key" mapstructure:"google_api_key"`
}

// ToolsConfig holds tool execution settings
type ToolsConfig struct {
	Timeout int `json:"timeout" mapstructure:"timeout"` // seconds
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level     string `json:"level" mapstructure:"level"`
	File      string `json:"file" mapstructure:"file"`
	MaxSize   int    `json:"max_size" mapstructure:"max_size"` // MB
	MaxAge    int    `json:"max_age" mapstructure:"max_age"`   // days
	Compress  bool   `json:"compress" mapstructure:"compress"`
	Redaction bool   `json:"redaction" mapstructure:"redaction"`
}

// GatewayConfig holds gateway server configuration
type GatewayConfig struct {
	Port int    `json:"port" mapstructure:"port"`
	Host string `json:"host" mapstructure:"host"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	return &Config{
		Agent: AgentConfig{
			DefaultModel:    "gpt-4.1",
			Temperature:     0.7,
			MaxTokens:       4096,
			ProviderTimeout: 120,
		},
		Models: ModelsConfig{
			Default: "gpt-4.1",
		},
		Tools: ToolsConfig{
			Timeout: 30,
		},
		Logging: LoggingConfig{
			Level:     "info",
			MaxSize:   100,
			MaxAge:    7,
			Compress:  true,
			Redaction: true,
		},
		Gateway: GatewayConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
	}
}

// String returns a JSON representation of the config
func (c *Config) String() string {
	data, _ := json.MarshalIndent(c, "", "  ")
	return string(data)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Agent.DefaultModel == "" {
		return fmt.Errorf("agent default_model is required")
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("agent temperature must be between 0 and 2, got %v", c.Agent.Temperature)
	}
	if c.Agent.MaxTokens <= 0 {
		return fmt.Errorf("agent max_tokens must be positive, got %d", c.Agent.MaxTokens)
	}
	if c.Agent.ProviderTimeout <= 0 {
		return fmt.Errorf("agent provider_timeout must be positive, got %d", c.Agent.ProviderTimeout)
	}

	for i, m := range c.Models.Catalog {
		if m.ID == "" {
			return fmt.Errorf("model %d: ID is required", i)
		}
		if m.Provider == "" {
			return fmt.Errorf("model %s: provider is required", m.ID)
		}
		validProviders := []string{ProviderOpenAI, ProviderAnthropic, ProviderGoogle}
		valid := false
		for _, vp := range validProviders {
			if m.Provider == vp {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("model %s: invalid provider %s (must be: openai, anthropic, google)", m.ID, m.Provider)
		}
		if m.ContextWindow <= 0 {
			return fmt.Errorf("model %s: context_window must be positive", m.ID)
		}
	}

	if c.Tools.Timeout <= 0 {
		return fmt.Errorf("tools timeout must be positive, got %d", c.Tools.Timeout)
	}
	if c.Gateway.Port <= 0 || c.Gateway.Port > 65535 {
		return fmt.Errorf("invalid gateway port: %d", c.Gateway.Port)
	}

	return nil
}

// HasCredentials reports whether at least one provider API key is set.
func (c *Config) HasCredentials() bool {
	return c.Providers.OpenAIAPIKey != "" ||
		c.Providers.AnthropicAPIKey != "" ||
		c.Providers.GoogleAPIKey != ""
}
