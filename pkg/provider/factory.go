package provider

import (
	"fmt"

	"github.com/andreytim/dreamytin-ai/internal/config"
)

// Factory hands out one shared client per configured provider.
type Factory struct {
	clients map[string]Client
}

// NewFactory builds clients for every provider with a credential.
func NewFactory(creds config.ProvidersConfig) *Factory {
	clients := map[string]Client{}
	if creds.OpenAIAPIKey != "" {
		clients[config.ProviderOpenAI] = NewOpenAIClient(creds.OpenAIAPIKey)
	}
	if creds.AnthropicAPIKey != "" {
		clients[config.ProviderAnthropic] = NewAnthropicClient(creds.AnthropicAPIKey)
	}
	if creds.GoogleAPIKey != "" {
		clients[config.ProviderGoogle] = NewGeminiClient(creds.GoogleAPIKey)
	}
	return &Factory{clients: clients}
}

// ClientFor returns the client for a provider name.
func (f *Factory) ClientFor(provider string) (Client, error) {
	client, ok := f.clients[provider]
	if !ok {
		return nil, fmt.Errorf("no API key configured for provider: %s", provider)
	}
	return client, nil
}

// Configured returns the set of providers with a usable client.
func (f *Factory) Configured() map[string]bool {
	out := make(map[string]bool, len(f.clients))
	for name := range f.clients {
		out[name] = true
	}
	return out
}
