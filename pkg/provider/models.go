package provider

import (
	"fmt"
	"sort"

	"github.com/andreytim/dreamytin-ai/internal/config"
)

// ModelInfo describes one model the runtime can route to.
type ModelInfo struct {
	ID            string
	Provider      string
	Name          string
	ContextWindow int
	SupportsTools bool
}

// BackendModel returns the identifier sent to the provider SDK.
// Google models are namespaced with a "gemini/" prefix.
func (m ModelInfo) BackendModel() string {
	if m.Provider == config.ProviderGoogle {
		return "gemini/" + m.Name
	}
	return m.Name
}

// Catalog maps public model IDs to their routing metadata.
type Catalog struct {
	models map[string]ModelInfo
}

// DefaultCatalog returns the built-in model table.
func DefaultCatalog() *Catalog {
	defaults := []ModelInfo{
		{ID: "gpt-4.1", Provider: config.ProviderOpenAI, Name: "gpt-4.1", ContextWindow: 1047576, SupportsTools: true},
		{ID: "gpt-4.1-mini", Provider: config.ProviderOpenAI, Name: "gpt-4.1-mini", ContextWindow: 1047576, SupportsTools: true},
		{ID: "gpt-4.1-nano", Provider: config.ProviderOpenAI, Name: "gpt-4.1-nano", ContextWindow: 1047576, SupportsTools: true},
		{ID: "gpt-4o", Provider: config.ProviderOpenAI, Name: "gpt-4o", ContextWindow: 128000, SupportsTools: true},
		{ID: "gpt-3.5-turbo", Provider: config.ProviderOpenAI, Name: "gpt-3.5-turbo", ContextWindow: 16385, SupportsTools: true},
		{ID: "claude-3.5-sonnet", Provider: config.ProviderAnthropic, Name: "claude-3-5-sonnet-20241022", ContextWindow: 200000, SupportsTools: true},
		{ID: "claude-3.5-haiku", Provider: config.ProviderAnthropic, Name: "claude-3-5-haiku-20241022", ContextWindow: 200000, SupportsTools: true},
		{ID: "claude-3-sonnet", Provider: config.ProviderAnthropic, Name: "claude-3-sonnet-20240229", ContextWindow: 200000, SupportsTools: true},
		{ID: "claude-3-haiku", Provider: config.ProviderAnthropic, Name: "claude-3-haiku-20240307", ContextWindow: 200000, SupportsTools: true},
		{ID: "gemini-2.0-flash", Provider: config.ProviderGoogle, Name: "gemini-2.0-flash-exp", ContextWindow: 1048576, SupportsTools: false},
		{ID: "gemini-1.5-pro", Provider: config.ProviderGoogle, Name: "gemini-1.5-pro", ContextWindow: 2097152, SupportsTools: false},
		{ID: "gemini-1.5-flash", Provider: config.ProviderGoogle, Name: "gemini-1.5-flash", ContextWindow: 1048576, SupportsTools: false},
	}

	models := make(map[string]ModelInfo, len(defaults))
	for _, m := range defaults {
		models[m.ID] = m
	}
	return &Catalog{models: models}
}

// NewCatalog builds a catalog from the built-in table merged with
// configured overrides. A configured entry with an existing ID
// replaces the built-in one.
func NewCatalog(cfg config.ModelsConfig) (*Catalog, error) {
	c := DefaultCatalog()
	for _, mc := range cfg.Catalog {
		if mc.ID == "" {
			return nil, fmt.Errorf("model id is required")
		}
		name := mc.Name
		if name == "" {
			name = mc.ID
		}
		c.models[mc.ID] = ModelInfo{
			ID:            mc.ID,
			Provider:      mc.Provider,
			Name:          name,
			ContextWindow: mc.ContextWindow,
			SupportsTools: mc.SupportsTools,
		}
	}
	return c, nil
}

// Get returns the model for the given public ID.
func (c *Catalog) Get(id string) (ModelInfo, bool) {
	m, ok := c.models[id]
	return m, ok
}

// List returns all models sorted by ID.
func (c *Catalog) List() []ModelInfo {
	out := make([]ModelInfo, 0, len(c.models))
	for _, m := range c.models {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListForProviders returns models whose provider is in the given set,
// sorted by ID.
func (c *Catalog) ListForProviders(providers map[string]bool) []ModelInfo {
	out := make([]ModelInfo, 0, len(c.models))
	for _, m := range c.models {
		if providers[m.Provider] {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
