package provider

import (
	"context"
	"fmt"

	"github.com/andreytim/dreamytin-ai/internal/config"
)

// GeminiClient implements Client for Google Gemini.
type GeminiClient struct {
	apiKey string
}

// NewGeminiClient creates a new Gemini client.
func NewGeminiClient(apiKey string) *GeminiClient {
	return &GeminiClient{
		apiKey: apiKey,
	}
}

// Name returns the provider name
func (c *GeminiClient) Name() string {
	return config.ProviderGoogle
}

// Stream is not available for Gemini yet.
func (c *GeminiClient) Stream(ctx context.Context, req Request, emit func(Fragment) error) error {
	return fmt.Errorf("gemini provider not yet implemented - use anthropic or openai")
}

// Complete is not available for Gemini yet.
func (c *GeminiClient) Complete(ctx context.Context, req Request) (*Completion, error) {
	return nil, fmt.Errorf("gemini provider not yet implemented - use anthropic or openai")
}
