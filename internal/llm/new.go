// ABOUTME: Provider selection for the language-model client from configuration
// ABOUTME: Applies provider defaults and the per-call timeout decorator

package llm

import (
	"context"
	"fmt"

	"github.com/2389/coven-voice/internal/config"
)

// New builds the Client selected by cfg.Provider, bounded by cfg.Timeout.
func New(ctx context.Context, cfg config.ModelConfig) (Client, error) {
	var client Client

	switch cfg.Provider {
	case config.ProviderGroq, "":
		base := cfg.BaseURL
		if base == "" {
			base = GroqBaseURL
		}
		model := cfg.Name
		if model == "" {
			model = DefaultGroqModel
		}
		client = NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     base,
			Model:       model,
			Temperature: cfg.Temperature,
			MaxRetries:  1,
		})
	case config.ProviderOpenAI:
		client = NewOpenAI(OpenAIConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Name,
			Temperature: cfg.Temperature,
			MaxRetries:  1,
		})
	case config.ProviderGemini:
		g, err := NewGemini(ctx, GeminiConfig{
			APIKey:      cfg.APIKey,
			BaseURL:     cfg.BaseURL,
			Model:       cfg.Name,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, err
		}
		client = g
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Provider)
	}

	return WithTimeout(client, cfg.Timeout), nil
}
