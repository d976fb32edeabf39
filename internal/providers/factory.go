package providers

import (
	"context"
	"fmt"

	"github.com/ChamsBouzaiene/trailblaze/internal/config"
	"github.com/ChamsBouzaiene/trailblaze/internal/engine"
)

// compatibleBaseURLs are OpenAI-compatible endpoints selectable by name.
var compatibleBaseURLs = map[string]string{
	"ollama":   "http://localhost:11434/v1",
	"lmstudio": "http://localhost:1234/v1",
	"deepseek": "https://api.deepseek.com/v1",
	"groq":     "https://api.groq.com/openai/v1",
}

// Providers lists the accepted provider names.
func Providers() []string {
	return []string{"anthropic", "openai", "gemini", "ollama", "lmstudio", "deepseek", "groq"}
}

// New creates the client cfg selects, wrapped in a rate limiter when
// cfg.RequestsPerMinute is set.
func New(ctx context.Context, cfg config.LLMConfig) (engine.LLMClient, error) {
	var (
		client engine.LLMClient
		err    error
	)
	switch cfg.Provider {
	case "anthropic":
		client, err = NewAnthropicClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "openai":
		if cfg.APIKey == "" && cfg.BaseURL == "" {
			return nil, fmt.Errorf("openai: api key is required")
		}
		client, err = NewOpenAIClient(cfg.APIKey, cfg.Model, cfg.BaseURL)
	case "gemini":
		client, err = NewGeminiClient(ctx, cfg.APIKey, cfg.Model)
	default:
		base, ok := compatibleBaseURLs[cfg.Provider]
		if !ok {
			return nil, fmt.Errorf("unknown LLM provider %q (supported: %v)", cfg.Provider, Providers())
		}
		if cfg.BaseURL != "" {
			base = cfg.BaseURL
		}
		key := cfg.APIKey
		if key == "" {
			// Local servers accept any key.
			key = cfg.Provider
		}
		client, err = NewOpenAIClient(key, cfg.Model, base)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create %s client: %w", cfg.Provider, err)
	}
	return NewRateLimited(client, cfg.RequestsPerMinute), nil
}
