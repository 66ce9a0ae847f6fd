package cli

import (
	"fmt"
	"strings"

	"github.com/LoomClaw/LoomClaw/internal/config"
	"github.com/LoomClaw/LoomClaw/internal/provider"
)

// resolveProvider picks the first configured LLM endpoint. OpenAI wins
// when several have keys; the others are OpenAI-compatible and only
// differ in base URL.
func resolveProvider(cfg *config.Config) (provider.LLMProvider, error) {
	type candidate struct {
		name        string
		cfg         config.ProviderConfig
		defaultBase string
	}
	candidates := []candidate{
		{"openai", cfg.Providers.OpenAI, ""},
		{"openrouter", cfg.Providers.OpenRouter, "https://openrouter.ai/api/v1"},
		{"deepseek", cfg.Providers.DeepSeek, "https://api.deepseek.com/v1"},
		{"groq", cfg.Providers.Groq, "https://api.groq.com/openai/v1"},
		{"vllm", cfg.Providers.VLLM, ""},
	}
	for _, c := range candidates {
		if strings.TrimSpace(c.cfg.APIKey) == "" {
			// vLLM endpoints often run without auth; a base URL is enough.
			if c.name != "vllm" || strings.TrimSpace(c.cfg.APIBase) == "" {
				continue
			}
		}
		base := c.cfg.APIBase
		if base == "" {
			base = c.defaultBase
		}
		return provider.NewOpenAIProvider(c.cfg.APIKey, base, cfg.Model.Name), nil
	}
	return nil, fmt.Errorf("no LLM provider configured (set OPENAI_API_KEY or providers in config.json)")
}
