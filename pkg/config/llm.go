package config

import "fmt"

// LLMProvider selects the model family.
type LLMProvider string

// Supported LLM providers.
const (
	ProviderOpenAI LLMProvider = "openai"
	ProviderGoogle LLMProvider = "google"
)

// LLMConfig holds the sampling and credential settings for the LLM client.
type LLMConfig struct {
	Provider    LLMProvider
	Model       string
	Temperature float64
	MaxTokens   int
	APIKey      string
}

// LoadLLMFromEnv reads the LLM configuration from the environment.
// The API key env var follows the provider (OPENAI_API_KEY / GOOGLE_API_KEY).
func LoadLLMFromEnv() (*LLMConfig, error) {
	provider := LLMProvider(getEnv("LLM_PROVIDER", string(ProviderOpenAI)))

	var keyEnv, defaultModel string
	switch provider {
	case ProviderOpenAI:
		keyEnv, defaultModel = "OPENAI_API_KEY", "gpt-4o-mini"
	case ProviderGoogle:
		keyEnv, defaultModel = "GOOGLE_API_KEY", "gemini-2.0-flash"
	default:
		return nil, fmt.Errorf("unsupported LLM_PROVIDER: %q", provider)
	}

	temperature, err := getEnvFloat("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return nil, err
	}
	maxTokens, err := getEnvInt("LLM_MAX_TOKENS", 1024)
	if err != nil {
		return nil, err
	}

	return &LLMConfig{
		Provider:    provider,
		Model:       getEnv("LLM_MODEL", defaultModel),
		Temperature: temperature,
		MaxTokens:   maxTokens,
		APIKey:      getEnv(keyEnv, ""),
	}, nil
}
