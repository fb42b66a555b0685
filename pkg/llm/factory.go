package llm

import (
	"context"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/openai"

	"github.com/colegio-ws/gestor/pkg/config"
)

// langchainClient adapts a langchaingo model to the Client interface.
type langchainClient struct {
	model    llms.Model
	provider string
	modelTag string

	temperature float64
	maxTokens   int
}

// New builds a Client for the configured provider.
func New(ctx context.Context, cfg *config.LLMConfig) (Client, error) {
	switch cfg.Provider {
	case config.ProviderOpenAI:
		model, err := openai.New(
			openai.WithToken(cfg.APIKey),
			openai.WithModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai client: %w", err)
		}
		return &langchainClient{
			model:       model,
			provider:    string(cfg.Provider),
			modelTag:    cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}, nil

	case config.ProviderGoogle:
		model, err := googleai.New(ctx,
			googleai.WithAPIKey(cfg.APIKey),
			googleai.WithDefaultModel(cfg.Model),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create google client: %w", err)
		}
		return &langchainClient{
			model:       model,
			provider:    string(cfg.Provider),
			modelTag:    cfg.Model,
			temperature: cfg.Temperature,
			maxTokens:   cfg.MaxTokens,
		}, nil

	default:
		return nil, fmt.Errorf("unsupported LLM provider: %q", cfg.Provider)
	}
}

func (c *langchainClient) Provider() string { return c.provider }
func (c *langchainClient) Model() string    { return c.modelTag }

func (c *langchainClient) Generate(ctx context.Context, req *Request) (*Response, error) {
	var messages []llms.MessageContent
	if req.System != "" {
		messages = append(messages, llms.TextParts(llms.ChatMessageTypeSystem, req.System))
	}
	messages = append(messages, llms.TextParts(llms.ChatMessageTypeHuman, req.Prompt))

	result, err := c.model.GenerateContent(ctx, messages,
		llms.WithTemperature(c.temperature),
		llms.WithMaxTokens(c.maxTokens),
	)
	if err != nil {
		return nil, fmt.Errorf("llm generate failed: %w", err)
	}
	if len(result.Choices) == 0 {
		return nil, fmt.Errorf("llm returned no choices")
	}

	choice := result.Choices[0]
	resp := &Response{Text: choice.Content}
	resp.PromptTokens, resp.CompletionTokens, resp.TotalTokens =
		extractUsage(choice.GenerationInfo, c.modelTag, choice.Content)
	return resp, nil
}

// extractUsage pulls token counts out of the provider-specific GenerationInfo
// layout. OpenAI reports PromptTokens/CompletionTokens/TotalTokens; Google
// reports input_tokens/output_tokens. When no metadata is present the
// completion side is estimated with a tokenizer and the prompt side is
// attributed zero.
func extractUsage(info map[string]any, model, completionText string) (prompt, completion, total int) {
	prompt = firstInt(info, "PromptTokens", "prompt_tokens", "input_tokens")
	completion = firstInt(info, "CompletionTokens", "completion_tokens", "output_tokens")
	total = firstInt(info, "TotalTokens", "total_tokens")
	if total == 0 {
		total = prompt + completion
	}

	if total == 0 && completionText != "" {
		completion = llms.CountTokens(model, completionText)
		total = completion
	}
	return prompt, completion, total
}

func firstInt(info map[string]any, keys ...string) int {
	for _, key := range keys {
		if v, ok := info[key]; ok {
			if n := toInt(v); n > 0 {
				return n
			}
		}
	}
	return 0
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int32:
		return int(n)
	case int64:
		return int(n)
	case float64:
		return int(n)
	case float32:
		return int(n)
	}
	return 0
}
