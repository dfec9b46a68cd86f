package ai

import (
	"context"
	"errors"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/googleai"
	"github.com/tmc/langchaingo/llms/ollama"
	lcopenai "github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

// llmCompleter calls any langchaingo model
type llmCompleter struct {
	llm llms.Model
}

// newCompatibleCompleter targets a vendor exposing an OpenAI-compatible endpoint
func newCompatibleCompleter(apiKey, baseURL, model string) (Completer, error) {
	llm, err := lcopenai.New(
		lcopenai.WithToken(apiKey),
		lcopenai.WithModel(model),
		lcopenai.WithBaseURL(baseURL),
	)
	if err != nil {
		return nil, err
	}
	return &llmCompleter{llm: llm}, nil
}

func newAnthropicCompleter(apiKey, baseURL, model string) (Completer, error) {
	opts := []anthropic.Option{
		anthropic.WithToken(apiKey),
		anthropic.WithModel(model),
	}
	if baseURL != "" {
		opts = append(opts, anthropic.WithBaseURL(baseURL))
	}
	llm, err := anthropic.New(opts...)
	if err != nil {
		return nil, err
	}
	return &llmCompleter{llm: llm}, nil
}

func newGoogleCompleter(ctx context.Context, apiKey, model string) (Completer, error) {
	llm, err := googleai.New(ctx,
		googleai.WithAPIKey(apiKey),
		googleai.WithDefaultModel(model),
	)
	if err != nil {
		return nil, err
	}
	return &llmCompleter{llm: llm}, nil
}

func newOllamaCompleter(serverURL, model string) (Completer, error) {
	llm, err := ollama.New(
		ollama.WithModel(model),
		ollama.WithServerURL(serverURL),
	)
	if err != nil {
		return nil, err
	}
	return &llmCompleter{llm: llm}, nil
}

func (c *llmCompleter) Complete(ctx context.Context, prompt string, opts CallOptions) (Completion, error) {
	callOpts := []llms.CallOption{llms.WithTemperature(opts.Temperature)}
	if opts.MaxTokens > 0 {
		callOpts = append(callOpts, llms.WithMaxTokens(opts.MaxTokens))
	}

	resp, err := c.llm.GenerateContent(ctx, []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}, callOpts...)
	if err != nil {
		return Completion{}, err
	}
	if len(resp.Choices) == 0 {
		return Completion{}, errors.New("completion returned no choices")
	}

	choice := resp.Choices[0]
	return Completion{
		Text:       choice.Content,
		TokensUsed: tokensUsed(choice.GenerationInfo),
	}, nil
}

// tokensUsed reads token usage from generation info. Vendors report either a
// total or separate input and output counts.
func tokensUsed(info map[string]any) int64 {
	if total := asInt64(info["TotalTokens"]); total > 0 {
		return total
	}
	return asInt64(info["InputTokens"]) + asInt64(info["OutputTokens"])
}

func asInt64(v any) int64 {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case int64:
		return n
	case float64:
		return int64(n)
	}
	return 0
}
