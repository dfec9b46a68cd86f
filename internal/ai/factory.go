package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// Provider names accepted in AIProviderConfig.ProviderName
const (
	ProviderOpenAI        = "openai"
	ProviderDeepSeek      = "deepseek"
	ProviderErnieBot      = "ernie_bot"
	ProviderTongyiQianwen = "tongyi_qianwen"
	ProviderZhipuAI       = "zhipu_ai"
	ProviderGoogle        = "google"
	ProviderAnthropic     = "anthropic"
	ProviderOllama        = "ollama"
)

// Default endpoints of the vendors that speak the OpenAI chat completions dialect
var compatibleBaseURLs = map[string]string{
	ProviderDeepSeek:      "https://api.deepseek.com",
	ProviderErnieBot:      "https://qianfan.baidubce.com/v2",
	ProviderTongyiQianwen: "https://dashscope.aliyuncs.com/compatible-mode/v1",
	ProviderZhipuAI:       "https://open.bigmodel.cn/api/paas/v4",
}

const defaultOllamaURL = "http://localhost:11434"

// SupportedProviders lists every provider name a config may use
func SupportedProviders() []string {
	return []string{
		ProviderOpenAI,
		ProviderDeepSeek,
		ProviderErnieBot,
		ProviderTongyiQianwen,
		ProviderZhipuAI,
		ProviderGoogle,
		ProviderAnthropic,
		ProviderOllama,
	}
}

// IsSupported reports whether name is a known provider
func IsSupported(name string) bool {
	for _, p := range SupportedProviders() {
		if p == name {
			return true
		}
	}
	return false
}

// HasCredentials reports whether the config can authenticate. A local
// ollama server needs no key.
func HasCredentials(cfg domain.AIProviderConfig) bool {
	return cfg.APIKey != "" || cfg.ProviderName == ProviderOllama
}

// NewProviderFromConfig builds a provider for a stored config
func NewProviderFromConfig(ctx context.Context, cfg domain.AIProviderConfig, defaults Defaults) (Provider, error) {
	completer, err := NewCompleter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	opts := CallOptions{MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaults.MaxTokens
	}
	if opts.Temperature < 0 {
		opts.Temperature = defaults.Temperature
	}

	timeout := time.Duration(cfg.Timeout) * time.Second
	return NewProvider(cfg.ProviderName, cfg.ModelName, completer, opts, timeout), nil
}

// NewCompleter constructs the vendor client for a config
func NewCompleter(ctx context.Context, cfg domain.AIProviderConfig) (Completer, error) {
	switch cfg.ProviderName {
	case ProviderOpenAI:
		return newOpenAICompleter(cfg.APIKey, cfg.APIBase, cfg.ModelName), nil
	case ProviderDeepSeek, ProviderErnieBot, ProviderTongyiQianwen, ProviderZhipuAI:
		base := cfg.APIBase
		if base == "" {
			base = compatibleBaseURLs[cfg.ProviderName]
		}
		return newCompatibleCompleter(cfg.APIKey, base, cfg.ModelName)
	case ProviderAnthropic:
		return newAnthropicCompleter(cfg.APIKey, cfg.APIBase, cfg.ModelName)
	case ProviderGoogle:
		return newGoogleCompleter(ctx, cfg.APIKey, cfg.ModelName)
	case ProviderOllama:
		base := cfg.APIBase
		if base == "" {
			base = defaultOllamaURL
		}
		return newOllamaCompleter(base, cfg.ModelName)
	default:
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, cfg.ProviderName)
	}
}
