package ai

import (
	"context"
	"fmt"
	"time"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// flagMaxTokens caps flag generation replies
const flagMaxTokens = 100

// CallOptions tune a single completion
type CallOptions struct {
	MaxTokens   int
	Temperature float64
}

// Completion is the text returned by a vendor with its token usage when known
type Completion struct {
	Text       string
	TokensUsed int64
}

// Completer is one vendor's text completion API
type Completer interface {
	Complete(ctx context.Context, prompt string, opts CallOptions) (Completion, error)
}

// Exchange is the prompt and raw reply of one provider call, kept for the call log
type Exchange struct {
	Prompt     string
	Response   string
	TokensUsed int64
}

// Provider is a configured text-generation backend
type Provider interface {
	Name() string
	Model() string
	GenerateText(ctx context.Context, prompt string, opts *CallOptions) (Exchange, error)
	GenerateChallenge(ctx context.Context, brief ChallengeBrief) (*GeneratedChallenge, Exchange, error)
	GenerateFlag(ctx context.Context, description string, category domain.Category) (string, Exchange, error)
}

// provider adapts a vendor Completer to the Provider capabilities
type provider struct {
	name      string
	model     string
	completer Completer
	defaults  CallOptions
	timeout   time.Duration
}

// NewProvider wraps a completer. A zero timeout leaves calls unbounded.
func NewProvider(name, model string, completer Completer, defaults CallOptions, timeout time.Duration) Provider {
	return &provider{
		name:      name,
		model:     model,
		completer: completer,
		defaults:  defaults,
		timeout:   timeout,
	}
}

func (p *provider) Name() string  { return p.name }
func (p *provider) Model() string { return p.model }

// GenerateText forwards a free-form prompt
func (p *provider) GenerateText(ctx context.Context, prompt string, opts *CallOptions) (Exchange, error) {
	callOpts := p.defaults
	if opts != nil {
		if opts.MaxTokens > 0 {
			callOpts.MaxTokens = opts.MaxTokens
		}
		if opts.Temperature > 0 {
			callOpts.Temperature = opts.Temperature
		}
	}
	return p.complete(ctx, prompt, callOpts)
}

// GenerateChallenge asks for a challenge and decodes the reply. An undecodable
// reply is not an error; the result is marked Degraded instead.
func (p *provider) GenerateChallenge(ctx context.Context, brief ChallengeBrief) (*GeneratedChallenge, Exchange, error) {
	exchange, err := p.complete(ctx, BuildChallengePrompt(brief), p.defaults)
	if err != nil {
		return nil, exchange, err
	}
	return ParseChallenge(exchange.Response, brief.Category, brief.Flag), exchange, nil
}

// GenerateFlag asks for a flag and forces it into the flag{...} convention
func (p *provider) GenerateFlag(ctx context.Context, description string, category domain.Category) (string, Exchange, error) {
	opts := p.defaults
	opts.MaxTokens = flagMaxTokens

	exchange, err := p.complete(ctx, BuildFlagPrompt(description, category), opts)
	if err != nil {
		return "", exchange, err
	}
	return NormalizeFlag(exchange.Response), exchange, nil
}

func (p *provider) complete(ctx context.Context, prompt string, opts CallOptions) (Exchange, error) {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	exchange := Exchange{Prompt: prompt}
	completion, err := p.completer.Complete(ctx, prompt, opts)
	if err != nil {
		return exchange, fmt.Errorf("%w: %s: %v", domain.ErrProviderCall, p.name, err)
	}
	exchange.Response = completion.Text
	exchange.TokensUsed = completion.TokensUsed
	return exchange, nil
}
