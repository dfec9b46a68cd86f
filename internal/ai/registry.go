package ai

import (
	"context"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// Registry is an immutable snapshot of the usable providers, highest priority first
type Registry struct {
	ordered []Provider
	byName  map[string]Provider
}

// NewRegistry builds a snapshot from providers already in priority order.
// Later duplicates of a name are ignored.
func NewRegistry(providers ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(providers))}
	for _, p := range providers {
		if _, dup := r.byName[p.Name()]; dup {
			continue
		}
		r.byName[p.Name()] = p
		r.ordered = append(r.ordered, p)
	}
	return r
}

// Get returns the named provider
func (r *Registry) Get(name string) (Provider, bool) {
	p, ok := r.byName[name]
	return p, ok
}

// Select returns the preferred provider when it is available, otherwise the
// highest priority one.
func (r *Registry) Select(preferred string) (Provider, error) {
	if preferred != "" {
		if p, ok := r.byName[preferred]; ok {
			return p, nil
		}
	}
	if len(r.ordered) == 0 {
		return nil, domain.ErrNoProviderAvailable
	}
	return r.ordered[0], nil
}

// Names lists the available providers in priority order
func (r *Registry) Names() []string {
	names := make([]string, len(r.ordered))
	for i, p := range r.ordered {
		names[i] = p.Name()
	}
	return names
}

// Len returns the number of available providers
func (r *Registry) Len() int {
	return len(r.ordered)
}

// Defaults fill in provider settings left unset in a stored config
type Defaults struct {
	MaxTokens   int
	Temperature float64
}

// BuildRegistry turns stored configs into a snapshot. Disabled configs and
// configs without credentials are skipped, as are vendors whose client
// cannot be constructed; the latter are logged.
func BuildRegistry(ctx context.Context, configs []domain.AIProviderConfig, defaults Defaults, logger *zap.Logger) *Registry {
	providers := make([]Provider, 0, len(configs))
	for _, cfg := range configs {
		if !cfg.Enabled || !HasCredentials(cfg) {
			continue
		}
		p, err := NewProviderFromConfig(ctx, cfg, defaults)
		if err != nil {
			logger.Warn("Skipping AI provider",
				zap.String("provider", cfg.ProviderName),
				zap.Error(err),
			)
			continue
		}
		providers = append(providers, p)
	}

	registry := NewRegistry(providers...)
	logger.Info("AI provider registry built",
		zap.Strings("providers", registry.Names()),
	)
	return registry
}

// RegistryHandle publishes the current snapshot to concurrent readers
type RegistryHandle struct {
	current atomic.Pointer[Registry]
}

// NewRegistryHandle creates a handle holding registry
func NewRegistryHandle(registry *Registry) *RegistryHandle {
	h := &RegistryHandle{}
	h.Replace(registry)
	return h
}

// Current returns the snapshot in effect
func (h *RegistryHandle) Current() *Registry {
	if r := h.current.Load(); r != nil {
		return r
	}
	return NewRegistry()
}

// Replace swaps in a new snapshot
func (h *RegistryHandle) Replace(registry *Registry) {
	if registry == nil {
		registry = NewRegistry()
	}
	h.current.Store(registry)
}
