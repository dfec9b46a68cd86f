package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/ai"
	"github.com/DarkSword404/CTF-Platform/internal/data"
	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

const providerTestPrompt = "Reply with the single word: pong"

// ProviderTestResult reports a connectivity probe against one provider
type ProviderTestResult struct {
	Provider   string `json:"provider"`
	Success    bool   `json:"success"`
	Response   string `json:"response,omitempty"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// ProviderService manages stored provider configs and keeps the live
// registry in step with them
type ProviderService struct {
	providerRepo domain.AIProviderRepository
	callLogRepo  domain.AICallLogRepository
	seeder       *data.Seeder
	registry     *ai.RegistryHandle
	aiConfig     infrastructure.AIConfig
	metrics      *infrastructure.TelemetryMetrics
	tracer       trace.Tracer
	logger       *zap.Logger
	newProvider  func(ctx context.Context, cfg domain.AIProviderConfig, defaults ai.Defaults) (ai.Provider, error)
	now          func() time.Time
}

// NewProviderService creates a new provider service
func NewProviderService(
	providerRepo domain.AIProviderRepository,
	callLogRepo domain.AICallLogRepository,
	seeder *data.Seeder,
	registry *ai.RegistryHandle,
	aiConfig infrastructure.AIConfig,
	metrics *infrastructure.TelemetryMetrics,
	tracer trace.Tracer,
	logger *zap.Logger,
) *ProviderService {
	return &ProviderService{
		providerRepo: providerRepo,
		callLogRepo:  callLogRepo,
		seeder:       seeder,
		registry:     registry,
		aiConfig:     aiConfig,
		metrics:      metrics,
		tracer:       tracer,
		logger:       logger,
		newProvider:  ai.NewProviderFromConfig,
		now:          time.Now,
	}
}

func (s *ProviderService) defaults() ai.Defaults {
	return ai.Defaults{
		MaxTokens:   s.aiConfig.DefaultMaxTokens,
		Temperature: s.aiConfig.DefaultTemperature,
	}
}

// Rebuild reloads every stored config and publishes a fresh registry
func (s *ProviderService) Rebuild(ctx context.Context) error {
	configs, err := s.providerRepo.WithContext(ctx).FindAll()
	if err != nil {
		return err
	}
	s.registry.Replace(ai.BuildRegistry(ctx, configs, s.defaults(), s.logger))
	return nil
}

// List returns every stored config, highest priority first
func (s *ProviderService) List(ctx context.Context) ([]domain.AIProviderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProviderService.List")
	defer span.End()

	configs, err := s.providerRepo.WithContext(ctx).FindAll()
	if err != nil {
		return nil, err
	}

	responses := make([]domain.AIProviderResponse, len(configs))
	for i := range configs {
		responses[i] = configs[i].ToResponse()
	}
	return responses, nil
}

// Create stores a new provider config and refreshes the registry
func (s *ProviderService) Create(ctx context.Context, req *domain.CreateProviderRequest) (*domain.AIProviderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProviderService.Create")
	defer span.End()

	name := strings.ToLower(strings.TrimSpace(req.ProviderName))
	if !ai.IsSupported(name) {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnsupportedProvider, req.ProviderName)
	}

	cfg := &domain.AIProviderConfig{
		ProviderName: name,
		DisplayName:  req.DisplayName,
		ModelName:    req.ModelName,
		APIKey:       req.APIKey,
		APIBase:      req.APIBase,
		Enabled:      true,
		MaxTokens:    s.aiConfig.DefaultMaxTokens,
		Temperature:  s.aiConfig.DefaultTemperature,
		Timeout:      int(s.aiConfig.RequestTimeout.Seconds()),
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.MaxTokens != nil {
		cfg.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.Timeout != nil {
		cfg.Timeout = *req.Timeout
	}
	if req.Priority != nil {
		cfg.Priority = *req.Priority
	}

	if err := s.providerRepo.WithContext(ctx).Create(cfg); err != nil {
		return nil, err
	}
	if err := s.Rebuild(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("AI provider created",
		zap.String("provider", cfg.ProviderName),
		zap.String("model", cfg.ModelName),
	)
	span.SetAttributes(attribute.String("provider.name", cfg.ProviderName))

	resp := cfg.ToResponse()
	return &resp, nil
}

// Update applies a partial update. An empty api_key leaves the stored key untouched.
func (s *ProviderService) Update(ctx context.Context, id uuid.UUID, req *domain.UpdateProviderRequest) (*domain.AIProviderResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ProviderService.Update")
	defer span.End()

	repo := s.providerRepo.WithContext(ctx)
	cfg, err := repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		cfg.DisplayName = *req.DisplayName
	}
	if req.ModelName != nil {
		cfg.ModelName = *req.ModelName
	}
	if req.APIKey != nil && *req.APIKey != "" {
		cfg.APIKey = *req.APIKey
	}
	if req.APIBase != nil {
		cfg.APIBase = *req.APIBase
	}
	if req.Enabled != nil {
		cfg.Enabled = *req.Enabled
	}
	if req.MaxTokens != nil {
		cfg.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.Timeout != nil {
		cfg.Timeout = *req.Timeout
	}
	if req.Priority != nil {
		cfg.Priority = *req.Priority
	}

	if err := repo.Update(cfg); err != nil {
		return nil, err
	}
	if err := s.Rebuild(ctx); err != nil {
		return nil, err
	}

	s.logger.Info("AI provider updated", zap.String("provider", cfg.ProviderName))
	resp := cfg.ToResponse()
	return &resp, nil
}

// Delete removes a provider config and refreshes the registry
func (s *ProviderService) Delete(ctx context.Context, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "ProviderService.Delete")
	defer span.End()

	if err := s.providerRepo.WithContext(ctx).Delete(id); err != nil {
		return err
	}
	s.logger.Info("AI provider deleted", zap.String("provider_id", id.String()))
	return s.Rebuild(ctx)
}

// Test sends a short probe through the stored config, enabled or not.
// Call failures are reported in the result rather than as errors.
func (s *ProviderService) Test(ctx context.Context, p domain.Principal, id uuid.UUID) (*ProviderTestResult, error) {
	ctx, span := s.tracer.Start(ctx, "ProviderService.Test")
	defer span.End()

	cfg, err := s.providerRepo.WithContext(ctx).FindByID(id)
	if err != nil {
		return nil, err
	}

	result := &ProviderTestResult{Provider: cfg.ProviderName}
	provider, err := s.newProvider(ctx, *cfg, s.defaults())
	if err != nil {
		result.Error = err.Error()
		return result, nil
	}

	start := s.now()
	exchange, callErr := provider.GenerateText(ctx, providerTestPrompt, &ai.CallOptions{MaxTokens: 16})
	elapsed := s.now().Sub(start)
	recordCall(ctx, s.callLogRepo, s.metrics, s.logger, &p.UserID, provider, domain.CallTypeProviderTest, exchange, elapsed, callErr)

	result.DurationMS = elapsed.Milliseconds()
	if callErr != nil {
		result.Error = callErr.Error()
		s.logger.Warn("AI provider test failed",
			zap.String("provider", cfg.ProviderName),
			zap.Error(callErr),
		)
		return result, nil
	}
	result.Success = true
	result.Response = exchange.Response
	return result, nil
}

// InitDefaults seeds the built-in provider catalogue and refreshes the registry
func (s *ProviderService) InitDefaults(ctx context.Context) (int, error) {
	ctx, span := s.tracer.Start(ctx, "ProviderService.InitDefaults")
	defer span.End()

	if s.seeder == nil {
		return 0, errors.New("provider seeder not configured")
	}
	created, err := s.seeder.SeedProviders(ctx, s.aiConfig)
	if err != nil {
		return created, err
	}
	return created, s.Rebuild(ctx)
}
