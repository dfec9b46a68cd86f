package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	gonanoid "github.com/matoous/go-nanoid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/DarkSword404/CTF-Platform/internal/ai"
	"github.com/DarkSword404/CTF-Platform/internal/data"
	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

const (
	flagAlphabet         = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	flagPayloadLen       = 16
	logExcerptLen        = 4000
	maxHistoryPage       = 100
	maxGeneratedTitleLen = 180
	unknownProvider      = "unavailable"
	titleSuffixChars     = "abcdefghijklmnopqrstuvwxyz0123456789"
)

// ImageBuilder builds a runnable image for a generated challenge
type ImageBuilder interface {
	BuildImage(ctx context.Context, challengeID, dockerfile string, files map[string]string) (string, error)
}

// AIService runs challenge synthesis and the free-form generation calls
type AIService struct {
	registry       *ai.RegistryHandle
	challengeRepo  domain.ChallengeRepository
	generationRepo domain.GenerationRepository
	callLogRepo    domain.AICallLogRepository
	builder        ImageBuilder
	dockerConfig   infrastructure.DockerConfig
	metrics        *infrastructure.TelemetryMetrics
	tracer         trace.Tracer
	logger         *zap.Logger
	now            func() time.Time
}

// NewAIService creates a new AI service
func NewAIService(
	registry *ai.RegistryHandle,
	challengeRepo domain.ChallengeRepository,
	generationRepo domain.GenerationRepository,
	callLogRepo domain.AICallLogRepository,
	builder ImageBuilder,
	dockerConfig infrastructure.DockerConfig,
	metrics *infrastructure.TelemetryMetrics,
	tracer trace.Tracer,
	logger *zap.Logger,
) *AIService {
	return &AIService{
		registry:       registry,
		challengeRepo:  challengeRepo,
		generationRepo: generationRepo,
		callLogRepo:    callLogRepo,
		builder:        builder,
		dockerConfig:   dockerConfig,
		metrics:        metrics,
		tracer:         tracer,
		logger:         logger,
		now:            time.Now,
	}
}

// ProviderInfo names an available provider and its model
type ProviderInfo struct {
	Name  string `json:"name"`
	Model string `json:"model"`
}

// GeneratedText is the reply of a free-form generation call
type GeneratedText struct {
	Text       string `json:"text"`
	Provider   string `json:"provider"`
	TokensUsed int64  `json:"tokens_used"`
}

// GeneratedFlag is the reply of a flag generation call
type GeneratedFlag struct {
	Flag     string `json:"flag"`
	Provider string `json:"provider"`
}

// Providers lists the usable providers in priority order
func (s *AIService) Providers() []ProviderInfo {
	registry := s.registry.Current()
	infos := make([]ProviderInfo, 0, registry.Len())
	for _, name := range registry.Names() {
		p, _ := registry.Get(name)
		infos = append(infos, ProviderInfo{Name: p.Name(), Model: p.Model()})
	}
	return infos
}

// GenerateChallenge runs the synthesis pipeline. Every attempt that gets past
// input validation leaves exactly one generation record; a failed attempt
// never leaves a challenge behind.
func (s *AIService) GenerateChallenge(ctx context.Context, p domain.Principal, req *domain.GenerateChallengeRequest) (*domain.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "AIService.GenerateChallenge")
	defer span.End()

	if !p.CanAuthor() {
		return nil, domain.ErrForbidden
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}
	difficulty, err := domain.ParseDifficulty(req.Difficulty)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.String("challenge.category", string(category)),
		attribute.String("challenge.difficulty", string(difficulty)),
	)

	start := s.now()
	params, _ := json.Marshal(req)
	record := &domain.GenerationRecord{
		RequestedBy: p.UserID,
		Provider:    orUnknown(req.Provider),
		Category:    category,
		Difficulty:  difficulty,
		InputParams: datatypes.JSON(params),
	}

	challenge, err := s.synthesize(ctx, p, req, category, difficulty, record)
	record.GenerationTime = s.now().Sub(start).Seconds()

	if err != nil {
		msg := err.Error()
		record.Success = false
		record.ChallengeID = nil
		record.ErrorMessage = &msg
		if recErr := s.generationRepo.WithContext(ctx).Create(record); recErr != nil {
			s.logger.Error("Failed to record generation failure", zap.Error(recErr))
		}
		s.countGeneration(ctx, record.Provider, false)

		span.RecordError(err)
		span.SetStatus(codes.Error, msg)
		s.logger.Warn("Challenge synthesis failed",
			zap.String("user_id", p.UserID.String()),
			zap.String("provider", record.Provider),
			zap.String("category", string(category)),
			zap.Error(err),
		)
		return nil, err
	}

	s.countGeneration(ctx, record.Provider, true)
	s.logger.Info("Challenge synthesized",
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("provider", record.Provider),
		zap.Float64("duration", record.GenerationTime),
	)
	span.SetAttributes(attribute.String("challenge.id", challenge.ID.String()))
	return challenge, nil
}

func (s *AIService) synthesize(
	ctx context.Context,
	p domain.Principal,
	req *domain.GenerateChallengeRequest,
	category domain.Category,
	difficulty domain.Difficulty,
	record *domain.GenerationRecord,
) (*domain.Challenge, error) {
	flag, err := GenerateFlag()
	if err != nil {
		return nil, err
	}

	provider, err := s.registry.Current().Select(req.Provider)
	if err != nil {
		return nil, err
	}
	record.Provider = provider.Name()

	callStart := s.now()
	generated, exchange, err := provider.GenerateChallenge(ctx, ai.ChallengeBrief{
		Category:      category,
		Difficulty:    difficulty,
		Requirements:  req.Requirements,
		Flag:          flag,
		Theme:         req.Theme,
		Algorithm:     req.Algorithm,
		Vulnerability: req.Vulnerability,
		Framework:     req.Framework,
	})
	s.logCall(ctx, p, provider, domain.CallTypeGenerateChallenge, exchange, callStart, err)
	if err != nil {
		return nil, err
	}

	attachments, err := ai.BuildAttachments(category, generated, flag)
	if err != nil {
		return nil, err
	}
	params, err := generationParams(record.InputParams, generated, exchange.Response)
	if err != nil {
		return nil, err
	}

	model := provider.Model()
	challenge := &domain.Challenge{
		ID:                  uuid.New(),
		Description:         generated.Description,
		AuthorID:            p.UserID,
		Category:            category,
		Difficulty:          difficulty,
		Score:               difficulty.Points(),
		Flag:                flag,
		FlagFormat:          domain.FlagFormatPlaintext,
		IsCaseSensitiveFlag: true,
		Status:              domain.StatusDraft,
		Hints:               datatypes.JSONSlice[string](generated.Hints),
		Attachments:         datatypes.JSONSlice[domain.Attachment](attachments),
		Solution:            generated.Solution,
		IsAIGenerated:       true,
		AIModelUsed:         &model,
		GenerationParams:    params,
	}

	challenge.Title, err = s.uniqueTitle(ctx, generated.Title, category)
	if err != nil {
		return nil, err
	}

	if category == domain.CategoryWeb {
		if err := s.buildWebImage(ctx, challenge, generated); err != nil {
			return nil, err
		}
	}

	record.Success = true
	if err := s.generationRepo.WithContext(ctx).CreateWithChallenge(challenge, record); err != nil {
		return nil, err
	}
	return challenge, nil
}

// generationParams merges the request with what the reply added: the reply
// excerpt, the degraded marker and every detail key the request did not set
func generationParams(input datatypes.JSON, generated *ai.GeneratedChallenge, response string) (datatypes.JSON, error) {
	params := map[string]interface{}{}
	if len(input) > 0 {
		if err := json.Unmarshal(input, &params); err != nil {
			return nil, fmt.Errorf("failed to decode generation input: %w", err)
		}
	}
	for k, v := range generated.Details {
		if _, set := params[k]; !set {
			params[k] = v
		}
	}
	params["ai_response"] = infrastructure.Truncate(response, logExcerptLen)
	params["degraded"] = generated.Degraded

	out, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("failed to encode generation params: %w", err)
	}
	return datatypes.JSON(out), nil
}

// buildWebImage builds the challenge image, substituting the built-in
// vulnerable app for whatever source the model did not supply
func (s *AIService) buildWebImage(ctx context.Context, challenge *domain.Challenge, generated *ai.GeneratedChallenge) error {
	port := s.dockerConfig.ContainerPort

	app := generated.AppSource
	if strings.TrimSpace(app) == "" {
		var err error
		if app, err = data.DefaultWebApp(challenge.Flag, port); err != nil {
			return err
		}
	}
	dockerfile := generated.Dockerfile
	if strings.TrimSpace(dockerfile) == "" {
		var err error
		if dockerfile, err = data.DefaultDockerfile(port); err != nil {
			return err
		}
	}

	files := map[string]string{"app.py": app}
	if generated.IndexHTML != "" {
		files["templates/index.html"] = generated.IndexHTML
	}

	if s.dockerConfig.BuildTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.dockerConfig.BuildTimeout)
		defer cancel()
	}

	image, err := s.builder.BuildImage(ctx, challenge.ID.String(), dockerfile, files)
	if err != nil {
		if errors.Is(err, domain.ErrContainerBackendUnavailable) {
			return domain.BuildFailed(err.Error())
		}
		return err
	}

	challenge.ContainerImageName = &image
	challenge.ContainerConfig = datatypes.JSONMap{
		"image":       image,
		"ports":       map[string]interface{}{fmt.Sprintf("%d/tcp", port): nil},
		"environment": map[string]interface{}{"FLAG": challenge.Flag},
		"mem_limit":   fmt.Sprintf("%dm", s.dockerConfig.MemoryLimitMB),
		"cpu_quota":   s.dockerConfig.CPUQuota,
	}
	return nil
}

// uniqueTitle returns title, or title with a short suffix when it is taken
func (s *AIService) uniqueTitle(ctx context.Context, title string, category domain.Category) (string, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		title = string(category) + " Challenge"
	}
	title = infrastructure.Clip(title, maxGeneratedTitleLen)

	repo := s.challengeRepo.WithContext(ctx)
	taken, err := repo.TitleExists(title, uuid.Nil)
	if err != nil || !taken {
		return title, err
	}

	suffix, err := gonanoid.Generate(titleSuffixChars, 6)
	if err != nil {
		return "", err
	}
	return title + " #" + suffix, nil
}

// GenerateFlag asks a provider for a flag fitting a description
func (s *AIService) GenerateFlag(ctx context.Context, p domain.Principal, req *domain.GenerateFlagRequest) (*GeneratedFlag, error) {
	ctx, span := s.tracer.Start(ctx, "AIService.GenerateFlag")
	defer span.End()

	if !p.CanAuthor() {
		return nil, domain.ErrForbidden
	}
	category, err := domain.ParseCategory(req.Category)
	if err != nil {
		return nil, err
	}

	provider, err := s.registry.Current().Select(req.Provider)
	if err != nil {
		return nil, err
	}

	start := s.now()
	flag, exchange, err := provider.GenerateFlag(ctx, req.Description, category)
	s.logCall(ctx, p, provider, domain.CallTypeGenerateFlag, exchange, start, err)
	if err != nil {
		return nil, err
	}
	return &GeneratedFlag{Flag: flag, Provider: provider.Name()}, nil
}

// GenerateText forwards a free-form prompt
func (s *AIService) GenerateText(ctx context.Context, p domain.Principal, req *domain.GenerateTextRequest) (*GeneratedText, error) {
	ctx, span := s.tracer.Start(ctx, "AIService.GenerateText")
	defer span.End()

	if !p.CanAuthor() {
		return nil, domain.ErrForbidden
	}

	provider, err := s.registry.Current().Select(req.Provider)
	if err != nil {
		return nil, err
	}

	opts := &ai.CallOptions{}
	if req.MaxTokens != nil {
		opts.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		opts.Temperature = *req.Temperature
	}

	start := s.now()
	exchange, err := provider.GenerateText(ctx, req.Prompt, opts)
	s.logCall(ctx, p, provider, domain.CallTypeGenerateText, exchange, start, err)
	if err != nil {
		return nil, err
	}
	return &GeneratedText{
		Text:       exchange.Response,
		Provider:   provider.Name(),
		TokensUsed: exchange.TokensUsed,
	}, nil
}

// History returns generation records; admins see everyone's
func (s *AIService) History(ctx context.Context, p domain.Principal, page, pageSize int) (*domain.Page[domain.GenerationRecord], error) {
	ctx, span := s.tracer.Start(ctx, "AIService.History")
	defer span.End()

	page, pageSize = domain.NormalizePage(page, pageSize, maxHistoryPage)

	var requestedBy *uuid.UUID
	if !p.IsAdmin() {
		requestedBy = &p.UserID
	}

	records, total, err := s.generationRepo.WithContext(ctx).List(requestedBy, page, pageSize)
	if err != nil {
		return nil, err
	}
	return &domain.Page[domain.GenerationRecord]{
		Items:    records,
		Total:    total,
		Page:     page,
		PageSize: pageSize,
	}, nil
}

// logCall appends the call log row and records call latency. A failure to
// write the log never fails the call itself.
func (s *AIService) logCall(ctx context.Context, p domain.Principal, provider ai.Provider, callType string, exchange ai.Exchange, start time.Time, callErr error) {
	recordCall(ctx, s.callLogRepo, s.metrics, s.logger, &p.UserID, provider, callType, exchange, s.now().Sub(start), callErr)
}

func recordCall(
	ctx context.Context,
	repo domain.AICallLogRepository,
	metrics *infrastructure.TelemetryMetrics,
	logger *zap.Logger,
	userID *uuid.UUID,
	provider ai.Provider,
	callType string,
	exchange ai.Exchange,
	elapsed time.Duration,
	callErr error,
) {
	entry := &domain.AICallLog{
		UserID:     userID,
		Provider:   provider.Name(),
		Model:      provider.Model(),
		CallType:   callType,
		Prompt:     infrastructure.Truncate(exchange.Prompt, logExcerptLen),
		Response:   infrastructure.Truncate(exchange.Response, logExcerptLen),
		TokensUsed: exchange.TokensUsed,
		DurationMS: elapsed.Milliseconds(),
		Status:     domain.CallStatusSuccess,
	}
	if callErr != nil {
		entry.Status = domain.CallStatusFailed
		entry.ErrorMessage = callErr.Error()
	}

	if metrics != nil {
		metrics.AIRequestDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(
			attribute.String("provider", entry.Provider),
			attribute.String("call_type", callType),
			attribute.Bool("success", callErr == nil),
		))
	}

	if err := repo.WithContext(ctx).Create(entry); err != nil {
		logger.Warn("Failed to write AI call log",
			zap.String("provider", entry.Provider),
			zap.Error(err),
		)
	}
}

func (s *AIService) countGeneration(ctx context.Context, provider string, success bool) {
	if s.metrics == nil {
		return
	}
	s.metrics.ChallengesGenerated.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.Bool("success", success),
	))
}

// GenerateFlag returns a random flag{...} with a fixed-length alphanumeric payload
func GenerateFlag() (string, error) {
	payload, err := gonanoid.Generate(flagAlphabet, flagPayloadLen)
	if err != nil {
		return "", err
	}
	return "flag{" + payload + "}", nil
}

func orUnknown(name string) string {
	if name == "" {
		return unknownProvider
	}
	return name
}
