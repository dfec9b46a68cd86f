package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

// ContainerBackend runs per-user challenge containers
type ContainerBackend interface {
	Start(ctx context.Context, image, challengeID, userID string, env map[string]string) domain.StartResult
	Stop(ctx context.Context, name string) domain.StopResult
	List(ctx context.Context, challengeID, userID string) ([]domain.ContainerInfo, error)
	ReapExpired(ctx context.Context, maxAge time.Duration) (domain.ReapReport, error)
}

// ContainerService starts and stops challenge instances on behalf of players
type ContainerService struct {
	challengeRepo domain.ChallengeRepository
	backend       ContainerBackend
	maxAge        time.Duration
	metrics       *infrastructure.TelemetryMetrics
	tracer        trace.Tracer
	logger        *zap.Logger
}

// NewContainerService creates a new container service
func NewContainerService(
	challengeRepo domain.ChallengeRepository,
	backend ContainerBackend,
	dockerConfig infrastructure.DockerConfig,
	metrics *infrastructure.TelemetryMetrics,
	tracer trace.Tracer,
	logger *zap.Logger,
) *ContainerService {
	return &ContainerService{
		challengeRepo: challengeRepo,
		backend:       backend,
		maxAge:        dockerConfig.MaxContainerAge,
		metrics:       metrics,
		tracer:        tracer,
		logger:        logger,
	}
}

// Start launches a personal instance of a challenge image. Backend failures
// come back in the result, not as errors.
func (s *ContainerService) Start(ctx context.Context, p domain.Principal, challengeID uuid.UUID) (*domain.StartResult, error) {
	ctx, span := s.tracer.Start(ctx, "ContainerService.Start")
	defer span.End()

	challenge, err := s.challengeRepo.WithContext(ctx).FindByID(challengeID)
	if err != nil {
		return nil, err
	}
	if !challenge.VisibleTo(p) {
		return nil, domain.ErrChallengeNotFound
	}
	if challenge.ContainerImageName == nil || *challenge.ContainerImageName == "" {
		return nil, domain.ErrNoContainerImage
	}

	result := s.backend.Start(ctx, *challenge.ContainerImageName, challenge.ID.String(), p.UserID.String(), containerEnv(challenge.ContainerConfig))
	if !result.Success {
		s.logger.Warn("Challenge container did not start",
			zap.String("challenge_id", challengeID.String()),
			zap.String("user_id", p.UserID.String()),
			zap.String("error", result.Error),
		)
		return &result, nil
	}

	s.adjustRunning(ctx, 1)
	span.SetAttributes(attribute.String("container.name", result.ContainerName))
	s.logger.Info("Challenge container started",
		zap.String("challenge_id", challengeID.String()),
		zap.String("user_id", p.UserID.String()),
		zap.String("container", result.ContainerName),
	)
	return &result, nil
}

// Stop stops one of the caller's instances of a challenge. Admins may stop
// any managed container. Containers the caller does not own are reported as
// not found.
func (s *ContainerService) Stop(ctx context.Context, p domain.Principal, challengeID uuid.UUID, name string) (*domain.StopResult, error) {
	ctx, span := s.tracer.Start(ctx, "ContainerService.Stop")
	defer span.End()

	if !p.IsAdmin() {
		owned, err := s.backend.List(ctx, challengeID.String(), p.UserID.String())
		if err != nil {
			return &domain.StopResult{Error: err.Error()}, nil
		}
		if !containsContainer(owned, name) {
			return &domain.StopResult{Error: domain.ErrContainerNotFound.Error()}, nil
		}
	}

	result := s.backend.Stop(ctx, name)
	if result.Success {
		s.adjustRunning(ctx, -1)
	}
	return &result, nil
}

// Instances lists the caller's running instances
func (s *ContainerService) Instances(ctx context.Context, p domain.Principal) ([]domain.ContainerInfo, error) {
	ctx, span := s.tracer.Start(ctx, "ContainerService.Instances")
	defer span.End()

	infos, err := s.backend.List(ctx, "", p.UserID.String())
	if err != nil {
		return nil, err
	}
	return infos, nil
}

// AdminList lists every managed container
func (s *ContainerService) AdminList(ctx context.Context) ([]domain.ContainerInfo, error) {
	ctx, span := s.tracer.Start(ctx, "ContainerService.AdminList")
	defer span.End()

	return s.backend.List(ctx, "", "")
}

// Cleanup reaps containers older than maxAgeHours, or the configured age when unset
func (s *ContainerService) Cleanup(ctx context.Context, maxAgeHours float64) (*domain.ReapReport, error) {
	ctx, span := s.tracer.Start(ctx, "ContainerService.Cleanup")
	defer span.End()

	maxAge := s.maxAge
	if maxAgeHours > 0 {
		maxAge = time.Duration(maxAgeHours * float64(time.Hour))
	}

	report, err := s.backend.ReapExpired(ctx, maxAge)
	if err != nil {
		return nil, err
	}
	s.adjustRunning(ctx, -int64(len(report.Stopped)))
	return &report, nil
}

// RunReaper runs Cleanup with the configured age every interval until ctx is
// cancelled
func (s *ContainerService) RunReaper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if ctx.Err() != nil {
				return
			}
			if _, err := s.Cleanup(ctx, 0); err != nil && !errors.Is(err, context.Canceled) {
				s.logger.Warn("Container reap failed", zap.Error(err))
			}
		}
	}
}

func (s *ContainerService) adjustRunning(ctx context.Context, delta int64) {
	if s.metrics == nil || delta == 0 {
		return
	}
	s.metrics.ContainersRunning.Add(ctx, delta)
}

// containerEnv reads the environment block of a stored container config
func containerEnv(cfg map[string]interface{}) map[string]string {
	raw, ok := cfg["environment"].(map[string]interface{})
	if !ok {
		return nil
	}
	env := make(map[string]string, len(raw))
	for k, v := range raw {
		env[k] = fmt.Sprint(v)
	}
	return env
}

func containsContainer(infos []domain.ContainerInfo, name string) bool {
	for _, c := range infos {
		if c.Name == name || c.ID == name {
			return true
		}
	}
	return false
}
