package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
	"github.com/DarkSword404/CTF-Platform/internal/infrastructure"
)

const (
	defaultScoreboardLimit = 50
	maxScoreboardLimit     = 500
)

// SubmissionService handles flag submissions and the scoreboard
type SubmissionService struct {
	challengeRepo domain.ChallengeRepository
	solveRepo     domain.SolveRepository
	cache         domain.ScoreboardCache
	metrics       *infrastructure.TelemetryMetrics
	tracer        trace.Tracer
	logger        *zap.Logger
	now           func() time.Time
}

// NewSubmissionService creates a new submission service
func NewSubmissionService(
	challengeRepo domain.ChallengeRepository,
	solveRepo domain.SolveRepository,
	cache domain.ScoreboardCache,
	metrics *infrastructure.TelemetryMetrics,
	tracer trace.Tracer,
	logger *zap.Logger,
) *SubmissionService {
	return &SubmissionService{
		challengeRepo: challengeRepo,
		solveRepo:     solveRepo,
		cache:         cache,
		metrics:       metrics,
		tracer:        tracer,
		logger:        logger,
		now:           time.Now,
	}
}

// Submit checks a flag and records the attempt. Only the first correct
// submission of a user for a challenge earns its score.
func (s *SubmissionService) Submit(ctx context.Context, p domain.Principal, challengeID uuid.UUID, candidate string) (*domain.SubmitResult, error) {
	ctx, span := s.tracer.Start(ctx, "SubmissionService.Submit")
	defer span.End()

	span.SetAttributes(
		attribute.String("user.id", p.UserID.String()),
		attribute.String("challenge.id", challengeID.String()),
	)

	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return nil, domain.ErrEmptyFlag
	}

	challenge, err := s.challengeRepo.WithContext(ctx).FindByID(challengeID)
	if err != nil {
		return nil, err
	}
	if challenge.Status != domain.StatusPublished {
		if !challenge.VisibleTo(p) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, domain.ErrChallengeNotAcceptingSubmissions
	}

	solve := &domain.Solve{
		UserID:        p.UserID,
		ChallengeID:   challenge.ID,
		SubmittedFlag: candidate,
		IsCorrect:     challenge.CheckFlag(candidate),
		SubmittedAt:   s.now(),
	}
	awarded, err := s.solveRepo.WithContext(ctx).RecordAttempt(solve, challenge.Score)
	if err != nil {
		s.logger.Error("Failed to record submission",
			zap.String("user_id", p.UserID.String()),
			zap.String("challenge_id", challengeID.String()),
			zap.Error(err),
		)
		return nil, err
	}

	result := &domain.SubmitResult{
		SolveID:       solve.ID,
		IsCorrect:     solve.IsCorrect,
		AlreadySolved: solve.IsCorrect && !awarded,
	}
	if awarded {
		result.ScoreAwarded = challenge.Score
		if err := s.cache.Invalidate(ctx); err != nil {
			s.logger.Warn("Failed to invalidate scoreboard cache", zap.Error(err))
		}
	}

	if s.metrics != nil {
		s.metrics.FlagSubmissions.Add(ctx, 1, metric.WithAttributes(
			attribute.Bool("correct", solve.IsCorrect),
		))
	}

	s.logger.Info("Flag submitted",
		zap.String("user_id", p.UserID.String()),
		zap.String("challenge_id", challengeID.String()),
		zap.Bool("correct", result.IsCorrect),
		zap.Int("score_awarded", result.ScoreAwarded),
	)
	span.SetAttributes(
		attribute.Bool("submission.correct", result.IsCorrect),
		attribute.Int("submission.score", result.ScoreAwarded),
	)
	return result, nil
}

// Scoreboard returns the ranking, served from cache when possible
func (s *SubmissionService) Scoreboard(ctx context.Context, limit int) ([]domain.ScoreboardEntry, error) {
	ctx, span := s.tracer.Start(ctx, "SubmissionService.Scoreboard")
	defer span.End()

	if limit <= 0 {
		limit = defaultScoreboardLimit
	}
	if limit > maxScoreboardLimit {
		limit = maxScoreboardLimit
	}

	entries, hit, err := s.cache.Get(ctx, limit)
	if err != nil {
		s.logger.Warn("Scoreboard cache read failed", zap.Error(err))
	}
	span.SetAttributes(attribute.Bool("cache.hit", hit))
	if hit {
		return entries, nil
	}

	entries, err = s.solveRepo.WithContext(ctx).Scoreboard(limit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []domain.ScoreboardEntry{}
	}

	if err := s.cache.Set(ctx, limit, entries); err != nil {
		s.logger.Warn("Scoreboard cache write failed", zap.Error(err))
	}
	return entries, nil
}
