package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

const (
	maxAdminPageSize = 100
	defaultUsageDays = 7
	maxUsageDays     = 90
)

// AdminService serves user administration and platform reporting
type AdminService struct {
	userRepo       domain.UserRepository
	challengeRepo  domain.ChallengeRepository
	solveRepo      domain.SolveRepository
	callLogRepo    domain.AICallLogRepository
	generationRepo domain.GenerationRepository
	cache          domain.ScoreboardCache
	tracer         trace.Tracer
	logger         *zap.Logger
	now            func() time.Time
}

// NewAdminService creates a new admin service
func NewAdminService(
	userRepo domain.UserRepository,
	challengeRepo domain.ChallengeRepository,
	solveRepo domain.SolveRepository,
	callLogRepo domain.AICallLogRepository,
	generationRepo domain.GenerationRepository,
	cache domain.ScoreboardCache,
	tracer trace.Tracer,
	logger *zap.Logger,
) *AdminService {
	return &AdminService{
		userRepo:       userRepo,
		challengeRepo:  challengeRepo,
		solveRepo:      solveRepo,
		callLogRepo:    callLogRepo,
		generationRepo: generationRepo,
		cache:          cache,
		tracer:         tracer,
		logger:         logger,
		now:            time.Now,
	}
}

// ListUsers returns a filtered page of users
func (s *AdminService) ListUsers(ctx context.Context, filter domain.UserFilter) (*domain.Page[domain.UserResponse], error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.ListUsers")
	defer span.End()

	filter.Page, filter.PageSize = domain.NormalizePage(filter.Page, filter.PageSize, maxAdminPageSize)

	users, total, err := s.userRepo.WithContext(ctx).List(filter)
	if err != nil {
		return nil, err
	}

	items := make([]domain.UserResponse, len(users))
	for i := range users {
		items[i] = users[i].ToResponse()
	}
	return &domain.Page[domain.UserResponse]{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// UpdateUser applies an admin change to a user's flags, nickname or roles
func (s *AdminService) UpdateUser(ctx context.Context, actor domain.Principal, id uuid.UUID, req *domain.AdminUpdateUserRequest) (*domain.UserResponse, error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.UpdateUser")
	defer span.End()

	repo := s.userRepo.WithContext(ctx)
	user, err := repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}
	if req.IsLocked != nil {
		user.IsLocked = *req.IsLocked
	}
	if req.Nickname != nil {
		user.Nickname = *req.Nickname
	}
	if err := repo.Update(user); err != nil {
		return nil, err
	}

	if req.Roles != nil {
		if err := repo.ReplaceRoles(user, req.Roles); err != nil {
			return nil, err
		}
	}

	s.logger.Info("User updated by admin",
		zap.String("user_id", id.String()),
		zap.String("admin_id", actor.UserID.String()),
		zap.Strings("roles", user.RoleNames()),
	)
	span.SetAttributes(attribute.String("user.id", id.String()))

	resp := user.ToResponse()
	return &resp, nil
}

// DeleteUser removes a non-admin user. Their non-draft challenges and
// generation history pass to the acting admin.
func (s *AdminService) DeleteUser(ctx context.Context, actor domain.Principal, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "AdminService.DeleteUser")
	defer span.End()

	repo := s.userRepo.WithContext(ctx)
	user, err := repo.FindByID(id)
	if err != nil {
		return err
	}
	if user.HasRole(domain.RoleAdmin) {
		return domain.ErrCannotDeleteAdmin
	}

	if err := repo.DeleteCascade(id, actor.UserID); err != nil {
		return err
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.logger.Warn("Failed to invalidate scoreboard cache", zap.Error(err))
	}

	s.logger.Info("User deleted",
		zap.String("user_id", id.String()),
		zap.String("username", user.Username),
		zap.String("admin_id", actor.UserID.String()),
	)
	return nil
}

// Statistics gathers the dashboard counters
func (s *AdminService) Statistics(ctx context.Context) (*domain.PlatformStatistics, error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.Statistics")
	defer span.End()

	var stats domain.PlatformStatistics
	var err error

	users := s.userRepo.WithContext(ctx)
	if stats.Users.Total, err = users.Count(); err != nil {
		return nil, err
	}
	if stats.Users.Active, err = users.CountWhere("is_active", true); err != nil {
		return nil, err
	}
	if stats.Users.Locked, err = users.CountWhere("is_locked", true); err != nil {
		return nil, err
	}

	challenges := s.challengeRepo.WithContext(ctx)
	if stats.Challenges.Total, err = challenges.Count(); err != nil {
		return nil, err
	}
	if stats.Challenges.ByStatus, err = challenges.CountByStatus(); err != nil {
		return nil, err
	}
	if stats.Challenges.ByCategory, err = challenges.CountByCategory(); err != nil {
		return nil, err
	}

	solves := s.solveRepo.WithContext(ctx)
	if stats.Solves.Total, err = solves.Count(); err != nil {
		return nil, err
	}
	if stats.Solves.Correct, err = solves.CountCorrect(); err != nil {
		return nil, err
	}

	calls := s.callLogRepo.WithContext(ctx)
	if stats.AI.Calls, err = calls.Count(); err != nil {
		return nil, err
	}
	if stats.AI.FailedCalls, err = calls.CountFailed(); err != nil {
		return nil, err
	}

	generations := s.generationRepo.WithContext(ctx)
	if stats.AI.Generations, err = generations.Count(); err != nil {
		return nil, err
	}
	if stats.AI.SuccessfulGenerations, err = generations.CountSuccessful(); err != nil {
		return nil, err
	}

	return &stats, nil
}

// CallLogs returns a filtered page of the AI call log
func (s *AdminService) CallLogs(ctx context.Context, filter domain.CallLogFilter) (*domain.Page[domain.AICallLog], error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.CallLogs")
	defer span.End()

	filter.Page, filter.PageSize = domain.NormalizePage(filter.Page, filter.PageSize, maxAdminPageSize)

	logs, total, err := s.callLogRepo.WithContext(ctx).List(filter)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []domain.AICallLog{}
	}
	return &domain.Page[domain.AICallLog]{
		Items:    logs,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// UsageStats aggregates the call log per provider and day over the last days
func (s *AdminService) UsageStats(ctx context.Context, days int) ([]domain.AIUsageStat, error) {
	ctx, span := s.tracer.Start(ctx, "AdminService.UsageStats")
	defer span.End()

	if days <= 0 {
		days = defaultUsageDays
	}
	if days > maxUsageDays {
		days = maxUsageDays
	}
	span.SetAttributes(attribute.Int("usage.days", days))

	since := s.now().AddDate(0, 0, -days)
	stats, err := s.callLogRepo.WithContext(ctx).UsageStats(since)
	if err != nil {
		return nil, err
	}
	if stats == nil {
		stats = []domain.AIUsageStat{}
	}
	return stats, nil
}
