package service

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"gorm.io/datatypes"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

const maxChallengePageSize = 100

// ChallengeService handles challenge authoring, review and visibility
type ChallengeService struct {
	challengeRepo domain.ChallengeRepository
	solveRepo     domain.SolveRepository
	tracer        trace.Tracer
	logger        *zap.Logger
	now           func() time.Time
}

// NewChallengeService creates a new challenge service
func NewChallengeService(
	challengeRepo domain.ChallengeRepository,
	solveRepo domain.SolveRepository,
	tracer trace.Tracer,
	logger *zap.Logger,
) *ChallengeService {
	return &ChallengeService{
		challengeRepo: challengeRepo,
		solveRepo:     solveRepo,
		tracer:        tracer,
		logger:        logger,
		now:           time.Now,
	}
}

// ListChallengesParams are the raw listing filters from a request
type ListChallengesParams struct {
	Category   string
	Difficulty string
	Status     string
	Search     string
	Page       int
	PageSize   int
}

// Create stores a new draft challenge authored by the caller
func (s *ChallengeService) Create(ctx context.Context, p domain.Principal, req *domain.CreateChallengeRequest) (*domain.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.Create")
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
	if req.Score <= 0 {
		return nil, domain.ErrInvalidScore
	}
	format, err := domain.ParseFlagFormat(req.FlagFormat)
	if err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	repo := s.challengeRepo.WithContext(ctx)
	taken, err := repo.TitleExists(title, uuid.Nil)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, domain.ErrChallengeTitleTaken
	}

	challenge := &domain.Challenge{
		Title:               title,
		Description:         req.Description,
		AuthorID:            p.UserID,
		Category:            category,
		Difficulty:          difficulty,
		Score:               req.Score,
		Flag:                req.Flag,
		FlagFormat:          format,
		IsCaseSensitiveFlag: req.IsCaseSensitiveFlag == nil || *req.IsCaseSensitiveFlag,
		Status:              domain.StatusDraft,
		Hints:               datatypes.JSONSlice[string](req.Hints),
		Solution:            req.Solution,
		ContainerImageName:  req.ContainerImageName,
	}
	if req.ContainerConfig != nil {
		challenge.ContainerConfig = datatypes.JSONMap(req.ContainerConfig)
	}

	if err := repo.Create(challenge); err != nil {
		return nil, err
	}

	s.logger.Info("Challenge created",
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("user_id", p.UserID.String()),
	)
	span.SetAttributes(attribute.String("challenge.id", challenge.ID.String()))
	return challenge, nil
}

// Get returns a challenge the caller may see, annotated for the caller
func (s *ChallengeService) Get(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.ChallengeResponse, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.Get")
	defer span.End()

	span.SetAttributes(attribute.String("challenge.id", id.String()))

	challenge, err := s.findVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}

	responses, err := s.annotate(ctx, p, []domain.Challenge{*challenge})
	if err != nil {
		return nil, err
	}
	return &responses[0], nil
}

// List returns a page of challenges visible to the caller
func (s *ChallengeService) List(ctx context.Context, p domain.Principal, params ListChallengesParams) (*domain.Page[domain.ChallengeResponse], error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.List")
	defer span.End()

	filter := domain.ChallengeFilter{Search: strings.TrimSpace(params.Search)}
	filter.Page, filter.PageSize = domain.NormalizePage(params.Page, params.PageSize, maxChallengePageSize)

	if params.Category != "" {
		category, err := domain.ParseCategory(params.Category)
		if err != nil {
			return nil, err
		}
		filter.Category = &category
	}
	if params.Difficulty != "" {
		difficulty, err := domain.ParseDifficulty(params.Difficulty)
		if err != nil {
			return nil, err
		}
		filter.Difficulty = &difficulty
	}
	if params.Status != "" {
		status, err := domain.ParseStatus(params.Status)
		if err != nil {
			return nil, err
		}
		filter.Status = &status
	}
	if !p.IsAdmin() {
		filter.VisibleTo = &p.UserID
	}

	challenges, total, err := s.challengeRepo.WithContext(ctx).List(filter)
	if err != nil {
		return nil, err
	}

	items, err := s.annotate(ctx, p, challenges)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(attribute.Int64("challenge.total", total))
	return &domain.Page[domain.ChallengeResponse]{
		Items:    items,
		Total:    total,
		Page:     filter.Page,
		PageSize: filter.PageSize,
	}, nil
}

// Update applies a partial update. The flag, its format and its case
// sensitivity are written in the same statement.
func (s *ChallengeService) Update(ctx context.Context, p domain.Principal, id uuid.UUID, req *domain.UpdateChallengeRequest) (*domain.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.Update")
	defer span.End()

	repo := s.challengeRepo.WithContext(ctx)
	challenge, err := s.findManaged(ctx, p, id)
	if err != nil {
		return nil, err
	}

	if req.Title != nil {
		title := strings.TrimSpace(*req.Title)
		if title == "" {
			return nil, domain.Invalid("title", "must not be empty")
		}
		if title != challenge.Title {
			taken, err := repo.TitleExists(title, challenge.ID)
			if err != nil {
				return nil, err
			}
			if taken {
				return nil, domain.ErrChallengeTitleTaken
			}
			challenge.Title = title
		}
	}
	if req.Description != nil {
		challenge.Description = *req.Description
	}
	if req.Category != nil {
		category, err := domain.ParseCategory(*req.Category)
		if err != nil {
			return nil, err
		}
		challenge.Category = category
	}
	if req.Difficulty != nil {
		difficulty, err := domain.ParseDifficulty(*req.Difficulty)
		if err != nil {
			return nil, err
		}
		challenge.Difficulty = difficulty
	}
	if req.Score != nil {
		if *req.Score <= 0 {
			return nil, domain.ErrInvalidScore
		}
		challenge.Score = *req.Score
	}
	if req.Flag != nil {
		if strings.TrimSpace(*req.Flag) == "" {
			return nil, domain.ErrEmptyFlag
		}
		challenge.Flag = *req.Flag
	}
	if req.FlagFormat != nil {
		format, err := domain.ParseFlagFormat(*req.FlagFormat)
		if err != nil {
			return nil, err
		}
		challenge.FlagFormat = format
	}
	if req.IsCaseSensitiveFlag != nil {
		challenge.IsCaseSensitiveFlag = *req.IsCaseSensitiveFlag
	}
	if req.Hints != nil {
		challenge.Hints = datatypes.JSONSlice[string](req.Hints)
	}
	if req.Solution != nil {
		challenge.Solution = *req.Solution
	}
	if req.ContainerImageName != nil {
		name := strings.TrimSpace(*req.ContainerImageName)
		if name == "" {
			challenge.ContainerImageName = nil
		} else {
			challenge.ContainerImageName = &name
		}
	}
	if req.ContainerConfig != nil {
		challenge.ContainerConfig = datatypes.JSONMap(req.ContainerConfig)
	}

	if err := repo.Update(challenge); err != nil {
		return nil, err
	}

	s.logger.Info("Challenge updated",
		zap.String("challenge_id", challenge.ID.String()),
		zap.String("user_id", p.UserID.String()),
	)
	return challenge, nil
}

// Delete removes a challenge with its submissions. Authors may only delete
// challenges that were never published.
func (s *ChallengeService) Delete(ctx context.Context, p domain.Principal, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.Delete")
	defer span.End()

	challenge, err := s.findManaged(ctx, p, id)
	if err != nil {
		return err
	}
	if !p.IsAdmin() && challenge.Status == domain.StatusPublished {
		return domain.ErrChallengePublished
	}

	if err := s.challengeRepo.WithContext(ctx).DeleteCascade(id); err != nil {
		return err
	}

	s.logger.Info("Challenge deleted",
		zap.String("challenge_id", id.String()),
		zap.String("user_id", p.UserID.String()),
	)
	return nil
}

// SubmitForReview queues the author's draft or rejected challenge for review
func (s *ChallengeService) SubmitForReview(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.SubmitForReview")
	defer span.End()

	repo := s.challengeRepo.WithContext(ctx)
	challenge, err := s.findVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if challenge.AuthorID != p.UserID {
		return nil, domain.ErrForbidden
	}
	if err := challenge.SubmitForReview(); err != nil {
		return nil, err
	}
	if err := repo.Update(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// Review approves or rejects a challenge waiting for review
func (s *ChallengeService) Review(ctx context.Context, p domain.Principal, id uuid.UUID, action string) (*domain.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.Review")
	defer span.End()

	span.SetAttributes(attribute.String("review.action", action))

	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	repo := s.challengeRepo.WithContext(ctx)
	challenge, err := repo.FindByID(id)
	if err != nil {
		return nil, err
	}

	switch action {
	case domain.ReviewApprove:
		err = challenge.Approve(s.now())
	case domain.ReviewReject:
		err = challenge.Reject()
	default:
		err = domain.Invalid("action", "must be approve or reject")
	}
	if err != nil {
		return nil, err
	}

	if err := repo.Update(challenge); err != nil {
		return nil, err
	}

	s.logger.Info("Challenge reviewed",
		zap.String("challenge_id", id.String()),
		zap.String("action", action),
		zap.String("user_id", p.UserID.String()),
	)
	return challenge, nil
}

// SetStatus applies a direct admin status change
func (s *ChallengeService) SetStatus(ctx context.Context, p domain.Principal, id uuid.UUID, status string) (*domain.Challenge, error) {
	ctx, span := s.tracer.Start(ctx, "ChallengeService.SetStatus")
	defer span.End()

	if !p.IsAdmin() {
		return nil, domain.ErrForbidden
	}

	target, err := domain.ParseStatus(status)
	if err != nil {
		return nil, err
	}

	repo := s.challengeRepo.WithContext(ctx)
	challenge, err := repo.FindByID(id)
	if err != nil {
		return nil, err
	}
	if err := challenge.SetStatus(target, s.now()); err != nil {
		return nil, err
	}
	if err := repo.Update(challenge); err != nil {
		return nil, err
	}
	return challenge, nil
}

// findVisible loads a challenge, hiding it from callers who may not see it
func (s *ChallengeService) findVisible(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Challenge, error) {
	challenge, err := s.challengeRepo.WithContext(ctx).FindByID(id)
	if err != nil {
		return nil, err
	}
	if !challenge.VisibleTo(p) {
		return nil, domain.ErrChallengeNotFound
	}
	return challenge, nil
}

// findManaged loads a challenge the caller may modify
func (s *ChallengeService) findManaged(ctx context.Context, p domain.Principal, id uuid.UUID) (*domain.Challenge, error) {
	challenge, err := s.findVisible(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if !challenge.CanManage(p) {
		return nil, domain.ErrForbidden
	}
	return challenge, nil
}

// annotate converts challenges to responses with solve counts and the
// caller's solved status. Secrets are kept for authors and admins only.
func (s *ChallengeService) annotate(ctx context.Context, p domain.Principal, challenges []domain.Challenge) ([]domain.ChallengeResponse, error) {
	ids := make([]uuid.UUID, len(challenges))
	for i := range challenges {
		ids[i] = challenges[i].ID
	}

	solves := s.solveRepo.WithContext(ctx)
	counts, err := solves.SolveCounts(ids)
	if err != nil {
		return nil, err
	}
	solvedIDs, err := solves.SolvedChallengeIDs(p.UserID)
	if err != nil {
		return nil, err
	}
	solved := make(map[uuid.UUID]struct{}, len(solvedIDs))
	for _, id := range solvedIDs {
		solved[id] = struct{}{}
	}

	responses := make([]domain.ChallengeResponse, len(challenges))
	for i := range challenges {
		c := &challenges[i]
		resp := c.ToResponse(c.CanManage(p))
		resp.SolveCount = counts[c.ID]
		_, resp.SolvedByUser = solved[c.ID]
		responses[i] = resp
	}
	return responses, nil
}
