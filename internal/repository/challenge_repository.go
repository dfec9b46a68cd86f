package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// challengeRepository implements domain.ChallengeRepository using GORM
type challengeRepository struct {
	db *gorm.DB
}

// NewChallengeRepository creates a new challenge repository
func NewChallengeRepository(db *gorm.DB) domain.ChallengeRepository {
	return &challengeRepository{db: db}
}

// Create creates a new challenge in the database
func (r *challengeRepository) Create(challenge *domain.Challenge) error {
	result := r.db.Omit("Author").Create(challenge)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return domain.ErrChallengeTitleTaken
	}
	return result.Error
}

// FindByID finds a challenge by its ID
func (r *challengeRepository) FindByID(id uuid.UUID) (*domain.Challenge, error) {
	var challenge domain.Challenge
	result := r.db.Where("id = ?", id).First(&challenge)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrChallengeNotFound
		}
		return nil, result.Error
	}
	return &challenge, nil
}

// TitleExists reports whether another challenge already uses title
func (r *challengeRepository) TitleExists(title string, excludeID uuid.UUID) (bool, error) {
	var count int64
	query := r.db.Model(&domain.Challenge{}).Where("title = ?", title)
	if excludeID != uuid.Nil {
		query = query.Where("id <> ?", excludeID)
	}
	result := query.Count(&count)
	return count > 0, result.Error
}

// List returns a page of challenges matching the filter, newest first
func (r *challengeRepository) List(filter domain.ChallengeFilter) ([]domain.Challenge, int64, error) {
	query := r.db.Model(&domain.Challenge{})

	if filter.Category != nil {
		query = query.Where("category = ?", *filter.Category)
	}
	if filter.Difficulty != nil {
		query = query.Where("difficulty = ?", *filter.Difficulty)
	}
	if filter.Status != nil {
		query = query.Where("status = ?", *filter.Status)
	}
	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("title LIKE ? OR description LIKE ?", like, like)
	}
	if filter.VisibleTo != nil {
		query = query.Where("status = ? OR author_id = ?", domain.StatusPublished, *filter.VisibleTo)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var challenges []domain.Challenge
	result := query.
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&challenges)
	return challenges, total, result.Error
}

// Update saves every challenge column in one statement
func (r *challengeRepository) Update(challenge *domain.Challenge) error {
	result := r.db.Omit("Author").Save(challenge)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return domain.ErrChallengeTitleTaken
	}
	return result.Error
}

// DeleteCascade removes a challenge with its submissions and awards.
// Generation history is kept and detached.
func (r *challengeRepository) DeleteCascade(id uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("challenge_id = ?", id).Delete(&domain.ScoreAward{}).Error; err != nil {
			return err
		}
		if err := tx.Where("challenge_id = ?", id).Delete(&domain.Solve{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.GenerationRecord{}).
			Where("challenge_id = ?", id).
			Update("challenge_id", nil).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.Challenge{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrChallengeNotFound
		}
		return nil
	})
}

// CountByStatus returns the number of challenges in each lifecycle state
func (r *challengeRepository) CountByStatus() (map[domain.ChallengeStatus]int64, error) {
	var rows []struct {
		Status domain.ChallengeStatus
		Count  int64
	}
	result := r.db.Model(&domain.Challenge{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[domain.ChallengeStatus]int64, len(rows))
	for _, row := range rows {
		counts[row.Status] = row.Count
	}
	return counts, nil
}

// CountByCategory returns the number of challenges in each category
func (r *challengeRepository) CountByCategory() (map[domain.Category]int64, error) {
	var rows []struct {
		Category domain.Category
		Count    int64
	}
	result := r.db.Model(&domain.Challenge{}).
		Select("category, COUNT(*) AS count").
		Group("category").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	counts := make(map[domain.Category]int64, len(rows))
	for _, row := range rows {
		counts[row.Category] = row.Count
	}
	return counts, nil
}

// Count returns the total number of challenges
func (r *challengeRepository) Count() (int64, error) {
	var count int64
	result := r.db.Model(&domain.Challenge{}).Count(&count)
	return count, result.Error
}

// WithContext returns a repository with the given context for tracing
func (r *challengeRepository) WithContext(ctx context.Context) domain.ChallengeRepository {
	return &challengeRepository{db: r.db.WithContext(ctx)}
}
