package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// generationRepository implements domain.GenerationRepository using GORM
type generationRepository struct {
	db *gorm.DB
}

// NewGenerationRepository creates a new generation history repository
func NewGenerationRepository(db *gorm.DB) domain.GenerationRepository {
	return &generationRepository{db: db}
}

// Create appends a generation record
func (r *generationRepository) Create(record *domain.GenerationRecord) error {
	return r.db.Create(record).Error
}

// CreateWithChallenge persists a synthesized challenge and its success record
// in one transaction so a challenge never exists without its history.
func (r *generationRepository) CreateWithChallenge(challenge *domain.Challenge, record *domain.GenerationRecord) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Author").Create(challenge).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return domain.ErrChallengeTitleTaken
			}
			return err
		}
		record.ChallengeID = &challenge.ID
		return tx.Create(record).Error
	})
}

// List returns a page of generation records, newest first. A nil requestedBy
// returns every user's history.
func (r *generationRepository) List(requestedBy *uuid.UUID, page, pageSize int) ([]domain.GenerationRecord, int64, error) {
	query := r.db.Model(&domain.GenerationRecord{})
	if requestedBy != nil {
		query = query.Where("requested_by = ?", *requestedBy)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var records []domain.GenerationRecord
	result := query.
		Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&records)
	return records, total, result.Error
}

// Count returns the number of synthesis attempts
func (r *generationRepository) Count() (int64, error) {
	var count int64
	result := r.db.Model(&domain.GenerationRecord{}).Count(&count)
	return count, result.Error
}

// CountSuccessful returns the number of successful synthesis attempts
func (r *generationRepository) CountSuccessful() (int64, error) {
	var count int64
	result := r.db.Model(&domain.GenerationRecord{}).Where("success = ?", true).Count(&count)
	return count, result.Error
}

// WithContext returns a repository with the given context for tracing
func (r *generationRepository) WithContext(ctx context.Context) domain.GenerationRepository {
	return &generationRepository{db: r.db.WithContext(ctx)}
}
