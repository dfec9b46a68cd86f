package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// aiProviderRepository implements domain.AIProviderRepository using GORM
type aiProviderRepository struct {
	db *gorm.DB
}

// NewAIProviderRepository creates a new provider config repository
func NewAIProviderRepository(db *gorm.DB) domain.AIProviderRepository {
	return &aiProviderRepository{db: db}
}

// Create stores a new provider config
func (r *aiProviderRepository) Create(cfg *domain.AIProviderConfig) error {
	result := r.db.Create(cfg)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return domain.ErrProviderExists
	}
	return result.Error
}

// FindByID finds a provider config by its ID
func (r *aiProviderRepository) FindByID(id uuid.UUID) (*domain.AIProviderConfig, error) {
	var cfg domain.AIProviderConfig
	result := r.db.Where("id = ?", id).First(&cfg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, result.Error
	}
	return &cfg, nil
}

// FindByName finds a provider config by its provider name
func (r *aiProviderRepository) FindByName(name string) (*domain.AIProviderConfig, error) {
	var cfg domain.AIProviderConfig
	result := r.db.Where("provider_name = ?", name).First(&cfg)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProviderNotFound
		}
		return nil, result.Error
	}
	return &cfg, nil
}

// FindAll returns every provider config, highest priority first
func (r *aiProviderRepository) FindAll() ([]domain.AIProviderConfig, error) {
	var cfgs []domain.AIProviderConfig
	result := r.db.Order("priority DESC").Order("provider_name ASC").Find(&cfgs)
	return cfgs, result.Error
}

// Update saves an existing provider config
func (r *aiProviderRepository) Update(cfg *domain.AIProviderConfig) error {
	return r.db.Save(cfg).Error
}

// Delete removes a provider config by its ID
func (r *aiProviderRepository) Delete(id uuid.UUID) error {
	result := r.db.Delete(&domain.AIProviderConfig{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return domain.ErrProviderNotFound
	}
	return nil
}

// WithContext returns a repository with the given context for tracing
func (r *aiProviderRepository) WithContext(ctx context.Context) domain.AIProviderRepository {
	return &aiProviderRepository{db: r.db.WithContext(ctx)}
}
