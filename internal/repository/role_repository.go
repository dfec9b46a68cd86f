package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// roleRepository implements domain.RoleRepository using GORM
type roleRepository struct {
	db *gorm.DB
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *gorm.DB) domain.RoleRepository {
	return &roleRepository{db: db}
}

// FindByName finds a role by its unique name
func (r *roleRepository) FindByName(name string) (*domain.Role, error) {
	var role domain.Role
	result := r.db.Where("name = ?", name).First(&role)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrRoleNotFound
		}
		return nil, result.Error
	}
	return &role, nil
}

// FindAll returns every role ordered by id
func (r *roleRepository) FindAll() ([]domain.Role, error) {
	var roles []domain.Role
	result := r.db.Order("id ASC").Find(&roles)
	return roles, result.Error
}

// EnsureDefaults inserts any of the given roles that do not exist yet
func (r *roleRepository) EnsureDefaults(roles []domain.Role) error {
	for _, role := range roles {
		role := role
		if err := r.db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "name"}},
			DoNothing: true,
		}).Create(&role).Error; err != nil {
			return err
		}
	}
	return nil
}

// WithContext returns a repository with the given context for tracing
func (r *roleRepository) WithContext(ctx context.Context) domain.RoleRepository {
	return &roleRepository{db: r.db.WithContext(ctx)}
}
