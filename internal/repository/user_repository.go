package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// userRepository implements domain.UserRepository using GORM
type userRepository struct {
	db *gorm.DB
}

// NewUserRepository creates a new user repository
func NewUserRepository(db *gorm.DB) domain.UserRepository {
	return &userRepository{db: db}
}

// Create creates a new user together with its role links
func (r *userRepository) Create(user *domain.User, roleNames ...string) error {
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if len(roleNames) > 0 {
			roles, err := findRoles(tx, roleNames)
			if err != nil {
				return err
			}
			user.Roles = roles
		}
		// role rows already exist; only the join rows are inserted
		return tx.Omit("Roles.*").Create(user).Error
	})
	if err != nil {
		// Check for unique constraint violation
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return domain.ErrDuplicateIdentity
		}
		return err
	}
	return nil
}

// FindByID finds a user by their ID with roles loaded
func (r *userRepository) FindByID(id uuid.UUID) (*domain.User, error) {
	var user domain.User
	result := r.db.Preload("Roles").Where("id = ?", id).First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// FindByUsernameOrEmail resolves a login identifier against both unique columns
func (r *userRepository) FindByUsernameOrEmail(identifier string) (*domain.User, error) {
	var user domain.User
	result := r.db.Preload("Roles").
		Where("username = ? OR email = ?", identifier, identifier).
		First(&user)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, result.Error
	}
	return &user, nil
}

// ExistsByUsernameOrEmail reports whether either identity is already taken
func (r *userRepository) ExistsByUsernameOrEmail(username, email string) (bool, error) {
	var count int64
	result := r.db.Model(&domain.User{}).
		Where("username = ? OR email = ?", username, email).
		Count(&count)
	return count > 0, result.Error
}

// List returns a page of users matching the filter, newest first
func (r *userRepository) List(filter domain.UserFilter) ([]domain.User, int64, error) {
	query := r.db.Model(&domain.User{})

	if filter.Search != "" {
		like := "%" + filter.Search + "%"
		query = query.Where("username LIKE ? OR email LIKE ? OR nickname LIKE ?", like, like, like)
	}
	if filter.IsActive != nil {
		query = query.Where("is_active = ?", *filter.IsActive)
	}
	if filter.Role != "" {
		query = query.Where("id IN (?)",
			r.db.Table("user_roles").
				Select("user_roles.user_id").
				Joins("JOIN roles ON roles.id = user_roles.role_id").
				Where("roles.name = ?", filter.Role),
		)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var users []domain.User
	result := query.
		Preload("Roles").
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&users)
	return users, total, result.Error
}

// Update saves scalar user fields; role links are managed by ReplaceRoles
func (r *userRepository) Update(user *domain.User) error {
	result := r.db.Omit("Roles").Save(user)
	if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
		return domain.ErrDuplicateIdentity
	}
	return result.Error
}

// TouchLastLogin stamps a successful authentication
func (r *userRepository) TouchLastLogin(id uuid.UUID, at time.Time) error {
	return r.db.Model(&domain.User{}).
		Where("id = ?", id).
		UpdateColumn("last_login_at", at).Error
}

// ReplaceRoles swaps the user's role set for the named roles
func (r *userRepository) ReplaceRoles(user *domain.User, roleNames []string) error {
	roles, err := findRoles(r.db, roleNames)
	if err != nil {
		return err
	}
	if err := r.db.Model(user).Association("Roles").Replace(roles); err != nil {
		return err
	}
	user.Roles = roles
	return nil
}

// findRoles loads the named roles, failing with ErrRoleNotFound unless every
// name exists
func findRoles(db *gorm.DB, roleNames []string) ([]domain.Role, error) {
	var roles []domain.Role
	if len(roleNames) == 0 {
		return roles, nil
	}
	if err := db.Where("name IN ?", roleNames).Find(&roles).Error; err != nil {
		return nil, err
	}
	if len(roles) != len(uniqueStrings(roleNames)) {
		return nil, domain.ErrRoleNotFound
	}
	return roles, nil
}

// DeleteCascade removes a user and everything that only makes sense with them.
// Draft challenges go with the user; anything further along the lifecycle is
// handed to heirID so published content survives.
func (r *userRepository) DeleteCascade(id, heirID uuid.UUID) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		var drafts []uuid.UUID
		if err := tx.Model(&domain.Challenge{}).
			Where("author_id = ? AND status = ?", id, domain.StatusDraft).
			Pluck("id", &drafts).Error; err != nil {
			return err
		}
		if len(drafts) > 0 {
			if err := tx.Where("challenge_id IN ?", drafts).Delete(&domain.ScoreAward{}).Error; err != nil {
				return err
			}
			if err := tx.Where("challenge_id IN ?", drafts).Delete(&domain.Solve{}).Error; err != nil {
				return err
			}
			if err := tx.Model(&domain.GenerationRecord{}).
				Where("challenge_id IN ?", drafts).
				Update("challenge_id", nil).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", drafts).Delete(&domain.Challenge{}).Error; err != nil {
				return err
			}
		}

		if err := tx.Model(&domain.Challenge{}).
			Where("author_id = ?", id).
			Update("author_id", heirID).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.ScoreAward{}).Error; err != nil {
			return err
		}
		if err := tx.Where("user_id = ?", id).Delete(&domain.Solve{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.GenerationRecord{}).
			Where("requested_by = ?", id).
			Update("requested_by", heirID).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.AICallLog{}).
			Where("user_id = ?", id).
			Update("user_id", nil).Error; err != nil {
			return err
		}
		if err := tx.Exec("DELETE FROM user_roles WHERE user_id = ?", id).Error; err != nil {
			return err
		}

		result := tx.Delete(&domain.User{}, "id = ?", id)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return domain.ErrUserNotFound
		}
		return nil
	})
}

// Count returns the number of registered users
func (r *userRepository) Count() (int64, error) {
	var count int64
	result := r.db.Model(&domain.User{}).Count(&count)
	return count, result.Error
}

// CountWhere counts users whose column equals value
func (r *userRepository) CountWhere(column string, value interface{}) (int64, error) {
	var count int64
	result := r.db.Model(&domain.User{}).Where(column+" = ?", value).Count(&count)
	return count, result.Error
}

// WithContext returns a repository with the given context for tracing
func (r *userRepository) WithContext(ctx context.Context) domain.UserRepository {
	return &userRepository{db: r.db.WithContext(ctx)}
}

func uniqueStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
