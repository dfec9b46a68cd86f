package domain

import (
	"context"
	"time"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Built-in role names
const (
	RoleUser       = "user"
	RoleChallenger = "challenger"
	RoleAdmin      = "admin"
)

// DefaultRoles lists the roles seeded on first start
var DefaultRoles = []Role{
	{Name: RoleUser, Description: "Regular competitor"},
	{Name: RoleChallenger, Description: "May author and generate challenges"},
	{Name: RoleAdmin, Description: "Platform administrator"},
}

// User represents a registered user of the platform
type User struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	Username     string     `json:"username" gorm:"size:50;uniqueIndex;not null"`
	Email        string     `json:"email" gorm:"size:120;uniqueIndex;not null"`
	PasswordHash string     `json:"-" gorm:"not null"`
	Nickname     string     `json:"nickname" gorm:"size:100"`
	AvatarURL    string     `json:"avatar_url" gorm:"size:255"`
	Bio          string     `json:"bio" gorm:"type:text"`
	IsActive     bool       `json:"is_active" gorm:"not null"`
	IsLocked     bool       `json:"is_locked" gorm:"not null"`
	LastLoginAt  *time.Time `json:"last_login_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`

	// Relationships
	Roles []Role `json:"roles,omitempty" gorm:"many2many:user_roles;constraint:OnDelete:CASCADE"`
}

// TableName specifies the table name for GORM
func (User) TableName() string {
	return "users"
}

// BeforeCreate assigns a primary key when none was set
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == uuid.Nil {
		u.ID = uuid.New()
	}
	return nil
}

// SetPassword replaces the stored verifier with a salted bcrypt hash
func (u *User) SetPassword(password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	u.PasswordHash = string(hash)
	return nil
}

// VerifyPassword reports whether the candidate matches the stored verifier
func (u *User) VerifyPassword(candidate string) bool {
	return bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(candidate)) == nil
}

// RoleNames returns the names of the roles attached to the user
func (u *User) RoleNames() []string {
	names := make([]string, len(u.Roles))
	for i, r := range u.Roles {
		names[i] = r.Name
	}
	return names
}

// HasRole reports whether the loaded role set contains name
func (u *User) HasRole(name string) bool {
	for _, r := range u.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}

// Password length bounds in bytes. bcrypt hashes at most 72 bytes.
const (
	MinPasswordBytes = 8
	MaxPasswordBytes = 72
)

// ValidatePassword enforces the credential policy: 8 to 72 bytes with at
// least one letter and one digit.
func ValidatePassword(password string) error {
	if len(password) < MinPasswordBytes || len(password) > MaxPasswordBytes {
		return ErrWeakCredential
	}
	var hasLetter, hasDigit bool
	for _, r := range password {
		switch {
		case unicode.IsLetter(r):
			hasLetter = true
		case unicode.IsDigit(r):
			hasDigit = true
		}
	}
	if !hasLetter || !hasDigit {
		return ErrWeakCredential
	}
	return nil
}

// Role is a named capability group
type Role struct {
	ID          uint      `json:"id" gorm:"primaryKey"`
	Name        string    `json:"name" gorm:"size:50;uniqueIndex;not null"`
	Description string    `json:"description" gorm:"size:255"`
	CreatedAt   time.Time `json:"created_at"`
}

// TableName specifies the table name for GORM
func (Role) TableName() string {
	return "roles"
}

// UserFilter narrows admin user listings
type UserFilter struct {
	Search   string
	Role     string
	IsActive *bool
	Page     int
	PageSize int
}

// UserRepository defines the interface for user data access
// This abstraction allows for easy testing and swapping implementations
type UserRepository interface {
	// Create inserts the user and links the named roles in one transaction
	Create(user *User, roleNames ...string) error
	FindByID(id uuid.UUID) (*User, error)
	FindByUsernameOrEmail(identifier string) (*User, error)
	ExistsByUsernameOrEmail(username, email string) (bool, error)
	List(filter UserFilter) ([]User, int64, error)
	Update(user *User) error
	TouchLastLogin(id uuid.UUID, at time.Time) error
	ReplaceRoles(user *User, roleNames []string) error
	DeleteCascade(id, heirID uuid.UUID) error
	Count() (int64, error)
	CountWhere(column string, value interface{}) (int64, error)
	WithContext(ctx context.Context) UserRepository
}

// RoleRepository defines the interface for role data access
type RoleRepository interface {
	FindByName(name string) (*Role, error)
	FindAll() ([]Role, error)
	EnsureDefaults(roles []Role) error
	WithContext(ctx context.Context) RoleRepository
}

// RegisterRequest represents the data needed to create a new user
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=50"`
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
	Nickname string `json:"nickname" binding:"max=100"`
}

// UpdateProfileRequest carries the self-service profile fields
type UpdateProfileRequest struct {
	Nickname  *string `json:"nickname" binding:"omitempty,max=100"`
	Bio       *string `json:"bio" binding:"omitempty,max=1000"`
	AvatarURL *string `json:"avatar_url" binding:"omitempty,max=255"`
}

// ChangePasswordRequest carries a password change
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

// AdminUpdateUserRequest carries the fields an admin may change
type AdminUpdateUserRequest struct {
	IsActive *bool    `json:"is_active"`
	IsLocked *bool    `json:"is_locked"`
	Nickname *string  `json:"nickname" binding:"omitempty,max=100"`
	Roles    []string `json:"roles"`
}

// UserResponse represents the public user data returned by the API
type UserResponse struct {
	ID          uuid.UUID  `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	Nickname    string     `json:"nickname"`
	AvatarURL   string     `json:"avatar_url"`
	Bio         string     `json:"bio"`
	IsActive    bool       `json:"is_active"`
	IsLocked    bool       `json:"is_locked"`
	Roles       []string   `json:"roles"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

// ToResponse converts a User to a UserResponse (hides sensitive data)
func (u *User) ToResponse() UserResponse {
	return UserResponse{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		Nickname:    u.Nickname,
		AvatarURL:   u.AvatarURL,
		Bio:         u.Bio,
		IsActive:    u.IsActive,
		IsLocked:    u.IsLocked,
		Roles:       u.RoleNames(),
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}
