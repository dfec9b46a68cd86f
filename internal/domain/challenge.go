package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Category is the closed set of challenge categories
type Category string

const (
	CategoryWeb     Category = "Web"
	CategoryPwn     Category = "Pwn"
	CategoryReverse Category = "Reverse"
	CategoryCrypto  Category = "Crypto"
	CategoryMisc    Category = "Misc"
)

// Categories lists every valid category in display order
var Categories = []Category{CategoryWeb, CategoryPwn, CategoryReverse, CategoryCrypto, CategoryMisc}

// ParseCategory resolves a category name case-insensitively
func ParseCategory(s string) (Category, error) {
	for _, c := range Categories {
		if strings.EqualFold(string(c), strings.TrimSpace(s)) {
			return c, nil
		}
	}
	return "", ErrInvalidCategory
}

// Difficulty represents the difficulty level of a challenge
type Difficulty string

const (
	DifficultyEasy   Difficulty = "Easy"
	DifficultyMedium Difficulty = "Medium"
	DifficultyHard   Difficulty = "Hard"
)

// Difficulties lists every valid difficulty in ascending order
var Difficulties = []Difficulty{DifficultyEasy, DifficultyMedium, DifficultyHard}

// ParseDifficulty resolves a difficulty name case-insensitively
func ParseDifficulty(s string) (Difficulty, error) {
	for _, d := range Difficulties {
		if strings.EqualFold(string(d), strings.TrimSpace(s)) {
			return d, nil
		}
	}
	return "", ErrInvalidDifficulty
}

// Points returns the score awarded for a generated challenge of this difficulty
func (d Difficulty) Points() int {
	switch d {
	case DifficultyMedium:
		return 200
	case DifficultyHard:
		return 300
	default:
		return 100
	}
}

// ChallengeStatus represents the lifecycle state of a challenge
type ChallengeStatus string

const (
	StatusDraft         ChallengeStatus = "draft"
	StatusPendingReview ChallengeStatus = "pending_review"
	StatusPublished     ChallengeStatus = "published"
	StatusRejected      ChallengeStatus = "rejected"
	StatusOffline       ChallengeStatus = "offline"
)

// ParseStatus validates a status name
func ParseStatus(s string) (ChallengeStatus, error) {
	switch st := ChallengeStatus(s); st {
	case StatusDraft, StatusPendingReview, StatusPublished, StatusRejected, StatusOffline:
		return st, nil
	}
	return "", ErrInvalidStatus
}

// FlagFormat selects how a stored flag is compared to submissions
type FlagFormat string

const (
	FlagFormatPlaintext FlagFormat = "plaintext"
	FlagFormatRegex     FlagFormat = "regex"
)

// ParseFlagFormat validates a flag format, defaulting to plaintext
func ParseFlagFormat(s string) (FlagFormat, error) {
	switch f := FlagFormat(s); f {
	case "":
		return FlagFormatPlaintext, nil
	case FlagFormatPlaintext, FlagFormatRegex:
		return f, nil
	}
	return "", ErrInvalidFlagFormat
}

// Challenge represents a single competition problem
type Challenge struct {
	ID                  uuid.UUID                       `json:"id" gorm:"type:uuid;primaryKey"`
	Title               string                          `json:"title" gorm:"size:200;uniqueIndex;not null"`
	Description         string                          `json:"description" gorm:"type:text"`
	AuthorID            uuid.UUID                       `json:"author_id" gorm:"type:uuid;not null;index"`
	Category            Category                        `json:"category" gorm:"type:varchar(20);not null;index"`
	Difficulty          Difficulty                      `json:"difficulty" gorm:"type:varchar(10);not null"`
	Score               int                             `json:"score" gorm:"not null"`
	Flag                string                          `json:"-" gorm:"not null"`
	FlagFormat          FlagFormat                      `json:"flag_format" gorm:"type:varchar(20);not null"`
	IsCaseSensitiveFlag bool                            `json:"is_case_sensitive_flag" gorm:"not null"`
	Status              ChallengeStatus                 `json:"status" gorm:"type:varchar(20);not null;index"`
	Hints               datatypes.JSONSlice[string]     `json:"hints"`
	Attachments         datatypes.JSONSlice[Attachment] `json:"attachments"`
	Solution            string                          `json:"-" gorm:"type:text"`
	ContainerImageName  *string                         `json:"container_image_name" gorm:"size:255"`
	ContainerConfig     datatypes.JSONMap               `json:"container_config"`
	IsAIGenerated       bool                            `json:"is_ai_generated" gorm:"not null"`
	AIModelUsed         *string                         `json:"ai_model_used" gorm:"size:100"`
	GenerationParams    datatypes.JSON                  `json:"generation_params"`
	PublishedAt         *time.Time                      `json:"published_at"`
	CreatedAt           time.Time                       `json:"created_at"`
	UpdatedAt           time.Time                       `json:"updated_at"`

	// Relationships
	Author User `json:"-" gorm:"foreignKey:AuthorID"`
}

// Attachment encodings
const (
	AttachmentText   = "text"
	AttachmentBase64 = "base64"
)

// Attachment is a file handed to players with a challenge. Content is empty
// for attachments that were only described.
type Attachment struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Encoding    string `json:"encoding,omitempty"`
	Content     string `json:"content,omitempty"`
}

// TableName specifies the table name for GORM
func (Challenge) TableName() string {
	return "challenges"
}

// BeforeCreate assigns a primary key when none was set
func (c *Challenge) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// CanManage reports whether the principal is the author or an admin
func (c *Challenge) CanManage(p Principal) bool {
	return p.IsAdmin() || c.AuthorID == p.UserID
}

// VisibleTo reports whether the principal may read the challenge at all
func (c *Challenge) VisibleTo(p Principal) bool {
	return c.Status == StatusPublished || c.CanManage(p)
}

// CheckFlag compares a candidate against the stored flag
func (c *Challenge) CheckFlag(candidate string) bool {
	return MatchFlag(c.Flag, c.FlagFormat, c.IsCaseSensitiveFlag, candidate)
}

// SubmitForReview moves an author's draft into the review queue
func (c *Challenge) SubmitForReview() error {
	if c.Status != StatusDraft && c.Status != StatusRejected {
		return ErrInvalidStatusTransition
	}
	c.Status = StatusPendingReview
	return nil
}

// Approve publishes a challenge that is waiting for review
func (c *Challenge) Approve(now time.Time) error {
	if c.Status != StatusPendingReview {
		return ErrInvalidStatusTransition
	}
	c.Status = StatusPublished
	c.PublishedAt = &now
	return nil
}

// Reject returns a challenge under review to its author
func (c *Challenge) Reject() error {
	if c.Status != StatusPendingReview {
		return ErrInvalidStatusTransition
	}
	c.Status = StatusRejected
	return nil
}

// SetStatus applies a direct admin status change. Only published, offline and
// pending_review are reachable; published_at is stamped on entry to published.
func (c *Challenge) SetStatus(status ChallengeStatus, now time.Time) error {
	switch status {
	case StatusPublished, StatusOffline, StatusPendingReview:
	default:
		return ErrInvalidStatusTransition
	}
	if status == StatusPublished && c.Status != StatusPublished {
		c.PublishedAt = &now
	}
	c.Status = status
	return nil
}

// ChallengeFilter represents filtering options for challenge queries
type ChallengeFilter struct {
	Category   *Category
	Difficulty *Difficulty
	Status     *ChallengeStatus
	Search     string
	// VisibleTo limits results to published challenges plus those authored by
	// this user. Nil means no restriction.
	VisibleTo *uuid.UUID
	Page      int
	PageSize  int
}

// ChallengeRepository defines the interface for challenge data access
type ChallengeRepository interface {
	Create(challenge *Challenge) error
	FindByID(id uuid.UUID) (*Challenge, error)
	TitleExists(title string, excludeID uuid.UUID) (bool, error)
	List(filter ChallengeFilter) ([]Challenge, int64, error)
	Update(challenge *Challenge) error
	DeleteCascade(id uuid.UUID) error
	CountByStatus() (map[ChallengeStatus]int64, error)
	CountByCategory() (map[Category]int64, error)
	Count() (int64, error)
	WithContext(ctx context.Context) ChallengeRepository
}

// CreateChallengeRequest represents the data needed to create a challenge
type CreateChallengeRequest struct {
	Title               string                 `json:"title" binding:"required,max=200"`
	Description         string                 `json:"description"`
	Category            string                 `json:"category" binding:"required"`
	Difficulty          string                 `json:"difficulty" binding:"required"`
	Score               int                    `json:"score" binding:"required"`
	Flag                string                 `json:"flag" binding:"required"`
	FlagFormat          string                 `json:"flag_format"`
	IsCaseSensitiveFlag *bool                  `json:"is_case_sensitive_flag"`
	Hints               []string               `json:"hints"`
	Solution            string                 `json:"solution"`
	ContainerImageName  *string                `json:"container_image_name"`
	ContainerConfig     map[string]interface{} `json:"container_config"`
}

// UpdateChallengeRequest carries a partial challenge update. Flag, FlagFormat
// and IsCaseSensitiveFlag are applied together.
type UpdateChallengeRequest struct {
	Title               *string                `json:"title" binding:"omitempty,max=200"`
	Description         *string                `json:"description"`
	Category            *string                `json:"category"`
	Difficulty          *string                `json:"difficulty"`
	Score               *int                   `json:"score"`
	Flag                *string                `json:"flag"`
	FlagFormat          *string                `json:"flag_format"`
	IsCaseSensitiveFlag *bool                  `json:"is_case_sensitive_flag"`
	Hints               []string               `json:"hints"`
	Solution            *string                `json:"solution"`
	ContainerImageName  *string                `json:"container_image_name"`
	ContainerConfig     map[string]interface{} `json:"container_config"`
}

// ChallengeResponse represents a challenge in API responses
type ChallengeResponse struct {
	ID                  uuid.UUID              `json:"id"`
	Title               string                 `json:"title"`
	Description         string                 `json:"description"`
	AuthorID            uuid.UUID              `json:"author_id"`
	Category            Category               `json:"category"`
	Difficulty          Difficulty             `json:"difficulty"`
	Score               int                    `json:"score"`
	Flag                string                 `json:"flag,omitempty"`
	Solution            string                 `json:"solution,omitempty"`
	FlagFormat          FlagFormat             `json:"flag_format"`
	IsCaseSensitiveFlag bool                   `json:"is_case_sensitive_flag"`
	Status              ChallengeStatus        `json:"status"`
	Hints               []string               `json:"hints"`
	Attachments         []Attachment           `json:"attachments"`
	ContainerImageName  *string                `json:"container_image_name"`
	ContainerConfig     map[string]interface{} `json:"container_config,omitempty"`
	IsAIGenerated       bool                   `json:"is_ai_generated"`
	AIModelUsed         *string                `json:"ai_model_used"`
	PublishedAt         *time.Time             `json:"published_at"`
	CreatedAt           time.Time              `json:"created_at"`
	UpdatedAt           time.Time              `json:"updated_at"`
	SolveCount          int64                  `json:"solve_count"`
	SolvedByUser        bool                   `json:"solved_by_user"`
}

// ToResponse converts a Challenge to a ChallengeResponse. Secrets (flag,
// solution, container config) are included only when withSecrets is set.
func (c *Challenge) ToResponse(withSecrets bool) ChallengeResponse {
	resp := ChallengeResponse{
		ID:                  c.ID,
		Title:               c.Title,
		Description:         c.Description,
		AuthorID:            c.AuthorID,
		Category:            c.Category,
		Difficulty:          c.Difficulty,
		Score:               c.Score,
		FlagFormat:          c.FlagFormat,
		IsCaseSensitiveFlag: c.IsCaseSensitiveFlag,
		Status:              c.Status,
		Hints:               []string(c.Hints),
		Attachments:         []Attachment(c.Attachments),
		ContainerImageName:  c.ContainerImageName,
		IsAIGenerated:       c.IsAIGenerated,
		AIModelUsed:         c.AIModelUsed,
		PublishedAt:         c.PublishedAt,
		CreatedAt:           c.CreatedAt,
		UpdatedAt:           c.UpdatedAt,
	}
	if resp.Hints == nil {
		resp.Hints = []string{}
	}
	if resp.Attachments == nil {
		resp.Attachments = []Attachment{}
	}
	if withSecrets {
		resp.Flag = c.Flag
		resp.Solution = c.Solution
		resp.ContainerConfig = c.ContainerConfig
	}
	return resp
}

// Review actions accepted by the admin review endpoint
const (
	ReviewApprove = "approve"
	ReviewReject  = "reject"
)

// ReviewChallengeRequest carries an admin review decision
type ReviewChallengeRequest struct {
	Action  string `json:"action" binding:"required,oneof=approve reject"`
	Comment string `json:"comment" binding:"max=1000"`
}

// SetStatusRequest carries a direct admin status change
type SetStatusRequest struct {
	Status string `json:"status" binding:"required"`
}
