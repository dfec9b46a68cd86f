package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// AIProviderConfig holds credentials and call parameters for one text-generation backend
type AIProviderConfig struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ProviderName string    `json:"provider_name" gorm:"size:50;uniqueIndex;not null"`
	DisplayName  string    `json:"display_name" gorm:"size:100;not null"`
	ModelName    string    `json:"model_name" gorm:"size:100;not null"`
	APIKey       string    `json:"-" gorm:"type:text"`
	APIBase      string    `json:"api_base" gorm:"size:255"`
	Enabled      bool      `json:"enabled" gorm:"not null"`
	MaxTokens    int       `json:"max_tokens" gorm:"not null"`
	Temperature  float64   `json:"temperature" gorm:"not null"`
	Timeout      int       `json:"timeout" gorm:"not null"` // seconds
	Priority     int       `json:"priority" gorm:"not null;index"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// TableName specifies the table name for GORM
func (AIProviderConfig) TableName() string {
	return "ai_provider_configs"
}

// BeforeCreate assigns a primary key when none was set
func (c *AIProviderConfig) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// AIProviderResponse is the admin view of a provider config; the key itself is never returned
type AIProviderResponse struct {
	ID           uuid.UUID `json:"id"`
	ProviderName string    `json:"provider_name"`
	DisplayName  string    `json:"display_name"`
	ModelName    string    `json:"model_name"`
	APIBase      string    `json:"api_base"`
	HasAPIKey    bool      `json:"has_api_key"`
	Enabled      bool      `json:"enabled"`
	MaxTokens    int       `json:"max_tokens"`
	Temperature  float64   `json:"temperature"`
	Timeout      int       `json:"timeout"`
	Priority     int       `json:"priority"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToResponse converts a provider config to its admin view
func (c *AIProviderConfig) ToResponse() AIProviderResponse {
	return AIProviderResponse{
		ID:           c.ID,
		ProviderName: c.ProviderName,
		DisplayName:  c.DisplayName,
		ModelName:    c.ModelName,
		APIBase:      c.APIBase,
		HasAPIKey:    c.APIKey != "",
		Enabled:      c.Enabled,
		MaxTokens:    c.MaxTokens,
		Temperature:  c.Temperature,
		Timeout:      c.Timeout,
		Priority:     c.Priority,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}

// AIProviderRepository defines the interface for provider config storage
type AIProviderRepository interface {
	Create(cfg *AIProviderConfig) error
	FindByID(id uuid.UUID) (*AIProviderConfig, error)
	FindByName(name string) (*AIProviderConfig, error)
	// FindAll returns every config ordered by priority, highest first
	FindAll() ([]AIProviderConfig, error)
	Update(cfg *AIProviderConfig) error
	Delete(id uuid.UUID) error
	WithContext(ctx context.Context) AIProviderRepository
}

// CreateProviderRequest carries a new provider config
type CreateProviderRequest struct {
	ProviderName string   `json:"provider_name" binding:"required,max=50"`
	DisplayName  string   `json:"display_name" binding:"required,max=100"`
	ModelName    string   `json:"model_name" binding:"required,max=100"`
	APIKey       string   `json:"api_key"`
	APIBase      string   `json:"api_base" binding:"omitempty,url"`
	Enabled      *bool    `json:"enabled"`
	MaxTokens    *int     `json:"max_tokens" binding:"omitempty,min=1"`
	Temperature  *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	Timeout      *int     `json:"timeout" binding:"omitempty,min=1"`
	Priority     *int     `json:"priority"`
}

// UpdateProviderRequest carries a partial provider config update
type UpdateProviderRequest struct {
	DisplayName *string  `json:"display_name" binding:"omitempty,max=100"`
	ModelName   *string  `json:"model_name" binding:"omitempty,max=100"`
	APIKey      *string  `json:"api_key"`
	APIBase     *string  `json:"api_base"`
	Enabled     *bool    `json:"enabled"`
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,min=1"`
	Temperature *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
	Timeout     *int     `json:"timeout" binding:"omitempty,min=1"`
	Priority    *int     `json:"priority"`
}

// AI call types recorded in the call log
const (
	CallTypeGenerateChallenge = "generate_challenge"
	CallTypeGenerateFlag      = "generate_flag"
	CallTypeGenerateText      = "generate_text"
	CallTypeProviderTest      = "provider_test"
)

// Call log statuses
const (
	CallStatusSuccess = "success"
	CallStatusFailed  = "failed"
)

// AICallLog records one outbound provider call
type AICallLog struct {
	ID           uuid.UUID  `json:"id" gorm:"type:uuid;primaryKey"`
	UserID       *uuid.UUID `json:"user_id" gorm:"type:uuid;index"`
	Provider     string     `json:"provider" gorm:"size:50;not null;index"`
	Model        string     `json:"model" gorm:"size:100"`
	CallType     string     `json:"call_type" gorm:"size:30;not null"`
	Prompt       string     `json:"prompt" gorm:"type:text"`
	Response     string     `json:"response" gorm:"type:text"`
	TokensUsed   int64      `json:"tokens_used"`
	DurationMS   int64      `json:"duration_ms"`
	Status       string     `json:"status" gorm:"size:20;not null"`
	ErrorMessage string     `json:"error_message" gorm:"type:text"`
	CreatedAt    time.Time  `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (AICallLog) TableName() string {
	return "ai_call_logs"
}

// BeforeCreate assigns a primary key when none was set
func (l *AICallLog) BeforeCreate(tx *gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}

// AIUsageStat is per-provider per-day usage aggregated from the call log
type AIUsageStat struct {
	Provider        string  `json:"provider"`
	Date            string  `json:"date"`
	TotalCalls      int64   `json:"total_calls"`
	SuccessfulCalls int64   `json:"successful_calls"`
	FailedCalls     int64   `json:"failed_calls"`
	TotalTokens     int64   `json:"total_tokens"`
	AvgDurationMS   float64 `json:"avg_duration_ms"`
}

// CallLogFilter narrows call log queries
type CallLogFilter struct {
	Provider string
	Status   string
	Page     int
	PageSize int
}

// AICallLogRepository defines the interface for the AI call log
type AICallLogRepository interface {
	Create(log *AICallLog) error
	List(filter CallLogFilter) ([]AICallLog, int64, error)
	UsageStats(since time.Time) ([]AIUsageStat, error)
	Count() (int64, error)
	CountFailed() (int64, error)
	WithContext(ctx context.Context) AICallLogRepository
}

// GenerationRecord is the append-only history of one synthesis attempt
type GenerationRecord struct {
	ID             uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey"`
	ChallengeID    *uuid.UUID     `json:"challenge_id" gorm:"type:uuid;index"`
	RequestedBy    uuid.UUID      `json:"requested_by" gorm:"type:uuid;not null;index"`
	Provider       string         `json:"provider" gorm:"size:50;not null"`
	Category       Category       `json:"category" gorm:"type:varchar(20);not null"`
	Difficulty     Difficulty     `json:"difficulty" gorm:"type:varchar(10);not null"`
	InputParams    datatypes.JSON `json:"input_params"`
	Success        bool           `json:"success" gorm:"not null"`
	ErrorMessage   *string        `json:"error_message" gorm:"type:text"`
	GenerationTime float64        `json:"generation_time"` // seconds
	CreatedAt      time.Time      `json:"created_at" gorm:"index"`
}

// TableName specifies the table name for GORM
func (GenerationRecord) TableName() string {
	return "generation_records"
}

// BeforeCreate assigns a primary key when none was set
func (g *GenerationRecord) BeforeCreate(tx *gorm.DB) error {
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	return nil
}

// GenerationRepository defines the interface for generation history
type GenerationRepository interface {
	Create(record *GenerationRecord) error
	// CreateWithChallenge persists the challenge and its success record atomically
	CreateWithChallenge(challenge *Challenge, record *GenerationRecord) error
	List(requestedBy *uuid.UUID, page, pageSize int) ([]GenerationRecord, int64, error)
	Count() (int64, error)
	CountSuccessful() (int64, error)
	WithContext(ctx context.Context) GenerationRepository
}

// GenerateChallengeRequest carries a synthesis request
type GenerateChallengeRequest struct {
	Category      string `json:"category" binding:"required"`
	Difficulty    string `json:"difficulty" binding:"required"`
	Requirements  string `json:"requirements" binding:"max=4000"`
	Provider      string `json:"provider"`
	Theme         string `json:"theme" binding:"max=200"`
	Algorithm     string `json:"algorithm" binding:"max=100"`
	Vulnerability string `json:"vulnerability" binding:"max=100"`
	Framework     string `json:"framework" binding:"max=50"`
}

// GenerateFlagRequest carries a flag generation request
type GenerateFlagRequest struct {
	Description string `json:"description" binding:"required,max=4000"`
	Category    string `json:"category" binding:"required"`
	Provider    string `json:"provider"`
}

// GenerateTextRequest carries a free-form prompt
type GenerateTextRequest struct {
	Prompt      string   `json:"prompt" binding:"required,max=8000"`
	Provider    string   `json:"provider"`
	MaxTokens   *int     `json:"max_tokens" binding:"omitempty,min=1,max=8000"`
	Temperature *float64 `json:"temperature" binding:"omitempty,min=0,max=2"`
}
