package domain

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Solve is one immutable flag attempt by a user against a challenge
type Solve struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID        uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	ChallengeID   uuid.UUID `json:"challenge_id" gorm:"type:uuid;not null;index"`
	SubmittedFlag string    `json:"-" gorm:"not null"`
	IsCorrect     bool      `json:"is_correct" gorm:"not null;index"`
	SubmittedAt   time.Time `json:"submitted_at" gorm:"not null"`

	// Relationships
	User      User      `json:"-" gorm:"foreignKey:UserID"`
	Challenge Challenge `json:"-" gorm:"foreignKey:ChallengeID"`
}

// TableName specifies the table name for GORM
func (Solve) TableName() string {
	return "solves"
}

// BeforeCreate assigns a primary key when none was set
func (s *Solve) BeforeCreate(tx *gorm.DB) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}

// ScoreAward records the single score credit a user earns for a challenge.
// The composite primary key makes the first correct submission the only one
// that can ever insert a row.
type ScoreAward struct {
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	ChallengeID uuid.UUID `json:"challenge_id" gorm:"type:uuid;primaryKey;index"`
	SolveID     uuid.UUID `json:"solve_id" gorm:"type:uuid;not null"`
	Score       int       `json:"score" gorm:"not null"`
	AwardedAt   time.Time `json:"awarded_at" gorm:"not null"`
}

// TableName specifies the table name for GORM
func (ScoreAward) TableName() string {
	return "score_awards"
}

// SubmitResult is the outcome of a flag submission
type SubmitResult struct {
	SolveID       uuid.UUID `json:"solve_id"`
	IsCorrect     bool      `json:"is_correct"`
	ScoreAwarded  int       `json:"score_awarded"`
	AlreadySolved bool      `json:"already_solved"`
}

// ScoreboardEntry is one ranked row of the scoreboard
type ScoreboardEntry struct {
	Rank        int       `json:"rank"`
	UserID      uuid.UUID `json:"user_id"`
	Username    string    `json:"username"`
	Nickname    string    `json:"nickname"`
	TotalScore  int       `json:"total_score"`
	SolveCount  int       `json:"solve_count"`
	LastSolveAt time.Time `json:"last_solve_at"`
}

// SolveRepository defines the interface for the submission ledger
type SolveRepository interface {
	// RecordAttempt appends the solve row and, when correct, tries to insert
	// the award in the same transaction. It reports whether an award was made.
	RecordAttempt(solve *Solve, score int) (bool, error)
	FindByUserID(userID uuid.UUID, limit int) ([]Solve, error)
	SolvedChallengeIDs(userID uuid.UUID) ([]uuid.UUID, error)
	SolveCounts(challengeIDs []uuid.UUID) (map[uuid.UUID]int64, error)
	Scoreboard(limit int) ([]ScoreboardEntry, error)
	Count() (int64, error)
	CountCorrect() (int64, error)
	WithContext(ctx context.Context) SolveRepository
}

// ScoreboardCache stores computed scoreboards between score changes
type ScoreboardCache interface {
	Get(ctx context.Context, limit int) ([]ScoreboardEntry, bool, error)
	Set(ctx context.Context, limit int, entries []ScoreboardEntry) error
	Invalidate(ctx context.Context) error
}

// SubmitFlagRequest carries a flag attempt. Older clients send it as
// submitted_flag.
type SubmitFlagRequest struct {
	Flag          string `json:"flag"`
	SubmittedFlag string `json:"submitted_flag"`
}

// Candidate returns the attempted flag, preferring the flag key
func (r *SubmitFlagRequest) Candidate() string {
	if strings.TrimSpace(r.Flag) != "" {
		return r.Flag
	}
	return r.SubmittedFlag
}

// SolveResponse represents a submission in API responses
type SolveResponse struct {
	ID          uuid.UUID `json:"id"`
	ChallengeID uuid.UUID `json:"challenge_id"`
	Title       string    `json:"challenge_title"`
	IsCorrect   bool      `json:"is_correct"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// ToResponse converts a Solve to a SolveResponse
func (s *Solve) ToResponse() SolveResponse {
	return SolveResponse{
		ID:          s.ID,
		ChallengeID: s.ChallengeID,
		Title:       s.Challenge.Title,
		IsCorrect:   s.IsCorrect,
		SubmittedAt: s.SubmittedAt,
	}
}
