package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// solveRepository implements domain.SolveRepository using GORM
type solveRepository struct {
	db *gorm.DB
}

// NewSolveRepository creates a new solve repository
func NewSolveRepository(db *gorm.DB) domain.SolveRepository {
	return &solveRepository{db: db}
}

// RecordAttempt appends the solve and, for a correct flag, claims the award.
// The award insert is a no-op when the (user, challenge) key already exists,
// so concurrent first solves can only credit once.
func (r *solveRepository) RecordAttempt(solve *domain.Solve, score int) (bool, error) {
	awarded := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(solve).Error; err != nil {
			return err
		}
		if !solve.IsCorrect {
			return nil
		}

		award := domain.ScoreAward{
			UserID:      solve.UserID,
			ChallengeID: solve.ChallengeID,
			SolveID:     solve.ID,
			Score:       score,
			AwardedAt:   solve.SubmittedAt,
		}
		result := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&award)
		if result.Error != nil {
			return result.Error
		}
		awarded = result.RowsAffected == 1
		return nil
	})
	if err != nil {
		return false, err
	}
	return awarded, nil
}

// FindByUserID returns a user's most recent submissions with their challenge
func (r *solveRepository) FindByUserID(userID uuid.UUID, limit int) ([]domain.Solve, error) {
	var solves []domain.Solve
	query := r.db.
		Preload("Challenge").
		Where("user_id = ?", userID).
		Order("submitted_at DESC")
	if limit > 0 {
		query = query.Limit(limit)
	}
	result := query.Find(&solves)
	return solves, result.Error
}

// SolvedChallengeIDs returns the challenges the user has been credited for
func (r *solveRepository) SolvedChallengeIDs(userID uuid.UUID) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	result := r.db.Model(&domain.ScoreAward{}).
		Where("user_id = ?", userID).
		Pluck("challenge_id", &ids)
	return ids, result.Error
}

// SolveCounts returns the number of distinct solvers for each challenge
func (r *solveRepository) SolveCounts(challengeIDs []uuid.UUID) (map[uuid.UUID]int64, error) {
	counts := make(map[uuid.UUID]int64, len(challengeIDs))
	if len(challengeIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		ChallengeID uuid.UUID
		Count       int64
	}
	result := r.db.Model(&domain.ScoreAward{}).
		Select("challenge_id, COUNT(*) AS count").
		Where("challenge_id IN ?", challengeIDs).
		Group("challenge_id").
		Scan(&rows)
	if result.Error != nil {
		return nil, result.Error
	}

	for _, row := range rows {
		counts[row.ChallengeID] = row.Count
	}
	return counts, nil
}

// Scoreboard ranks users by awarded score, earliest last award first on ties
func (r *solveRepository) Scoreboard(limit int) ([]domain.ScoreboardEntry, error) {
	rows, err := r.db.Model(&domain.ScoreAward{}).
		Select("score_awards.user_id, users.username, users.nickname, " +
			"SUM(score_awards.score) AS total_score, COUNT(*) AS solve_count, " +
			"MAX(score_awards.awarded_at) AS last_solve_at").
		Joins("JOIN users ON users.id = score_awards.user_id").
		Group("score_awards.user_id, users.username, users.nickname").
		Order("total_score DESC, last_solve_at ASC").
		Limit(limit).
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.ScoreboardEntry, 0, limit)
	for rows.Next() {
		var (
			entry    domain.ScoreboardEntry
			lastSeen dbTime
		)
		if err := rows.Scan(&entry.UserID, &entry.Username, &entry.Nickname,
			&entry.TotalScore, &entry.SolveCount, &lastSeen); err != nil {
			return nil, err
		}
		entry.Rank = len(entries) + 1
		entry.LastSolveAt = lastSeen.Time
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Count returns the number of recorded submissions
func (r *solveRepository) Count() (int64, error) {
	var count int64
	result := r.db.Model(&domain.Solve{}).Count(&count)
	return count, result.Error
}

// CountCorrect returns the number of correct submissions
func (r *solveRepository) CountCorrect() (int64, error) {
	var count int64
	result := r.db.Model(&domain.Solve{}).Where("is_correct = ?", true).Count(&count)
	return count, result.Error
}

// WithContext returns a repository with the given context for tracing
func (r *solveRepository) WithContext(ctx context.Context) domain.SolveRepository {
	return &solveRepository{db: r.db.WithContext(ctx)}
}

// dbTime scans a timestamp that may arrive as text. SQLite returns aggregate
// expressions such as MAX(awarded_at) untyped.
type dbTime struct {
	time.Time
}

var dbTimeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02T15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
	time.RFC3339Nano,
	"2006-01-02",
}

func (t *dbTime) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		t.Time = time.Time{}
	case time.Time:
		t.Time = v
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("cannot scan %T into timestamp", value)
	}
	return nil
}

func (t *dbTime) parse(s string) error {
	for _, layout := range dbTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}
