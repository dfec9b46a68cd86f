package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/DarkSword404/CTF-Platform/internal/domain"
)

// aiCallLogRepository implements domain.AICallLogRepository using GORM
type aiCallLogRepository struct {
	db *gorm.DB
}

// NewAICallLogRepository creates a new AI call log repository
func NewAICallLogRepository(db *gorm.DB) domain.AICallLogRepository {
	return &aiCallLogRepository{db: db}
}

// Create appends a call log entry
func (r *aiCallLogRepository) Create(log *domain.AICallLog) error {
	return r.db.Create(log).Error
}

// List returns a page of call logs, newest first
func (r *aiCallLogRepository) List(filter domain.CallLogFilter) ([]domain.AICallLog, int64, error) {
	query := r.db.Model(&domain.AICallLog{})
	if filter.Provider != "" {
		query = query.Where("provider = ?", filter.Provider)
	}
	if filter.Status != "" {
		query = query.Where("status = ?", filter.Status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var logs []domain.AICallLog
	result := query.
		Order("created_at DESC").
		Offset((filter.Page - 1) * filter.PageSize).
		Limit(filter.PageSize).
		Find(&logs)
	return logs, total, result.Error
}

// UsageStats aggregates calls per provider per day since the given time
func (r *aiCallLogRepository) UsageStats(since time.Time) ([]domain.AIUsageStat, error) {
	rows, err := r.db.Model(&domain.AICallLog{}).
		Select("provider, DATE(created_at) AS day, COUNT(*) AS total_calls, "+
			"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS successful_calls, "+
			"SUM(CASE WHEN status = ? THEN 1 ELSE 0 END) AS failed_calls, "+
			"COALESCE(SUM(tokens_used), 0) AS total_tokens, "+
			"COALESCE(AVG(duration_ms), 0) AS avg_duration_ms",
			domain.CallStatusSuccess, domain.CallStatusFailed).
		Where("created_at >= ?", since).
		Group("provider, DATE(created_at)").
		Order("day DESC, provider ASC").
		Rows()
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var stats []domain.AIUsageStat
	for rows.Next() {
		var (
			stat domain.AIUsageStat
			day  dbTime
		)
		if err := rows.Scan(&stat.Provider, &day, &stat.TotalCalls, &stat.SuccessfulCalls,
			&stat.FailedCalls, &stat.TotalTokens, &stat.AvgDurationMS); err != nil {
			return nil, err
		}
		stat.Date = day.Format("2006-01-02")
		stats = append(stats, stat)
	}
	return stats, rows.Err()
}

// Count returns the number of logged calls
func (r *aiCallLogRepository) Count() (int64, error) {
	var count int64
	result := r.db.Model(&domain.AICallLog{}).Count(&count)
	return count, result.Error
}

// CountFailed returns the number of failed calls
func (r *aiCallLogRepository) CountFailed() (int64, error) {
	var count int64
	result := r.db.Model(&domain.AICallLog{}).Where("status = ?", domain.CallStatusFailed).Count(&count)
	return count, result.Error
}

// WithContext returns a repository with the given context for tracing
func (r *aiCallLogRepository) WithContext(ctx context.Context) domain.AICallLogRepository {
	return &aiCallLogRepository{db: r.db.WithContext(ctx)}
}
