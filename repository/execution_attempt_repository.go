package repository

import (
	"context"
	"errors"

	"github.com/aproductiontitle/capi-public/models"
	"gorm.io/gorm"
)

// ExecutionAttemptRepositoryImpl implements the ExecutionAttemptRepository interface
type ExecutionAttemptRepositoryImpl struct {
	*BaseRepository[models.ExecutionAttempt, models.ExecutionAttemptFilter]
}

// NewExecutionAttemptRepository creates a new execution attempt repository
func NewExecutionAttemptRepository(db *gorm.DB) ExecutionAttemptRepository {
	return &ExecutionAttemptRepositoryImpl{
		BaseRepository: NewBaseRepository[models.ExecutionAttempt, models.ExecutionAttemptFilter](db),
	}
}

// CountsByCampaign returns the attempt aggregate for health metrics
func (r *ExecutionAttemptRepositoryImpl) CountsByCampaign(ctx context.Context, campaignID uint) (*models.AttemptCounts, error) {
	db := r.getDB(ctx)

	type row struct {
		Status models.AttemptStatus
		N      int64
	}
	var rows []row
	if err := db.Model(&models.ExecutionAttempt{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := &models.AttemptCounts{}
	for _, r := range rows {
		counts.Total += r.N
		switch r.Status {
		case models.AttemptStatusCompleted:
			counts.Completed = r.N
		case models.AttemptStatusFailed:
			counts.Failed = r.N
		}
	}
	return counts, nil
}

// Latest returns the most recent attempt of the campaign, nil when none exist
func (r *ExecutionAttemptRepositoryImpl) Latest(ctx context.Context, campaignID uint) (*models.ExecutionAttempt, error) {
	db := r.getDB(ctx)

	var attempt models.ExecutionAttempt
	err := db.Where("campaign_id = ?", campaignID).
		Order("id DESC").
		First(&attempt).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &attempt, nil
}

// ByFilter retrieves execution attempts based on filter criteria
func (r *ExecutionAttemptRepositoryImpl) ByFilter(ctx context.Context, filter models.ExecutionAttemptFilter, orderBy string, limit, offset int) ([]*models.ExecutionAttempt, error) {
	db := r.getDB(ctx)

	var attempts []*models.ExecutionAttempt
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&attempts).Error
	if err != nil {
		return nil, err
	}

	return attempts, nil
}

// Count returns the number of execution attempts matching the filter
func (r *ExecutionAttemptRepositoryImpl) Count(ctx context.Context, filter models.ExecutionAttemptFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var attempt models.ExecutionAttempt
	query := r.applyFilter(db.Model(&attempt), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any execution attempt matching the filter exists
func (r *ExecutionAttemptRepositoryImpl) Exists(ctx context.Context, filter models.ExecutionAttemptFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *ExecutionAttemptRepositoryImpl) applyFilter(db *gorm.DB, filter models.ExecutionAttemptFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.CorrelationID != nil {
		db = db.Where("correlation_id = ?", *filter.CorrelationID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}

	return db
}
