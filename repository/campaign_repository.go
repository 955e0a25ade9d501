package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignRepositoryImpl implements the CampaignRepository interface
type CampaignRepositoryImpl struct {
	*BaseRepository[models.Campaign, models.CampaignFilter]
}

// NewCampaignRepository creates a new campaign repository
func NewCampaignRepository(db *gorm.DB) CampaignRepository {
	return &CampaignRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Campaign, models.CampaignFilter](db),
	}
}

// ByID retrieves a campaign by ID with its assistant preloaded
func (r *CampaignRepositoryImpl) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaign models.Campaign
	err := db.Preload("Assistant").Last(&campaign, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &campaign, nil
}

// ByUUID retrieves a campaign by UUID
func (r *CampaignRepositoryImpl) ByUUID(ctx context.Context, raw string) (*models.Campaign, error) {
	parsed, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid campaign uuid %q: %w", raw, err)
	}

	filter := models.CampaignFilter{UUID: &parsed}
	campaigns, err := r.ByFilter(ctx, filter, "", 1, 0)
	if err != nil {
		return nil, err
	}

	if len(campaigns) == 0 {
		return nil, nil
	}

	return campaigns[0], nil
}

// Update updates a campaign
func (r *CampaignRepositoryImpl) Update(ctx context.Context, campaign *models.Campaign) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	now := utils.UTCNow()
	campaign.UpdatedAt = &now

	err = db.Save(campaign).Error
	if err != nil {
		return err
	}

	return nil
}

// AcquireExecutionLock claims the campaign execution lock in a single
// conditional update: the row is touched only when the lock is free or the
// previous holder's lock is older than lockTTL. Collapsing stale-lock
// clearing and acquisition into one statement leaves no window between them.
func (r *CampaignRepositoryImpl) AcquireExecutionLock(ctx context.Context, campaignID uint, lockID uuid.UUID, lockTTL time.Duration) (bool, error) {
	db := r.getDB(ctx)

	now := utils.UTCNow()
	cutoff := now.Add(-lockTTL)

	res := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Where("execution_lock_id IS NULL OR execution_lock_time < ?", cutoff).
		Updates(map[string]any{
			"execution_lock_id":   lockID,
			"execution_lock_time": now,
			"updated_at":          now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to acquire execution lock for campaign %d: %w", campaignID, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// ReleaseExecutionLock clears the lock fields, conditioned on lockID still
// being the holder. Releasing after a stale takeover is a no-op.
func (r *CampaignRepositoryImpl) ReleaseExecutionLock(ctx context.Context, campaignID uint, lockID uuid.UUID) error {
	db := r.getDB(ctx)

	res := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Where("execution_lock_id = ?", lockID).
		Updates(map[string]any{
			"execution_lock_id":   nil,
			"execution_lock_time": nil,
			"updated_at":          utils.UTCNow(),
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release execution lock for campaign %d: %w", campaignID, res.Error)
	}

	return nil
}

// UpdateStatusGuarded transitions status and writes auxiliary fields in the
// same conditional update. Returns false when the row no longer carries the
// expected current status.
func (r *CampaignRepositoryImpl) UpdateStatusGuarded(ctx context.Context, campaignID uint, from, to models.CampaignStatus, fields map[string]any) (bool, error) {
	db := r.getDB(ctx)

	updates := map[string]any{
		"status":     to,
		"updated_at": utils.UTCNow(),
	}
	for k, v := range fields {
		updates[k] = v
	}

	res := db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Where("status = ?", from).
		Updates(updates)
	if res.Error != nil {
		return false, fmt.Errorf("failed to transition campaign %d from %s to %s: %w", campaignID, from, to, res.Error)
	}

	return res.RowsAffected == 1, nil
}

// UpdateValidationState writes the validation bookkeeping columns in a
// targeted update so concurrent lock or status changes are never overwritten.
func (r *CampaignRepositoryImpl) UpdateValidationState(ctx context.Context, campaign *models.Campaign) error {
	db := r.getDB(ctx)

	return db.Model(&models.Campaign{}).
		Where("id = ?", campaign.ID).
		Updates(map[string]any{
			"validation_attempts":   campaign.ValidationAttempts,
			"last_validation_error": campaign.LastValidationError,
			"last_validation_time":  campaign.LastValidationTime,
			"vapi_config_validated": campaign.VapiConfigValidated,
			"updated_at":            utils.UTCNow(),
		}).Error
}

// MarkExecutionFailed records a terminal execution failure on the campaign.
func (r *CampaignRepositoryImpl) MarkExecutionFailed(ctx context.Context, campaignID uint, execErr string) error {
	db := r.getDB(ctx)

	return db.Model(&models.Campaign{}).
		Where("id = ?", campaignID).
		Updates(map[string]any{
			"status":              models.CampaignStatusFailedExecution,
			"execution_error":     execErr,
			"current_retry_count": gorm.Expr("current_retry_count + 1"),
			"updated_at":          utils.UTCNow(),
		}).Error
}

// ListDue returns campaigns in the given status that are scheduled at or
// before now, have retry budget left, and carry no terminal execution error.
func (r *CampaignRepositoryImpl) ListDue(ctx context.Context, status models.CampaignStatus, now time.Time, limit int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := db.Where("status = ?", status).
		Where("scheduled_time IS NOT NULL AND scheduled_time <= ?", now).
		Where("execution_error IS NULL").
		Where("current_retry_count < max_retries").
		Order("scheduled_time ASC").
		Preload("Assistant")
	if limit > 0 {
		query = query.Limit(limit)
	}

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// ByFilter retrieves campaigns based on filter criteria
func (r *CampaignRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	db := r.getDB(ctx)

	var campaigns []*models.Campaign
	query := r.applyFilter(db, filter)

	// Apply ordering
	if orderBy != "" {
		query = query.Order(orderBy)
	}

	// Apply pagination
	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	query = query.Preload("Assistant")

	err := query.Find(&campaigns).Error
	if err != nil {
		return nil, err
	}

	return campaigns, nil
}

// Count returns the number of campaigns matching the filter
func (r *CampaignRepositoryImpl) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var campaign models.Campaign
	query := r.applyFilter(db.Model(&campaign), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any campaign matching the filter exists
func (r *CampaignRepositoryImpl) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.AssistantID != nil {
		db = db.Where("assistant_id = ?", *filter.AssistantID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.Name != nil {
		db = db.Where("name ILIKE ?", "%"+*filter.Name+"%")
	}
	if filter.ScheduledAfter != nil {
		db = db.Where("scheduled_time > ?", *filter.ScheduledAfter)
	}
	if filter.ScheduledBefore != nil {
		db = db.Where("scheduled_time < ?", *filter.ScheduledBefore)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at < ?", *filter.CreatedBefore)
	}
	if filter.HasLock != nil {
		if *filter.HasLock {
			db = db.Where("execution_lock_id IS NOT NULL")
		} else {
			db = db.Where("execution_lock_id IS NULL")
		}
	}

	return db
}
