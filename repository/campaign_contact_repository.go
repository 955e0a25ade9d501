package repository

import (
	"context"
	"time"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CampaignContactRepositoryImpl implements the CampaignContactRepository interface
type CampaignContactRepositoryImpl struct {
	*BaseRepository[models.CampaignContact, models.CampaignContactFilter]
}

// NewCampaignContactRepository creates a new campaign contact repository
func NewCampaignContactRepository(db *gorm.DB) CampaignContactRepository {
	return &CampaignContactRepositoryImpl{
		BaseRepository: NewBaseRepository[models.CampaignContact, models.CampaignContactFilter](db),
	}
}

// Update updates a campaign contact
func (r *CampaignContactRepositoryImpl) Update(ctx context.Context, contact *models.CampaignContact) error {
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
	contact.UpdatedAt = &now

	err = db.Save(contact).Error
	if err != nil {
		return err
	}

	return nil
}

// ClaimPendingBatch selects up to batchSize pending contacts of the campaign
// inside one transaction, using row locks with SKIP LOCKED so concurrent
// batches never dispatch the same contact twice.
func (r *CampaignContactRepositoryImpl) ClaimPendingBatch(ctx context.Context, campaignID uint, batchSize int) ([]*models.CampaignContact, error) {
	var contacts []*models.CampaignContact

	err := WithTransaction(ctx, r.DB, func(txCtx context.Context) error {
		db := r.getDB(txCtx)
		return db.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("campaign_id = ?", campaignID).
			Where("status = ?", models.ContactStatusPending).
			Order("id ASC").
			Limit(batchSize).
			Find(&contacts).Error
	})
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// CountPending counts contacts of the campaign still waiting for dispatch
func (r *CampaignContactRepositoryImpl) CountPending(ctx context.Context, campaignID uint) (int64, error) {
	status := models.ContactStatusPending
	return r.Count(ctx, models.CampaignContactFilter{CampaignID: &campaignID, Status: &status})
}

// StatusCounts returns the per-status contact aggregate for health metrics
func (r *CampaignContactRepositoryImpl) StatusCounts(ctx context.Context, campaignID uint) (*models.ContactStatusCounts, error) {
	db := r.getDB(ctx)

	type row struct {
		Status models.ContactStatus
		N      int64
	}
	var rows []row
	if err := db.Model(&models.CampaignContact{}).
		Select("status, COUNT(*) AS n").
		Where("campaign_id = ?", campaignID).
		Group("status").
		Scan(&rows).Error; err != nil {
		return nil, err
	}

	counts := &models.ContactStatusCounts{}
	for _, r := range rows {
		counts.Total += r.N
		switch r.Status {
		case models.ContactStatusPending:
			counts.Pending = r.N
		case models.ContactStatusProcessing:
			counts.Processing = r.N
		case models.ContactStatusCompleted:
			counts.Completed = r.N
		case models.ContactStatusFailed:
			counts.Failed = r.N
		}
	}
	return counts, nil
}

// MarkProcessing moves a contact to processing and stamps call_started_at
func (r *CampaignContactRepositoryImpl) MarkProcessing(ctx context.Context, contactID uint, startedAt time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.CampaignContact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"status":          models.ContactStatusProcessing,
			"call_started_at": startedAt,
			"updated_at":      utils.UTCNow(),
		}).Error
}

// MarkFailed records a failed call attempt on the contact
func (r *CampaignContactRepositoryImpl) MarkFailed(ctx context.Context, contactID uint, lastError string, endedAt time.Time) error {
	db := r.getDB(ctx)
	return db.Model(&models.CampaignContact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"status":        models.ContactStatusFailed,
			"last_error":    lastError,
			"call_ended_at": endedAt,
			"retry_count":   gorm.Expr("retry_count + 1"),
			"updated_at":    utils.UTCNow(),
		}).Error
}

// MarkCompleted records a completed call reported by the provider webhook
func (r *CampaignContactRepositoryImpl) MarkCompleted(ctx context.Context, contactID uint, endedAt time.Time, duration *int, transcript *string) error {
	db := r.getDB(ctx)
	updates := map[string]any{
		"status":        models.ContactStatusCompleted,
		"call_ended_at": endedAt,
		"last_error":    nil,
		"updated_at":    utils.UTCNow(),
	}
	if duration != nil {
		updates["call_duration"] = *duration
	}
	if transcript != nil {
		updates["transcript"] = *transcript
	}
	return db.Model(&models.CampaignContact{}).
		Where("id = ?", contactID).
		Updates(updates).Error
}

// UpdateTranscript stores an in-flight transcript update
func (r *CampaignContactRepositoryImpl) UpdateTranscript(ctx context.Context, contactID uint, transcript string) error {
	db := r.getDB(ctx)
	return db.Model(&models.CampaignContact{}).
		Where("id = ?", contactID).
		Updates(map[string]any{
			"transcript": transcript,
			"updated_at": utils.UTCNow(),
		}).Error
}

// ByFilter retrieves campaign contacts based on filter criteria
func (r *CampaignContactRepositoryImpl) ByFilter(ctx context.Context, filter models.CampaignContactFilter, orderBy string, limit, offset int) ([]*models.CampaignContact, error) {
	db := r.getDB(ctx)

	var contacts []*models.CampaignContact
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

	err := query.Find(&contacts).Error
	if err != nil {
		return nil, err
	}

	return contacts, nil
}

// Count returns the number of campaign contacts matching the filter
func (r *CampaignContactRepositoryImpl) Count(ctx context.Context, filter models.CampaignContactFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var contact models.CampaignContact
	query := r.applyFilter(db.Model(&contact), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any campaign contact matching the filter exists
func (r *CampaignContactRepositoryImpl) Exists(ctx context.Context, filter models.CampaignContactFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CampaignContactRepositoryImpl) applyFilter(db *gorm.DB, filter models.CampaignContactFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.CampaignID != nil {
		db = db.Where("campaign_id = ?", *filter.CampaignID)
	}
	if filter.Status != nil {
		db = db.Where("status = ?", *filter.Status)
	}
	if filter.PhoneNumber != nil {
		db = db.Where("phone_number = ?", *filter.PhoneNumber)
	}

	return db
}
