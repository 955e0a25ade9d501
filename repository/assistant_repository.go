package repository

import (
	"context"

	"github.com/aproductiontitle/capi-public/models"
	"gorm.io/gorm"
)

// AssistantRepositoryImpl implements the AssistantRepository interface
type AssistantRepositoryImpl struct {
	*BaseRepository[models.Assistant, models.AssistantFilter]
}

// NewAssistantRepository creates a new assistant repository
func NewAssistantRepository(db *gorm.DB) AssistantRepository {
	return &AssistantRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Assistant, models.AssistantFilter](db),
	}
}

// ByFilter retrieves assistants based on filter criteria
func (r *AssistantRepositoryImpl) ByFilter(ctx context.Context, filter models.AssistantFilter, orderBy string, limit, offset int) ([]*models.Assistant, error) {
	db := r.getDB(ctx)

	var assistants []*models.Assistant
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

	err := query.Find(&assistants).Error
	if err != nil {
		return nil, err
	}

	return assistants, nil
}

// Count returns the number of assistants matching the filter
func (r *AssistantRepositoryImpl) Count(ctx context.Context, filter models.AssistantFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var assistant models.Assistant
	query := r.applyFilter(db.Model(&assistant), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any assistant matching the filter exists
func (r *AssistantRepositoryImpl) Exists(ctx context.Context, filter models.AssistantFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *AssistantRepositoryImpl) applyFilter(db *gorm.DB, filter models.AssistantFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UUID != nil {
		db = db.Where("uuid = ?", *filter.UUID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}

	return db
}
