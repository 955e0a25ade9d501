package repository

import (
	"context"
	"errors"

	"github.com/aproductiontitle/capi-public/models"
	"gorm.io/gorm"
)

// SecretRepositoryImpl implements the SecretRepository interface
type SecretRepositoryImpl struct {
	*BaseRepository[models.Secret, models.SecretFilter]
}

// NewSecretRepository creates a new secret repository
func NewSecretRepository(db *gorm.DB) SecretRepository {
	return &SecretRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Secret, models.SecretFilter](db),
	}
}

// ByUserAndName retrieves a secret by its owning user and name, nil when absent
func (r *SecretRepositoryImpl) ByUserAndName(ctx context.Context, userID uint, name string) (*models.Secret, error) {
	db := r.getDB(ctx)

	var secret models.Secret
	err := db.Where("user_id = ? AND name = ?", userID, name).Last(&secret).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &secret, nil
}

// ByFilter retrieves secrets based on filter criteria
func (r *SecretRepositoryImpl) ByFilter(ctx context.Context, filter models.SecretFilter, orderBy string, limit, offset int) ([]*models.Secret, error) {
	db := r.getDB(ctx)

	var secrets []*models.Secret
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

	err := query.Find(&secrets).Error
	if err != nil {
		return nil, err
	}

	return secrets, nil
}

// Count returns the number of secrets matching the filter
func (r *SecretRepositoryImpl) Count(ctx context.Context, filter models.SecretFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	var secret models.Secret
	query := r.applyFilter(db.Model(&secret), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, err
	}

	return count, nil
}

// Exists checks if any secret matching the filter exists
func (r *SecretRepositoryImpl) Exists(ctx context.Context, filter models.SecretFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *SecretRepositoryImpl) applyFilter(db *gorm.DB, filter models.SecretFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.UserID != nil {
		db = db.Where("user_id = ?", *filter.UserID)
	}
	if filter.Name != nil {
		db = db.Where("name = ?", *filter.Name)
	}

	return db
}
