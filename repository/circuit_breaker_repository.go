package repository

import (
	"context"
	"errors"
	"time"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/utils"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CircuitBreakerRepositoryImpl implements the CircuitBreakerRepository interface
type CircuitBreakerRepositoryImpl struct {
	db *gorm.DB
}

// NewCircuitBreakerRepository creates a new circuit breaker repository
func NewCircuitBreakerRepository(db *gorm.DB) CircuitBreakerRepository {
	return &CircuitBreakerRepositoryImpl{db: db}
}

func (r *CircuitBreakerRepositoryImpl) getDB(ctx context.Context) *gorm.DB {
	if tx, ok := ctx.Value(TxContextKey).(*gorm.DB); ok && tx != nil {
		return tx
	}
	return r.db
}

// ByCampaignID retrieves the breaker row for a campaign, nil when absent
func (r *CircuitBreakerRepositoryImpl) ByCampaignID(ctx context.Context, campaignID uint) (*models.CircuitBreakerState, error) {
	db := r.getDB(ctx)

	var state models.CircuitBreakerState
	err := db.Where("campaign_id = ?", campaignID).Last(&state).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}

	return &state, nil
}

// RecordFailure upserts the breaker row and increments the failure count.
// The cooldown is armed in the same statement once the count reaches
// maxFailures, so concurrent failures cannot race the threshold check.
func (r *CircuitBreakerRepositoryImpl) RecordFailure(ctx context.Context, campaignID uint, errMsg string, maxFailures int, cooldown time.Duration) (*models.CircuitBreakerState, error) {
	db := r.getDB(ctx)
	now := utils.UTCNow()

	state := models.CircuitBreakerState{
		CampaignID:   campaignID,
		FailureCount: 1,
		LastFailure:  &now,
		LastError:    &errMsg,
		CreatedAt:    now,
	}

	err := db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "campaign_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"failure_count": gorm.Expr("circuit_breaker_state.failure_count + 1"),
			"last_failure":  now,
			"last_error":    errMsg,
			"cooldown_until": gorm.Expr(
				"CASE WHEN circuit_breaker_state.failure_count + 1 >= ? THEN ? ELSE circuit_breaker_state.cooldown_until END",
				maxFailures, now.Add(cooldown),
			),
			"updated_at": now,
		}),
	}).Create(&state).Error
	if err != nil {
		return nil, err
	}

	return r.ByCampaignID(ctx, campaignID)
}

// RecordSuccess clears failure counters and the cooldown. This is the only
// path that closes an open breaker; cooldown expiry alone lets requests
// through but leaves the counters in place.
func (r *CircuitBreakerRepositoryImpl) RecordSuccess(ctx context.Context, campaignID uint) error {
	db := r.getDB(ctx)
	now := utils.UTCNow()

	return db.Model(&models.CircuitBreakerState{}).
		Where("campaign_id = ?", campaignID).
		Updates(map[string]any{
			"failure_count":  0,
			"success_count":  gorm.Expr("success_count + 1"),
			"last_success":   now,
			"cooldown_until": nil,
			"updated_at":     now,
		}).Error
}
