package business_flow

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
)

// BreakerStatus is the point-in-time view of a campaign's circuit breaker
type BreakerStatus struct {
	Open              bool          `json:"open"`
	FailureCount      int           `json:"failure_count"`
	FailureRate       float64       `json:"failure_rate"`
	CooldownRemaining time.Duration `json:"cooldown_remaining"`
	RecoveryProgress  float64       `json:"recovery_progress"`
	LastError         *string       `json:"last_error,omitempty"`
}

// CircuitBreaker guards campaign execution against repeated provider
// failures. Three recorded failures open the breaker for the cooldown window.
// Expiry of the window admits requests again but leaves the failure counters
// in place; only a recorded success closes the breaker fully. A failure during
// that half-open phase re-opens it with a fresh cooldown.
type CircuitBreaker interface {
	Check(ctx context.Context, campaignID uint) (*BreakerStatus, error)
	RecordFailure(ctx context.Context, campaignID uint, execErr error) error
	RecordSuccess(ctx context.Context, campaignID uint) error
}

// CircuitBreakerImpl implements CircuitBreaker
type CircuitBreakerImpl struct {
	breakerRepo repository.CircuitBreakerRepository
	auditRepo   repository.AuditLogRepository
	maxFailures int
	cooldown    time.Duration
	logger      *log.Logger
}

// NewCircuitBreaker creates a new circuit breaker flow
func NewCircuitBreaker(
	breakerRepo repository.CircuitBreakerRepository,
	auditRepo repository.AuditLogRepository,
	cfg *config.ExecutionConfig,
	logger *log.Logger,
) CircuitBreaker {
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures <= 0 {
		maxFailures = utils.BreakerMaxFailures
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = utils.BreakerCooldown
	}
	return &CircuitBreakerImpl{
		breakerRepo: breakerRepo,
		auditRepo:   auditRepo,
		maxFailures: maxFailures,
		cooldown:    cooldown,
		logger:      logger,
	}
}

// Check returns the breaker status for a campaign. When the state row cannot
// be read the breaker reports open with a failure rate of 1: an unreadable
// breaker must never admit traffic.
func (b *CircuitBreakerImpl) Check(ctx context.Context, campaignID uint) (*BreakerStatus, error) {
	state, err := b.breakerRepo.ByCampaignID(ctx, campaignID)
	if err != nil {
		b.logger.Printf("campaign %d: breaker state unreadable, failing closed: %v", campaignID, err)
		return &BreakerStatus{
			Open:        true,
			FailureRate: 1,
		}, nil
	}
	if state == nil {
		return &BreakerStatus{RecoveryProgress: 1}, nil
	}

	now := utils.UTCNow()
	return &BreakerStatus{
		Open:              state.IsOpen(now),
		FailureCount:      state.FailureCount,
		FailureRate:       state.FailureRate(),
		CooldownRemaining: state.CooldownRemaining(now),
		RecoveryProgress:  state.RecoveryProgress(now),
		LastError:         state.LastError,
	}, nil
}

// RecordFailure increments the failure count and opens the breaker once the
// threshold is reached
func (b *CircuitBreakerImpl) RecordFailure(ctx context.Context, campaignID uint, execErr error) error {
	state, err := b.breakerRepo.RecordFailure(ctx, campaignID, execErr.Error(), b.maxFailures, b.cooldown)
	if err != nil {
		return fmt.Errorf("failed to record breaker failure for campaign %d: %w", campaignID, err)
	}

	action := models.AuditActionCircuitBreakerFailed
	if state != nil && state.IsOpen(utils.UTCNow()) {
		action = models.AuditActionCircuitBreakerOpened
		b.logger.Printf("campaign %d: circuit breaker opened after %d failures, cooldown %s",
			campaignID, state.FailureCount, b.cooldown)
	}

	entry := &models.AuditLog{
		CampaignID:   &campaignID,
		Action:       action,
		Description:  utils.ToPtr(fmt.Sprintf("breaker failure recorded: %v", execErr)),
		Success:      utils.ToPtr(false),
		ErrorMessage: utils.ToPtr(execErr.Error()),
	}
	if err := b.auditRepo.Save(ctx, entry); err != nil {
		b.logger.Printf("campaign %d: failed to write breaker audit log: %v", campaignID, err)
	}

	return nil
}

// RecordSuccess clears the failure counters and closes the breaker
func (b *CircuitBreakerImpl) RecordSuccess(ctx context.Context, campaignID uint) error {
	if err := b.breakerRepo.RecordSuccess(ctx, campaignID); err != nil {
		return fmt.Errorf("failed to record breaker success for campaign %d: %w", campaignID, err)
	}
	return nil
}
