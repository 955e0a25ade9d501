package models

import (
	"time"

	"github.com/aproductiontitle/capi-public/utils"
)

// CircuitBreakerState tracks per-campaign failure history. While
// now < cooldown_until the breaker is open and execution must not proceed.
// Counters are cleared only by an explicit recorded success, never by
// cooldown expiry alone.
type CircuitBreakerState struct {
	ID            uint       `gorm:"primaryKey" json:"id"`
	CampaignID    uint       `gorm:"not null;uniqueIndex:uk_circuit_breaker_campaign_id" json:"campaign_id"`
	FailureCount  int        `gorm:"not null;default:0" json:"failure_count"`
	SuccessCount  int        `gorm:"not null;default:0" json:"success_count"`
	LastFailure   *time.Time `json:"last_failure,omitempty"`
	LastSuccess   *time.Time `json:"last_success,omitempty"`
	LastError     *string    `gorm:"type:text" json:"last_error,omitempty"`
	CooldownUntil *time.Time `json:"cooldown_until,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (CircuitBreakerState) TableName() string {
	return "circuit_breaker_state"
}

// IsOpen reports whether the breaker blocks execution at the given time.
func (s *CircuitBreakerState) IsOpen(now time.Time) bool {
	return s.CooldownUntil != nil && now.Before(*s.CooldownUntil)
}

// CooldownRemaining returns how long the breaker stays open from now, or zero.
func (s *CircuitBreakerState) CooldownRemaining(now time.Time) time.Duration {
	if s.CooldownUntil == nil || !now.Before(*s.CooldownUntil) {
		return 0
	}
	return s.CooldownUntil.Sub(now)
}

// FailureRate returns the observed failure ratio over the tracked window.
func (s *CircuitBreakerState) FailureRate() float64 {
	total := s.FailureCount + s.SuccessCount
	if total == 0 {
		return 0
	}
	return float64(s.FailureCount) / float64(total)
}

// RecoveryProgress returns how far through the cooldown the breaker is,
// in [0, 1]. A closed breaker reports 1.
func (s *CircuitBreakerState) RecoveryProgress(now time.Time) float64 {
	if s.CooldownUntil == nil || !now.Before(*s.CooldownUntil) {
		return 1
	}
	remaining := s.CooldownUntil.Sub(now)
	if remaining >= utils.BreakerCooldown {
		return 0
	}
	return 1 - float64(remaining)/float64(utils.BreakerCooldown)
}

// CircuitBreakerStateFilter represents filter criteria for breaker state rows
type CircuitBreakerStateFilter struct {
	ID         *uint `json:"id,omitempty"`
	CampaignID *uint `json:"campaign_id,omitempty"`
}
