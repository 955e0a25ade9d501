// Package dto contains request and response payloads for the HTTP API
package dto

import "time"

// DeployCampaignResponse is returned when a campaign execution is triggered
type DeployCampaignResponse struct {
	Message       string `json:"message"`
	CampaignID    uint   `json:"campaign_id"`
	CorrelationID string `json:"correlation_id"`
	Dispatched    int    `json:"dispatched"`
	Failed        int    `json:"failed"`
	Remaining     int64  `json:"remaining_contacts"`
}

// CampaignHealthResponse is the operator-facing execution health view
type CampaignHealthResponse struct {
	CampaignID  uint    `json:"campaign_id"`
	Status      string  `json:"status"`
	Locked      bool    `json:"locked"`
	LockExpired bool    `json:"lock_expired"`
	RetryBudget int     `json:"retry_budget_remaining"`
	LastError   *string `json:"last_error,omitempty"`

	Contacts ContactCountsDTO `json:"contacts"`
	Attempts AttemptCountsDTO `json:"attempts"`
	Breaker  BreakerStatusDTO `json:"breaker"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// ContactCountsDTO is the per-status contact aggregate
type ContactCountsDTO struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}

// AttemptCountsDTO is the execution attempt aggregate
type AttemptCountsDTO struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}

// BreakerStatusDTO is the circuit breaker view
type BreakerStatusDTO struct {
	Open              bool    `json:"open"`
	FailureCount      int     `json:"failure_count"`
	FailureRate       float64 `json:"failure_rate"`
	CooldownRemaining string  `json:"cooldown_remaining"`
	RecoveryProgress  float64 `json:"recovery_progress"`
	LastError         *string `json:"last_error,omitempty"`
}

// ImportContactsResponse summarizes a contact list upload
type ImportContactsResponse struct {
	Message  string   `json:"message"`
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}
