package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/aproductiontitle/capi-public/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignStatus represents the lifecycle status of a campaign
type CampaignStatus string

const (
	CampaignStatusDraft            CampaignStatus = "draft"
	CampaignStatusValidating       CampaignStatus = "validating"
	CampaignStatusReady            CampaignStatus = "ready"
	CampaignStatusExecuting        CampaignStatus = "executing"
	CampaignStatusFailedValidation CampaignStatus = "failed_validation"
	CampaignStatusFailedExecution  CampaignStatus = "failed_execution"

	// Persisted by the schema enum but never produced by the state manager.
	// Kept so rows written by external tooling still scan cleanly.
	CampaignStatusCompleted CampaignStatus = "completed"
	CampaignStatusCancelled CampaignStatus = "cancelled"
)

// String returns the string representation of the status
func (s CampaignStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s CampaignStatus) Valid() bool {
	switch s {
	case CampaignStatusDraft, CampaignStatusValidating, CampaignStatusReady,
		CampaignStatusExecuting, CampaignStatusFailedValidation,
		CampaignStatusFailedExecution, CampaignStatusCompleted,
		CampaignStatusCancelled:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for CampaignStatus
func (s *CampaignStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = CampaignStatus(v)
	case []byte:
		*s = CampaignStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into CampaignStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for CampaignStatus
func (s CampaignStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid CampaignStatus: %s", s)
	}
	return string(s), nil
}

// validTransitions is the legal state-transition graph for campaign lifecycle
// status. completed and cancelled have no edges: nothing transitions into or
// out of them through the state manager.
var validTransitions = map[CampaignStatus][]CampaignStatus{
	CampaignStatusDraft:            {CampaignStatusValidating, CampaignStatusFailedValidation},
	CampaignStatusValidating:       {CampaignStatusReady, CampaignStatusFailedValidation},
	CampaignStatusReady:            {CampaignStatusExecuting, CampaignStatusFailedExecution},
	CampaignStatusExecuting:        {CampaignStatusReady, CampaignStatusFailedExecution},
	CampaignStatusFailedValidation: {CampaignStatusDraft, CampaignStatusValidating},
	CampaignStatusFailedExecution:  {CampaignStatusReady, CampaignStatusExecuting},
}

// Campaign represents a voice calling campaign in the database
type Campaign struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID      `gorm:"type:uuid;not null;uniqueIndex:uk_campaigns_uuid" json:"uuid"`
	UserID      uint           `gorm:"not null;index:idx_campaigns_user_id" json:"user_id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	AssistantID uint           `gorm:"not null;index:idx_campaigns_assistant_id" json:"assistant_id"`
	Status      CampaignStatus `gorm:"type:campaign_status;not null;default:'draft';index:idx_campaigns_status" json:"status"`

	ScheduledTime *time.Time `gorm:"index:idx_campaigns_scheduled_time" json:"scheduled_time,omitempty"`

	// Execution lock: at most one non-null holder per campaign, valid only
	// while now - execution_lock_time < utils.ExecutionLockTTL.
	ExecutionLockID   *uuid.UUID `gorm:"type:uuid;index:idx_campaigns_execution_lock_id" json:"execution_lock_id,omitempty"`
	ExecutionLockTime *time.Time `json:"execution_lock_time,omitempty"`

	CurrentRetryCount int     `gorm:"not null;default:0" json:"current_retry_count"`
	MaxRetries        int     `gorm:"not null;default:3" json:"max_retries"`
	ExecutionError    *string `gorm:"type:text" json:"execution_error,omitempty"`

	ValidationAttempts  int        `gorm:"not null;default:0" json:"validation_attempts"`
	LastValidationError *string    `gorm:"type:text" json:"last_validation_error,omitempty"`
	LastValidationTime  *time.Time `json:"last_validation_time,omitempty"`
	VapiConfigValidated bool       `gorm:"not null;default:false" json:"vapi_config_validated"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_campaigns_created_at" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`

	// Relations
	Assistant *Assistant        `gorm:"foreignKey:AssistantID;references:ID" json:"assistant,omitempty"`
	Contacts  []CampaignContact `gorm:"foreignKey:CampaignID" json:"contacts,omitempty"`
}

// TableName returns the table name for the model
func (Campaign) TableName() string {
	return "campaigns"
}

// BeforeCreate is called before creating a new record
func (c *Campaign) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = CampaignStatusDraft
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *Campaign) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// CanTransitionTo checks if the campaign can transition to the given status
func (c *Campaign) CanTransitionTo(newStatus CampaignStatus) bool {
	for _, s := range validTransitions[c.Status] {
		if s == newStatus {
			return true
		}
	}
	return false
}

// LockExpired reports whether the current execution lock, if any, is older
// than the lock TTL and therefore reclaimable.
func (c *Campaign) LockExpired(now time.Time) bool {
	if c.ExecutionLockID == nil || c.ExecutionLockTime == nil {
		return false
	}
	return now.Sub(*c.ExecutionLockTime) >= utils.ExecutionLockTTL
}

// IsDue reports whether the campaign is scheduled at or before the given time
// and still has retry budget left.
func (c *Campaign) IsDue(now time.Time) bool {
	if c.ScheduledTime == nil || c.ScheduledTime.After(now) {
		return false
	}
	if c.ExecutionError != nil {
		return false
	}
	return c.CurrentRetryCount < c.MaxRetries
}

// CampaignFilter represents filter criteria for campaigns
type CampaignFilter struct {
	ID              *uint           `json:"id,omitempty"`
	UUID            *uuid.UUID      `json:"uuid,omitempty"`
	UserID          *uint           `json:"user_id,omitempty"`
	AssistantID     *uint           `json:"assistant_id,omitempty"`
	Status          *CampaignStatus `json:"status,omitempty"`
	Name            *string         `json:"name,omitempty"`
	ScheduledAfter  *time.Time      `json:"scheduled_after,omitempty"`
	ScheduledBefore *time.Time      `json:"scheduled_before,omitempty"`
	CreatedAfter    *time.Time      `json:"created_after,omitempty"`
	CreatedBefore   *time.Time      `json:"created_before,omitempty"`
	HasLock         *bool           `json:"has_lock,omitempty"`
}
