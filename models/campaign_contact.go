package models

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/aproductiontitle/capi-public/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ContactStatus represents the per-contact processing status
type ContactStatus string

const (
	ContactStatusPending    ContactStatus = "pending"
	ContactStatusProcessing ContactStatus = "processing"
	ContactStatusCompleted  ContactStatus = "completed"
	ContactStatusFailed     ContactStatus = "failed"
)

// String returns the string representation of the status
func (s ContactStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s ContactStatus) Valid() bool {
	switch s {
	case ContactStatusPending, ContactStatusProcessing,
		ContactStatusCompleted, ContactStatusFailed:
		return true
	default:
		return false
	}
}

// Scan implements the sql.Scanner interface for ContactStatus
func (s *ContactStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = ContactStatus(v)
	case []byte:
		*s = ContactStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into ContactStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for ContactStatus
func (s ContactStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid ContactStatus: %s", s)
	}
	return string(s), nil
}

// CampaignContact represents one callee of a campaign. Rows are bulk-inserted
// at campaign setup and mutated only by the contact processor and by inbound
// webhook events; they are never deleted during execution.
type CampaignContact struct {
	ID          uint          `gorm:"primaryKey" json:"id"`
	UUID        uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:uk_campaign_contacts_uuid" json:"uuid"`
	CampaignID  uint          `gorm:"not null;index:idx_campaign_contacts_campaign_id" json:"campaign_id"`
	Name        string        `gorm:"size:255" json:"name"`
	PhoneNumber string        `gorm:"size:32;not null" json:"phone_number"`
	Status      ContactStatus `gorm:"type:contact_status;not null;default:'pending';index:idx_campaign_contacts_status" json:"status"`

	RetryCount int     `gorm:"not null;default:0" json:"retry_count"`
	LastError  *string `gorm:"type:text" json:"last_error,omitempty"`

	CallStartedAt *time.Time `json:"call_started_at,omitempty"`
	CallEndedAt   *time.Time `json:"call_ended_at,omitempty"`
	CallDuration  *int       `json:"call_duration,omitempty"`
	Transcript    *string    `gorm:"type:text" json:"transcript,omitempty"`
	Sentiment     *string    `gorm:"size:32" json:"sentiment,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (CampaignContact) TableName() string {
	return "campaign_contacts"
}

// BeforeCreate is called before creating a new record
func (c *CampaignContact) BeforeCreate(tx *gorm.DB) error {
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = ContactStatusPending
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	return nil
}

// BeforeUpdate is called before updating a record
func (c *CampaignContact) BeforeUpdate(tx *gorm.DB) error {
	now := utils.UTCNow()
	c.UpdatedAt = &now
	return nil
}

// RetriesExhausted reports whether the contact has used up its retry budget.
func (c *CampaignContact) RetriesExhausted() bool {
	return c.RetryCount >= utils.ContactMaxRetries
}

// CampaignContactFilter represents filter criteria for campaign contacts
type CampaignContactFilter struct {
	ID          *uint          `json:"id,omitempty"`
	UUID        *uuid.UUID     `json:"uuid,omitempty"`
	CampaignID  *uint          `json:"campaign_id,omitempty"`
	Status      *ContactStatus `json:"status,omitempty"`
	PhoneNumber *string        `json:"phone_number,omitempty"`
}

// ContactStatusCounts is the per-campaign aggregate used by health metrics
type ContactStatusCounts struct {
	Total      int64 `json:"total"`
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Completed  int64 `json:"completed"`
	Failed     int64 `json:"failed"`
}
