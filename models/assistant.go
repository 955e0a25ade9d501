package models

import (
	"time"

	"github.com/aproductiontitle/capi-public/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Assistant is a locally configured AI voice assistant. A campaign can only
// execute once its assistant has a provider-side identifier.
type Assistant struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	UUID            uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_assistants_uuid" json:"uuid"`
	UserID          uint      `gorm:"not null;index:idx_assistants_user_id" json:"user_id"`
	Name            string    `gorm:"size:255;not null" json:"name"`
	VapiAssistantID *string   `gorm:"size:255;index:idx_assistants_vapi_assistant_id" json:"vapi_assistant_id,omitempty"`
	SystemPrompt    *string   `gorm:"type:text" json:"system_prompt,omitempty"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Assistant) TableName() string {
	return "assistants"
}

// BeforeCreate is called before creating a new record
func (a *Assistant) BeforeCreate(tx *gorm.DB) error {
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// HasProviderID reports whether the assistant is registered remotely.
func (a *Assistant) HasProviderID() bool {
	return a.VapiAssistantID != nil && *a.VapiAssistantID != ""
}

// AssistantFilter represents filter criteria for assistants
type AssistantFilter struct {
	ID     *uint      `json:"id,omitempty"`
	UUID   *uuid.UUID `json:"uuid,omitempty"`
	UserID *uint      `json:"user_id,omitempty"`
	Name   *string    `json:"name,omitempty"`
}
