package models

import (
	"time"

	"github.com/aproductiontitle/capi-public/utils"
	"gorm.io/gorm"
)

// SecretNameVapiAPIKey is the per-user voice provider API key entry.
const SecretNameVapiAPIKey = "VAPI_API_KEY"

// Secret is a named per-user credential used to call external providers.
type Secret struct {
	ID     uint   `gorm:"primaryKey" json:"id"`
	UserID uint   `gorm:"not null;uniqueIndex:uk_secrets_user_name" json:"user_id"`
	Name   string `gorm:"size:255;not null;uniqueIndex:uk_secrets_user_name" json:"name"`
	Secret string `gorm:"type:text;not null" json:"-"`

	CreatedAt time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
}

// TableName returns the table name for the model
func (Secret) TableName() string {
	return "secrets"
}

// BeforeCreate is called before creating a new record
func (s *Secret) BeforeCreate(tx *gorm.DB) error {
	if s.CreatedAt.IsZero() {
		s.CreatedAt = utils.UTCNow()
	}
	return nil
}

// SecretFilter represents filter criteria for secrets
type SecretFilter struct {
	ID     *uint   `json:"id,omitempty"`
	UserID *uint   `json:"user_id,omitempty"`
	Name   *string `json:"name,omitempty"`
}
