package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aproductiontitle/capi-public/utils"
	"github.com/lib/pq"
	"gorm.io/gorm"
)

// AttemptStatus represents the outcome of one execution attempt
type AttemptStatus string

const (
	AttemptStatusCompleted AttemptStatus = "completed"
	AttemptStatusFailed    AttemptStatus = "failed"
)

// String returns the string representation of the status
func (s AttemptStatus) String() string {
	return string(s)
}

// Valid checks if the status is valid
func (s AttemptStatus) Valid() bool {
	return s == AttemptStatusCompleted || s == AttemptStatusFailed
}

// Scan implements the sql.Scanner interface for AttemptStatus
func (s *AttemptStatus) Scan(value any) error {
	if value == nil {
		*s = ""
		return nil
	}

	switch v := value.(type) {
	case string:
		*s = AttemptStatus(v)
	case []byte:
		*s = AttemptStatus(string(v))
	default:
		return fmt.Errorf("cannot scan %T into AttemptStatus", value)
	}

	return nil
}

// Value implements the driver.Valuer interface for AttemptStatus
func (s AttemptStatus) Value() (driver.Value, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("invalid AttemptStatus: %s", s)
	}
	return string(s), nil
}

// ExecutionAttempt is the append-only record of one campaign execution
// attempt. Rows are never mutated after creation and are read back only
// through the health-metrics aggregate, never for control decisions.
type ExecutionAttempt struct {
	ID            uint            `gorm:"primaryKey" json:"id"`
	CampaignID    uint            `gorm:"not null;index:idx_execution_attempts_campaign_id" json:"campaign_id"`
	CorrelationID string          `gorm:"type:uuid;not null;index:idx_execution_attempts_correlation_id" json:"correlation_id"`
	Status        AttemptStatus   `gorm:"type:attempt_status;not null" json:"status"`
	Error         *string         `gorm:"type:text" json:"error,omitempty"`
	Response      json.RawMessage `gorm:"type:jsonb" json:"response,omitempty"`

	// Validation steps completed before the attempt resolved, in order.
	ValidationSteps pq.StringArray `gorm:"type:text[]" json:"validation_steps,omitempty"`

	ContactsProcessed int       `gorm:"not null;default:0" json:"contacts_processed"`
	CreatedAt         time.Time `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_execution_attempts_created_at" json:"created_at"`
}

// TableName returns the table name for the model
func (ExecutionAttempt) TableName() string {
	return "campaign_execution_attempts"
}

// BeforeCreate is called before creating a new record
func (a *ExecutionAttempt) BeforeCreate(tx *gorm.DB) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = utils.UTCNow()
	}
	return nil
}

// ExecutionAttemptFilter represents filter criteria for execution attempts
type ExecutionAttemptFilter struct {
	ID            *uint          `json:"id,omitempty"`
	CampaignID    *uint          `json:"campaign_id,omitempty"`
	CorrelationID *string        `json:"correlation_id,omitempty"`
	Status        *AttemptStatus `json:"status,omitempty"`
}

// AttemptCounts is the per-campaign attempt aggregate for health metrics
type AttemptCounts struct {
	Total     int64 `json:"total"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
}
