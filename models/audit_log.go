// Package models contains domain entities and business models for the campaign service
package models

import (
	"encoding/json"
	"time"
)

type AuditLog struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	UserID       *uint           `gorm:"index:idx_audit_user_id" json:"user_id,omitempty"`
	CampaignID   *uint           `gorm:"index:idx_audit_campaign_id" json:"campaign_id,omitempty"`
	Action       string          `gorm:"type:audit_action_enum;not null;index:idx_audit_action" json:"action"`
	Description  *string         `gorm:"type:text" json:"description,omitempty"`
	RequestID    *string         `gorm:"size:255;index:idx_audit_request_id" json:"request_id,omitempty"`
	Metadata     json.RawMessage `gorm:"type:jsonb;index:idx_audit_metadata,type:gin" json:"metadata,omitempty"`
	Success      *bool           `gorm:"default:true;index:idx_audit_success" json:"success"`
	ErrorMessage *string         `gorm:"type:text" json:"error_message,omitempty"`
	CreatedAt    time.Time       `gorm:"default:CURRENT_TIMESTAMP;index:idx_audit_created_at" json:"created_at"`
}

func (AuditLog) TableName() string {
	return "audit_log"
}

// Audit action constants
const (
	AuditActionExecutionStarted     = "campaign_execution_started"
	AuditActionExecutionCompleted   = "campaign_execution_completed"
	AuditActionExecutionFailed      = "campaign_execution_failed"
	AuditActionValidationFailed     = "campaign_validation_failed"
	AuditActionValidationSucceeded  = "campaign_validation_succeeded"
	AuditActionCircuitBreakerOpened = "circuit_breaker_opened"
	AuditActionCircuitBreakerFailed = "circuit_breaker_failure"
	AuditActionProviderInteraction  = "provider_interaction"
	AuditActionWebhookReceived      = "webhook_received"
	AuditActionContactsImported     = "contacts_imported"
)

// AuditLogFilter represents filter criteria for audit log queries
type AuditLogFilter struct {
	ID            *uint
	UserID        *uint
	CampaignID    *uint
	Action        *string
	Success       *bool
	RequestID     *string
	CreatedAfter  *time.Time
	CreatedBefore *time.Time
}

func (a *AuditLog) IsFailed() bool {
	return a.Success != nil && !*a.Success
}
