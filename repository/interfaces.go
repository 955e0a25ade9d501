// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"time"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/google/uuid"
)

// RepositoryContext key for transaction in context
type contextKey string

const TxContextKey contextKey = "tx"

type Repository[T any, F any] interface {
	ByID(ctx context.Context, id uint) (*T, error)
	ByFilter(ctx context.Context, filter F, orderBy string, limit, offset int) ([]*T, error)
	Save(ctx context.Context, entity *T) error
	SaveBatch(ctx context.Context, entities []*T) error
	Count(ctx context.Context, filter F) (int64, error)
	Exists(ctx context.Context, filter F) (bool, error)
}

// CampaignRepository defines operations for campaigns, including the
// execution-lock protocol. Lock operations are single conditional updates so
// that concurrent attempts serialize on the campaign row.
type CampaignRepository interface {
	Repository[models.Campaign, models.CampaignFilter]
	ByUUID(ctx context.Context, uuid string) (*models.Campaign, error)
	Update(ctx context.Context, campaign *models.Campaign) error

	// AcquireExecutionLock atomically claims the execution lock when it is
	// free or stale (older than lockTTL). Returns true when this caller is
	// now the holder.
	AcquireExecutionLock(ctx context.Context, campaignID uint, lockID uuid.UUID, lockTTL time.Duration) (bool, error)

	// ReleaseExecutionLock clears the lock only when lockID is still the
	// holder, so a stale takeover is never released by the previous owner.
	ReleaseExecutionLock(ctx context.Context, campaignID uint, lockID uuid.UUID) error

	// UpdateStatusGuarded sets status plus auxiliary fields only when the row
	// still carries the expected current status.
	UpdateStatusGuarded(ctx context.Context, campaignID uint, from, to models.CampaignStatus, fields map[string]any) (bool, error)

	// UpdateValidationState persists only the validation bookkeeping columns,
	// never touching status or lock fields held by a concurrent executor.
	UpdateValidationState(ctx context.Context, campaign *models.Campaign) error

	// MarkExecutionFailed records a terminal execution failure.
	MarkExecutionFailed(ctx context.Context, campaignID uint, execErr string) error

	// ListDue returns campaigns in the given status scheduled at or before
	// now, with retry budget left and no terminal execution error.
	ListDue(ctx context.Context, status models.CampaignStatus, now time.Time, limit int) ([]*models.Campaign, error)
}

// CampaignContactRepository defines operations for campaign contacts
type CampaignContactRepository interface {
	Repository[models.CampaignContact, models.CampaignContactFilter]
	Update(ctx context.Context, contact *models.CampaignContact) error

	// ClaimPendingBatch atomically selects up to batchSize pending contacts of
	// the campaign and returns them; selection skips rows locked by concurrent
	// batches so the same contact is never double-dispatched.
	ClaimPendingBatch(ctx context.Context, campaignID uint, batchSize int) ([]*models.CampaignContact, error)

	CountPending(ctx context.Context, campaignID uint) (int64, error)
	StatusCounts(ctx context.Context, campaignID uint) (*models.ContactStatusCounts, error)

	MarkProcessing(ctx context.Context, contactID uint, startedAt time.Time) error
	MarkFailed(ctx context.Context, contactID uint, lastError string, endedAt time.Time) error
	MarkCompleted(ctx context.Context, contactID uint, endedAt time.Time, duration *int, transcript *string) error
	UpdateTranscript(ctx context.Context, contactID uint, transcript string) error
}

// CircuitBreakerRepository defines operations for per-campaign breaker state
type CircuitBreakerRepository interface {
	ByCampaignID(ctx context.Context, campaignID uint) (*models.CircuitBreakerState, error)

	// RecordFailure upserts the breaker row, increments the failure count and,
	// when the count reaches maxFailures, arms the cooldown.
	RecordFailure(ctx context.Context, campaignID uint, errMsg string, maxFailures int, cooldown time.Duration) (*models.CircuitBreakerState, error)

	// RecordSuccess clears failure counters and the cooldown.
	RecordSuccess(ctx context.Context, campaignID uint) error
}

// ExecutionAttemptRepository defines append-only operations for attempts
type ExecutionAttemptRepository interface {
	Repository[models.ExecutionAttempt, models.ExecutionAttemptFilter]
	CountsByCampaign(ctx context.Context, campaignID uint) (*models.AttemptCounts, error)
	Latest(ctx context.Context, campaignID uint) (*models.ExecutionAttempt, error)
}

// AuditLogRepository defines operations for audit logs
type AuditLogRepository interface {
	Repository[models.AuditLog, models.AuditLogFilter]
	ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error)
	ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error)
}

// AssistantRepository defines operations for assistants
type AssistantRepository interface {
	Repository[models.Assistant, models.AssistantFilter]
}

// SecretRepository defines operations for per-user secrets
type SecretRepository interface {
	Repository[models.Secret, models.SecretFilter]
	ByUserAndName(ctx context.Context, userID uint, name string) (*models.Secret, error)
}
