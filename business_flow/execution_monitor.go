package business_flow

import (
	"context"
	"time"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
)

// CampaignHealth is the aggregated execution health view of one campaign
type CampaignHealth struct {
	CampaignID   uint                  `json:"campaign_id"`
	Status       models.CampaignStatus `json:"status"`
	Locked       bool                  `json:"locked"`
	LockExpired  bool                  `json:"lock_expired"`
	RetryBudget  int                   `json:"retry_budget_remaining"`
	LastError    *string               `json:"last_error,omitempty"`

	Contacts *models.ContactStatusCounts `json:"contacts"`
	Attempts *models.AttemptCounts       `json:"attempts"`
	Breaker  *BreakerStatus              `json:"breaker"`

	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

// ExecutionMonitor aggregates per-campaign execution health for operators.
// It only reads; control decisions stay with the execution flow.
type ExecutionMonitor interface {
	Health(ctx context.Context, campaignID uint) (*CampaignHealth, error)
}

// ExecutionMonitorImpl implements ExecutionMonitor
type ExecutionMonitorImpl struct {
	campaignRepo repository.CampaignRepository
	contactRepo  repository.CampaignContactRepository
	attemptRepo  repository.ExecutionAttemptRepository
	breaker      CircuitBreaker
}

// NewExecutionMonitor creates a new execution monitor
func NewExecutionMonitor(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.CampaignContactRepository,
	attemptRepo repository.ExecutionAttemptRepository,
	breaker CircuitBreaker,
) ExecutionMonitor {
	return &ExecutionMonitorImpl{
		campaignRepo: campaignRepo,
		contactRepo:  contactRepo,
		attemptRepo:  attemptRepo,
		breaker:      breaker,
	}
}

// Health collects the execution health aggregate for one campaign
func (m *ExecutionMonitorImpl) Health(ctx context.Context, campaignID uint) (*CampaignHealth, error) {
	campaign, err := m.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, TransientError("CAMPAIGN_LOOKUP_FAILED", err)
	}
	if campaign == nil {
		return nil, FatalError("CAMPAIGN_NOT_FOUND", ErrCampaignNotFound)
	}

	now := utils.UTCNow()
	health := &CampaignHealth{
		CampaignID:  campaign.ID,
		Status:      campaign.Status,
		Locked:      campaign.ExecutionLockID != nil,
		LockExpired: campaign.LockExpired(now),
		RetryBudget: campaign.MaxRetries - campaign.CurrentRetryCount,
		LastError:   campaign.ExecutionError,
	}

	contacts, err := m.contactRepo.StatusCounts(ctx, campaignID)
	if err != nil {
		return nil, TransientError("CONTACT_COUNTS_FAILED", err)
	}
	health.Contacts = contacts

	attempts, err := m.attemptRepo.CountsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, TransientError("ATTEMPT_COUNTS_FAILED", err)
	}
	health.Attempts = attempts

	if latest, err := m.attemptRepo.Latest(ctx, campaignID); err == nil && latest != nil {
		health.LastAttemptAt = &latest.CreatedAt
	}

	breakerStatus, err := m.breaker.Check(ctx, campaignID)
	if err != nil {
		return nil, TransientError("BREAKER_CHECK_FAILED", err)
	}
	health.Breaker = breakerStatus

	return health, nil
}
