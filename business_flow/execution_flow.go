package business_flow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
	"github.com/google/uuid"
	"github.com/lib/pq"
)

// ExecutionOutcome summarizes one campaign execution run
type ExecutionOutcome struct {
	CampaignID    uint         `json:"campaign_id"`
	CorrelationID string       `json:"correlation_id"`
	Batch         *BatchResult `json:"batch,omitempty"`
	Remaining     int64        `json:"remaining_contacts"`
}

// ExecutionFlow runs one campaign execution end to end: breaker check,
// configuration validation, execution lock, status transition, contact batch
// dispatch, attempt recording and lock release.
type ExecutionFlow interface {
	Execute(ctx context.Context, campaignID uint) (*ExecutionOutcome, error)
}

// ExecutionFlowImpl implements ExecutionFlow
type ExecutionFlowImpl struct {
	campaignRepo repository.CampaignRepository
	contactRepo  repository.CampaignContactRepository
	attemptRepo  repository.ExecutionAttemptRepository
	auditRepo    repository.AuditLogRepository
	secretRepo   repository.SecretRepository

	stateManager StateManager
	breaker      CircuitBreaker
	validation   ValidationFlow
	processor    ContactProcessor
	errorHandler *ExecutionErrorHandler

	lockTTL         time.Duration
	lockMaxAttempts int
	lockBackoff     time.Duration
	logger          *log.Logger
}

// NewExecutionFlow creates a new campaign execution flow
func NewExecutionFlow(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.CampaignContactRepository,
	attemptRepo repository.ExecutionAttemptRepository,
	auditRepo repository.AuditLogRepository,
	secretRepo repository.SecretRepository,
	stateManager StateManager,
	breaker CircuitBreaker,
	validation ValidationFlow,
	processor ContactProcessor,
	errorHandler *ExecutionErrorHandler,
	execCfg *config.ExecutionConfig,
	logger *log.Logger,
) ExecutionFlow {
	lockTTL := execCfg.LockTTL
	if lockTTL <= 0 {
		lockTTL = utils.ExecutionLockTTL
	}
	lockAttempts := execCfg.LockMaxAttempts
	if lockAttempts <= 0 {
		lockAttempts = utils.LockMaxAttempts
	}
	lockBackoff := execCfg.LockRetryBackoff
	if lockBackoff <= 0 {
		lockBackoff = utils.LockRetryBackoff
	}
	return &ExecutionFlowImpl{
		campaignRepo:    campaignRepo,
		contactRepo:     contactRepo,
		attemptRepo:     attemptRepo,
		auditRepo:       auditRepo,
		secretRepo:      secretRepo,
		stateManager:    stateManager,
		breaker:         breaker,
		validation:      validation,
		processor:       processor,
		errorHandler:    errorHandler,
		lockTTL:         lockTTL,
		lockMaxAttempts: lockAttempts,
		lockBackoff:     lockBackoff,
		logger:          logger,
	}
}

// Execute runs one execution attempt for the campaign. Every run is tagged
// with a correlation ID that flows through logs, audit entries and the
// attempt record.
func (f *ExecutionFlowImpl) Execute(ctx context.Context, campaignID uint) (*ExecutionOutcome, error) {
	correlationID := uuid.New().String()
	outcome := &ExecutionOutcome{CampaignID: campaignID, CorrelationID: correlationID}

	campaign, err := f.campaignRepo.ByID(ctx, campaignID)
	if err != nil {
		return nil, f.errorHandler.Handle(ctx, campaignID, correlationID, TransientError("CAMPAIGN_LOOKUP_FAILED", err))
	}
	if campaign == nil {
		return nil, FatalError("CAMPAIGN_NOT_FOUND", ErrCampaignNotFound)
	}
	if campaign.Status != models.CampaignStatusReady {
		return nil, NewCampaignError(ErrorCategoryFatal, "CAMPAIGN_NOT_READY",
			fmt.Sprintf("campaign %d is %s, not ready", campaignID, campaign.Status), ErrCampaignNotReady)
	}

	status, err := f.breaker.Check(ctx, campaignID)
	if err != nil {
		return nil, f.errorHandler.Handle(ctx, campaignID, correlationID, TransientError("BREAKER_CHECK_FAILED", err))
	}
	if status.Open {
		f.logger.Printf("campaign %d: execution blocked, breaker open for %s (failure rate %.2f) correlation=%s",
			campaignID, status.CooldownRemaining, status.FailureRate, correlationID)
		return nil, NewCampaignError(ErrorCategoryResource, "BREAKER_OPEN",
			fmt.Sprintf("circuit breaker open for campaign %d, cooldown remaining %s", campaignID, status.CooldownRemaining),
			ErrCircuitBreakerOpen)
	}

	validationResult, err := f.validation.ValidateWithRetry(ctx, campaign)
	if err != nil {
		verr := err
		if validationResult != nil && validationResult.Err != nil {
			verr = validationResult.Err
		}
		if recordErr := f.breaker.RecordFailure(ctx, campaignID, verr); recordErr != nil {
			f.logger.Printf("campaign %d: failed to record breaker failure: %v", campaignID, recordErr)
		}
		f.recordAttempt(ctx, campaignID, correlationID, models.AttemptStatusFailed, validationResult, nil, verr)
		return nil, f.errorHandler.Escalate(ctx, campaignID, correlationID, verr)
	}

	lockID := uuid.New()
	acquired, err := f.acquireLockWithRetry(ctx, campaignID, lockID)
	if err != nil {
		return nil, f.errorHandler.Handle(ctx, campaignID, correlationID, TransientError("LOCK_ACQUIRE_FAILED", err))
	}
	if !acquired {
		f.logger.Printf("campaign %d: lock held by another worker, skipping correlation=%s", campaignID, correlationID)
		return nil, NewCampaignError(ErrorCategoryResource, "LOCK_HELD",
			fmt.Sprintf("campaign %d execution lock not acquired after %d attempts", campaignID, f.lockMaxAttempts),
			ErrExecutionLockHeld)
	}
	defer func() {
		if err := f.campaignRepo.ReleaseExecutionLock(ctx, campaignID, lockID); err != nil {
			f.logger.Printf("campaign %d: failed to release execution lock %s: %v", campaignID, lockID, err)
		}
	}()

	if err := f.stateManager.TransitionCampaign(ctx, campaign, models.CampaignStatusExecuting, nil); err != nil {
		return nil, f.errorHandler.Handle(ctx, campaignID, correlationID, err)
	}

	f.audit(ctx, campaignID, models.AuditActionExecutionStarted, true,
		fmt.Sprintf("execution started, correlation=%s", correlationID), correlationID)

	apiKey, err := f.lookupAPIKey(ctx, campaign)
	if err != nil {
		return nil, f.errorHandler.Escalate(ctx, campaignID, correlationID, err)
	}

	batch, err := f.processor.ProcessBatch(ctx, campaign, apiKey, correlationID)
	if err != nil {
		if recordErr := f.breaker.RecordFailure(ctx, campaignID, err); recordErr != nil {
			f.logger.Printf("campaign %d: failed to record breaker failure: %v", campaignID, recordErr)
		}
		f.recordAttempt(ctx, campaignID, correlationID, models.AttemptStatusFailed, validationResult, nil, err)
		return nil, f.errorHandler.Escalate(ctx, campaignID, correlationID, err)
	}
	outcome.Batch = batch

	// A batch where every contact failed counts as an execution failure for
	// the breaker; partial success does not.
	if batch.Claimed > 0 && batch.Dispatched == 0 {
		batchErr := NewCampaignError(ErrorCategoryTransient, "BATCH_ALL_FAILED",
			fmt.Sprintf("all %d claimed contacts failed to dispatch", batch.Claimed), nil)
		if recordErr := f.breaker.RecordFailure(ctx, campaignID, batchErr); recordErr != nil {
			f.logger.Printf("campaign %d: failed to record breaker failure: %v", campaignID, recordErr)
		}
		f.recordAttempt(ctx, campaignID, correlationID, models.AttemptStatusFailed, validationResult, batch, batchErr)
		f.failBack(ctx, campaign)
		return outcome, f.errorHandler.Handle(ctx, campaignID, correlationID, batchErr)
	}

	if err := f.breaker.RecordSuccess(ctx, campaignID); err != nil {
		f.logger.Printf("campaign %d: failed to record breaker success: %v", campaignID, err)
	}

	f.recordAttempt(ctx, campaignID, correlationID, models.AttemptStatusCompleted, validationResult, batch, nil)

	remaining, err := f.contactRepo.CountPending(ctx, campaignID)
	if err != nil {
		f.logger.Printf("campaign %d: failed to count remaining contacts: %v", campaignID, err)
	}
	outcome.Remaining = remaining

	// Executing campaigns return to ready so the next batch can be picked up.
	if err := f.stateManager.TransitionCampaign(ctx, campaign, models.CampaignStatusReady, nil); err != nil {
		return outcome, f.errorHandler.Handle(ctx, campaignID, correlationID, err)
	}

	f.audit(ctx, campaignID, models.AuditActionExecutionCompleted, true,
		fmt.Sprintf("execution completed: %d dispatched, %d failed, %d pending remain, correlation=%s",
			batch.Dispatched, batch.Failed, remaining, correlationID), correlationID)

	f.logger.Printf("campaign %d: execution completed correlation=%s dispatched=%d failed=%d remaining=%d",
		campaignID, correlationID, batch.Dispatched, batch.Failed, remaining)

	return outcome, nil
}

// acquireLockWithRetry attempts lock acquisition with linear backoff
func (f *ExecutionFlowImpl) acquireLockWithRetry(ctx context.Context, campaignID uint, lockID uuid.UUID) (bool, error) {
	for attempt := 1; attempt <= f.lockMaxAttempts; attempt++ {
		acquired, err := f.campaignRepo.AcquireExecutionLock(ctx, campaignID, lockID, f.lockTTL)
		if err != nil {
			return false, err
		}
		if acquired {
			return true, nil
		}

		if attempt < f.lockMaxAttempts {
			select {
			case <-time.After(f.lockBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
	}
	return false, nil
}

// failBack returns an executing campaign to ready after a failed run so the
// retry budget, not the status, decides whether it runs again
func (f *ExecutionFlowImpl) failBack(ctx context.Context, campaign *models.Campaign) {
	if campaign.Status != models.CampaignStatusExecuting {
		return
	}
	if err := f.stateManager.TransitionCampaign(ctx, campaign, models.CampaignStatusReady, nil); err != nil {
		f.logger.Printf("campaign %d: failed to return to ready after failure: %v", campaign.ID, err)
	}
}

func (f *ExecutionFlowImpl) lookupAPIKey(ctx context.Context, campaign *models.Campaign) (string, error) {
	secret, err := f.secretRepo.ByUserAndName(ctx, campaign.UserID, models.SecretNameVapiAPIKey)
	if err != nil {
		return "", TransientError("SECRET_LOOKUP_FAILED", err)
	}
	if secret == nil || secret.Secret == "" {
		return "", ConfigurationError("VAPI_KEY_MISSING", ErrVapiKeyNotFound)
	}
	return secret.Secret, nil
}

// recordAttempt appends the immutable attempt record for this run
func (f *ExecutionFlowImpl) recordAttempt(
	ctx context.Context,
	campaignID uint,
	correlationID string,
	status models.AttemptStatus,
	validationResult *ValidationResult,
	batch *BatchResult,
	attemptErr error,
) {
	attempt := &models.ExecutionAttempt{
		CampaignID:    campaignID,
		CorrelationID: correlationID,
		Status:        status,
	}
	if validationResult != nil {
		attempt.ValidationSteps = pq.StringArray(validationResult.CompletedSteps)
	}
	if batch != nil {
		attempt.ContactsProcessed = batch.Dispatched
		if payload, err := json.Marshal(batch); err == nil {
			attempt.Response = payload
		}
	}
	if attemptErr != nil {
		attempt.Error = utils.ToPtr(attemptErr.Error())
	}

	if err := f.attemptRepo.Save(ctx, attempt); err != nil {
		f.logger.Printf("campaign %d: failed to record execution attempt %s: %v", campaignID, correlationID, err)
	}
}

func (f *ExecutionFlowImpl) audit(ctx context.Context, campaignID uint, action string, success bool, description, correlationID string) {
	entry := &models.AuditLog{
		CampaignID:  &campaignID,
		Action:      action,
		Description: utils.ToPtr(description),
		Success:     utils.ToPtr(success),
		RequestID:   &correlationID,
	}
	if err := f.auditRepo.Save(ctx, entry); err != nil {
		f.logger.Printf("campaign %d: failed to write execution audit log: %v", campaignID, err)
	}
}
