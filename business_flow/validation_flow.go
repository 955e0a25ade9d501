package business_flow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/aproductiontitle/capi-public/app/services"
	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
)

// Validation step names recorded on each execution attempt
const (
	ValidationStepAPIKey    = "vapi_api_key"
	ValidationStepAssistant = "assistant_configuration"
	ValidationStepWebhooks  = "webhook_endpoints"
	ValidationStepContacts  = "pending_contacts"
)

// ValidationResult is the outcome of one configuration validation pass
type ValidationResult struct {
	Valid          bool     `json:"valid"`
	CompletedSteps []string `json:"completed_steps"`
	FailedStep     string   `json:"failed_step,omitempty"`
	Err            error    `json:"-"`
}

// ValidationFlow checks that a campaign is executable. The four checks run in
// a fixed order and short-circuit on the first failure: the per-user provider
// API key, the assistant configuration, the webhook callback endpoints, and
// the presence of pending contacts.
type ValidationFlow interface {
	Validate(ctx context.Context, campaign *models.Campaign) *ValidationResult
	ValidateWithRetry(ctx context.Context, campaign *models.Campaign) (*ValidationResult, error)
}

// ValidationFlowImpl implements ValidationFlow
type ValidationFlowImpl struct {
	campaignRepo  repository.CampaignRepository
	contactRepo   repository.CampaignContactRepository
	assistantRepo repository.AssistantRepository
	secretRepo    repository.SecretRepository
	auditRepo     repository.AuditLogRepository
	vapiClient    services.VapiClient
	webhookCfg    *config.WebhookConfig
	maxAttempts   int
	retryBackoff  time.Duration
	logger        *log.Logger
}

// NewValidationFlow creates a new validation flow
func NewValidationFlow(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.CampaignContactRepository,
	assistantRepo repository.AssistantRepository,
	secretRepo repository.SecretRepository,
	auditRepo repository.AuditLogRepository,
	vapiClient services.VapiClient,
	webhookCfg *config.WebhookConfig,
	execCfg *config.ExecutionConfig,
	logger *log.Logger,
) ValidationFlow {
	maxAttempts := execCfg.ValidationAttempts
	if maxAttempts <= 0 {
		maxAttempts = utils.ValidationMaxAttempts
	}
	backoff := execCfg.ValidationBackoff
	if backoff <= 0 {
		backoff = utils.ValidationRetryBackoff
	}
	return &ValidationFlowImpl{
		campaignRepo:  campaignRepo,
		contactRepo:   contactRepo,
		assistantRepo: assistantRepo,
		secretRepo:    secretRepo,
		auditRepo:     auditRepo,
		vapiClient:    vapiClient,
		webhookCfg:    webhookCfg,
		maxAttempts:   maxAttempts,
		retryBackoff:  backoff,
		logger:        logger,
	}
}

// Validate runs one validation pass over the campaign configuration
func (f *ValidationFlowImpl) Validate(ctx context.Context, campaign *models.Campaign) *ValidationResult {
	result := &ValidationResult{}

	apiKey, err := f.validateAPIKey(ctx, campaign)
	if err != nil {
		result.FailedStep = ValidationStepAPIKey
		result.Err = err
		return result
	}
	result.CompletedSteps = append(result.CompletedSteps, ValidationStepAPIKey)

	if err := f.validateAssistant(ctx, campaign, apiKey); err != nil {
		result.FailedStep = ValidationStepAssistant
		result.Err = err
		return result
	}
	result.CompletedSteps = append(result.CompletedSteps, ValidationStepAssistant)

	if err := f.validateWebhooks(ctx); err != nil {
		result.FailedStep = ValidationStepWebhooks
		result.Err = err
		return result
	}
	result.CompletedSteps = append(result.CompletedSteps, ValidationStepWebhooks)

	if err := f.validateContacts(ctx, campaign); err != nil {
		result.FailedStep = ValidationStepContacts
		result.Err = err
		return result
	}
	result.CompletedSteps = append(result.CompletedSteps, ValidationStepContacts)

	result.Valid = true
	return result
}

// ValidateWithRetry runs validation passes with linear backoff until one
// succeeds or the attempt budget is spent. Campaign validation bookkeeping is
// persisted after every attempt.
func (f *ValidationFlowImpl) ValidateWithRetry(ctx context.Context, campaign *models.Campaign) (*ValidationResult, error) {
	var result *ValidationResult

	for attempt := 1; attempt <= f.maxAttempts; attempt++ {
		result = f.Validate(ctx, campaign)

		now := utils.UTCNow()
		campaign.ValidationAttempts++
		campaign.LastValidationTime = &now
		campaign.VapiConfigValidated = result.Valid
		if result.Valid {
			campaign.LastValidationError = nil
		} else {
			campaign.LastValidationError = utils.ToPtr(result.Err.Error())
		}
		if err := f.campaignRepo.UpdateValidationState(ctx, campaign); err != nil {
			f.logger.Printf("campaign %d: failed to persist validation attempt: %v", campaign.ID, err)
		}

		if result.Valid {
			f.audit(ctx, campaign.ID, models.AuditActionValidationSucceeded, true,
				fmt.Sprintf("validation passed on attempt %d: %s", attempt, strings.Join(result.CompletedSteps, ",")), nil)
			return result, nil
		}

		f.logger.Printf("campaign %d: validation attempt %d/%d failed at %s: %v",
			campaign.ID, attempt, f.maxAttempts, result.FailedStep, result.Err)
		f.audit(ctx, campaign.ID, models.AuditActionValidationFailed, false,
			fmt.Sprintf("validation attempt %d failed at %s", attempt, result.FailedStep), result.Err)

		if attempt < f.maxAttempts {
			select {
			case <-time.After(f.retryBackoff * time.Duration(attempt)):
			case <-ctx.Done():
				return result, ctx.Err()
			}
		}
	}

	return result, result.Err
}

func (f *ValidationFlowImpl) validateAPIKey(ctx context.Context, campaign *models.Campaign) (string, error) {
	secret, err := f.secretRepo.ByUserAndName(ctx, campaign.UserID, models.SecretNameVapiAPIKey)
	if err != nil {
		return "", TransientError("SECRET_LOOKUP_FAILED", err)
	}
	if secret == nil || secret.Secret == "" {
		return "", ConfigurationError("VAPI_KEY_MISSING", ErrVapiKeyNotFound)
	}
	return secret.Secret, nil
}

func (f *ValidationFlowImpl) validateAssistant(ctx context.Context, campaign *models.Campaign, apiKey string) error {
	assistant := campaign.Assistant
	if assistant == nil {
		loaded, err := f.assistantRepo.ByID(ctx, campaign.AssistantID)
		if err != nil {
			return TransientError("ASSISTANT_LOOKUP_FAILED", err)
		}
		assistant = loaded
	}
	if assistant == nil || !assistant.HasProviderID() {
		return ConfigurationError("ASSISTANT_INVALID", ErrInvalidAssistant)
	}

	info, err := f.vapiClient.GetAssistant(ctx, apiKey, *assistant.VapiAssistantID)
	if err != nil {
		return TransientError("ASSISTANT_FETCH_FAILED", err)
	}
	if info == nil {
		return ConfigurationError("ASSISTANT_INVALID", ErrInvalidAssistant)
	}
	return nil
}

func (f *ValidationFlowImpl) validateWebhooks(ctx context.Context) error {
	if f.webhookCfg.BaseURL == "" {
		return ConfigurationError("WEBHOOK_INVALID", ErrWebhookValidation)
	}

	for _, route := range f.webhookCfg.RequiredRoutes {
		url := strings.TrimSuffix(f.webhookCfg.BaseURL, "/") + route
		if err := f.vapiClient.ProbeWebhook(ctx, url); err != nil {
			return ConfigurationError("WEBHOOK_INVALID",
				fmt.Errorf("%w: %s: %v", ErrWebhookValidation, route, err))
		}
	}
	return nil
}

func (f *ValidationFlowImpl) validateContacts(ctx context.Context, campaign *models.Campaign) error {
	pending, err := f.contactRepo.CountPending(ctx, campaign.ID)
	if err != nil {
		return TransientError("CONTACT_COUNT_FAILED", err)
	}
	if pending == 0 {
		return ResourceError("NO_PENDING_CONTACTS", ErrNoPendingContacts)
	}
	return nil
}

func (f *ValidationFlowImpl) audit(ctx context.Context, campaignID uint, action string, success bool, description string, cause error) {
	entry := &models.AuditLog{
		CampaignID:  &campaignID,
		Action:      action,
		Description: utils.ToPtr(description),
		Success:     utils.ToPtr(success),
	}
	if cause != nil {
		entry.ErrorMessage = utils.ToPtr(cause.Error())
	}
	if err := f.auditRepo.Save(ctx, entry); err != nil {
		f.logger.Printf("campaign %d: failed to write validation audit log: %v", campaignID, err)
	}
}
