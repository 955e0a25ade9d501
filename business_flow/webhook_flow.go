package business_flow

import (
	"context"
	"fmt"
	"log"
	"strconv"

	"github.com/aproductiontitle/capi-public/app/dto"
	"github.com/aproductiontitle/capi-public/app/services"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
)

// WebhookFlow applies provider callback events to contact state. Events are
// authenticated by the per-call token, deduplicated by event ID, and routed by
// type. Provider retries of an already-processed event are acknowledged
// without reapplying.
type WebhookFlow interface {
	ProcessEvent(ctx context.Context, token string, event *dto.WebhookEventRequest) (*dto.WebhookEventResponse, error)
	ProcessErrorEvent(ctx context.Context, token string, event *dto.WebhookEventRequest) (*dto.WebhookEventResponse, error)
}

// WebhookFlowImpl implements WebhookFlow
type WebhookFlowImpl struct {
	contactRepo repository.CampaignContactRepository
	auditRepo   repository.AuditLogRepository
	tokenSvc    services.WebhookTokenService
	dedup       services.EventDedupService
	logger      *log.Logger
}

// NewWebhookFlow creates a new webhook flow
func NewWebhookFlow(
	contactRepo repository.CampaignContactRepository,
	auditRepo repository.AuditLogRepository,
	tokenSvc services.WebhookTokenService,
	dedup services.EventDedupService,
	logger *log.Logger,
) WebhookFlow {
	return &WebhookFlowImpl{
		contactRepo: contactRepo,
		auditRepo:   auditRepo,
		tokenSvc:    tokenSvc,
		dedup:       dedup,
		logger:      logger,
	}
}

// ProcessEvent validates, deduplicates and applies one callback event
func (f *WebhookFlowImpl) ProcessEvent(ctx context.Context, token string, event *dto.WebhookEventRequest) (*dto.WebhookEventResponse, error) {
	claims, err := f.tokenSvc.ValidateToken(token)
	if err != nil {
		return nil, ConfigurationError("WEBHOOK_TOKEN_INVALID", err)
	}

	contactID, err := f.resolveContactID(event, claims)
	if err != nil {
		return nil, FatalError("WEBHOOK_CONTACT_UNRESOLVED", err)
	}

	first, err := f.dedup.MarkProcessed(ctx, event.ID)
	if err != nil {
		return nil, TransientError("WEBHOOK_DEDUP_FAILED", err)
	}
	if !first {
		f.logger.Printf("webhook event %s already processed, acknowledging", event.ID)
		return &dto.WebhookEventResponse{Message: "Event already processed", Duplicate: true}, nil
	}

	now := utils.UTCNow()
	switch event.Type {
	case dto.WebhookEventCallCompleted:
		err = f.contactRepo.MarkCompleted(ctx, contactID, now, event.Duration, event.Transcript)
	case dto.WebhookEventCallFailed:
		err = f.contactRepo.MarkFailed(ctx, contactID, failureReason(event), now)
	case dto.WebhookEventTranscriptUpdate:
		if event.Transcript == nil {
			return nil, FatalError("WEBHOOK_TRANSCRIPT_MISSING",
				fmt.Errorf("transcript update event %s carries no transcript", event.ID))
		}
		err = f.contactRepo.UpdateTranscript(ctx, contactID, *event.Transcript)
	default:
		// Unhandled types are acknowledged so the provider stops retrying them
		f.logger.Printf("webhook event %s has unhandled type %q, acknowledging", event.ID, event.Type)
		return &dto.WebhookEventResponse{Message: "Event acknowledged"}, nil
	}
	if err != nil {
		return nil, TransientError("WEBHOOK_APPLY_FAILED", err)
	}

	f.audit(ctx, claims.CampaignID, event, contactID)

	return &dto.WebhookEventResponse{Message: "Event processed"}, nil
}

// ProcessErrorEvent applies one provider error callback. The error channel is
// separate from the lifecycle channel; every event on it fails the contact.
func (f *WebhookFlowImpl) ProcessErrorEvent(ctx context.Context, token string, event *dto.WebhookEventRequest) (*dto.WebhookEventResponse, error) {
	claims, err := f.tokenSvc.ValidateToken(token)
	if err != nil {
		return nil, ConfigurationError("WEBHOOK_TOKEN_INVALID", err)
	}

	contactID, err := f.resolveContactID(event, claims)
	if err != nil {
		return nil, FatalError("WEBHOOK_CONTACT_UNRESOLVED", err)
	}

	first, err := f.dedup.MarkProcessed(ctx, event.ID)
	if err != nil {
		return nil, TransientError("WEBHOOK_DEDUP_FAILED", err)
	}
	if !first {
		f.logger.Printf("webhook error event %s already processed, acknowledging", event.ID)
		return &dto.WebhookEventResponse{Message: "Event already processed", Duplicate: true}, nil
	}

	if err := f.contactRepo.MarkFailed(ctx, contactID, failureReason(event), utils.UTCNow()); err != nil {
		return nil, TransientError("WEBHOOK_APPLY_FAILED", err)
	}

	f.audit(ctx, claims.CampaignID, event, contactID)

	return &dto.WebhookEventResponse{Message: "Event processed"}, nil
}

// failureReason picks the most specific failure description the event carries
func failureReason(event *dto.WebhookEventRequest) string {
	if event.Error != nil && *event.Error != "" {
		return *event.Error
	}
	if event.EndedReason != nil && *event.EndedReason != "" {
		return *event.EndedReason
	}
	return "call failed"
}

// resolveContactID prefers the round-tripped metadata and falls back to the
// token claims; a mismatch between the two is rejected
func (f *WebhookFlowImpl) resolveContactID(event *dto.WebhookEventRequest, claims *services.WebhookTokenClaims) (uint, error) {
	if event.Metadata.ContactID == "" {
		return claims.ContactID, nil
	}

	parsed, err := strconv.ParseUint(event.Metadata.ContactID, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid contactId %q in event %s: %w", event.Metadata.ContactID, event.ID, err)
	}

	contactID := uint(parsed)
	if contactID != claims.ContactID {
		return 0, fmt.Errorf("event %s contactId %d does not match token contact %d",
			event.ID, contactID, claims.ContactID)
	}
	return contactID, nil
}

func (f *WebhookFlowImpl) audit(ctx context.Context, campaignID uint, event *dto.WebhookEventRequest, contactID uint) {
	entry := &models.AuditLog{
		CampaignID:  &campaignID,
		Action:      models.AuditActionWebhookReceived,
		Description: utils.ToPtr(fmt.Sprintf("event %s (%s) applied to contact %d", event.ID, event.Type, contactID)),
		Success:     utils.ToPtr(true),
		RequestID:   utils.ToPtr(event.ID),
	}
	if err := f.auditRepo.Save(ctx, entry); err != nil {
		f.logger.Printf("campaign %d: failed to write webhook audit log: %v", campaignID, err)
	}
}
