package business_flow

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/aproductiontitle/capi-public/app/middleware"
	"github.com/aproductiontitle/capi-public/app/services"
	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
)

// ContactDispatchError records one contact that could not be dispatched
type ContactDispatchError struct {
	ContactID   uint   `json:"contact_id"`
	PhoneNumber string `json:"phone_number"`
	Message     string `json:"message"`
}

// BatchResult summarizes one contact batch dispatch
type BatchResult struct {
	Claimed    int                    `json:"claimed"`
	Dispatched int                    `json:"dispatched"`
	Failed     int                    `json:"failed"`
	Errors     []ContactDispatchError `json:"errors,omitempty"`
}

// ContactProcessor dispatches voice calls for one batch of pending contacts.
// Contacts are processed on a bounded worker pool and failures are isolated:
// one contact failing never aborts the rest of the batch.
type ContactProcessor interface {
	ProcessBatch(ctx context.Context, campaign *models.Campaign, apiKey, correlationID string) (*BatchResult, error)
}

// ContactProcessorImpl implements ContactProcessor
type ContactProcessorImpl struct {
	contactRepo repository.CampaignContactRepository
	auditRepo   repository.AuditLogRepository
	vapiClient  services.VapiClient
	tokenSvc    services.WebhookTokenService
	webhookCfg  *config.WebhookConfig
	batchSize   int
	concurrency int
	callTimeout time.Duration
	logger      *log.Logger
}

// NewContactProcessor creates a new contact processor
func NewContactProcessor(
	contactRepo repository.CampaignContactRepository,
	auditRepo repository.AuditLogRepository,
	vapiClient services.VapiClient,
	tokenSvc services.WebhookTokenService,
	webhookCfg *config.WebhookConfig,
	execCfg *config.ExecutionConfig,
	logger *log.Logger,
) ContactProcessor {
	batchSize := execCfg.ContactBatchSize
	if batchSize <= 0 {
		batchSize = utils.ContactBatchSize
	}
	concurrency := execCfg.BatchConcurrency
	if concurrency <= 0 {
		concurrency = 2
	}
	callTimeout := execCfg.ProviderCallTimeout
	if callTimeout <= 0 {
		callTimeout = utils.ProviderCallTimeout
	}
	return &ContactProcessorImpl{
		contactRepo: contactRepo,
		auditRepo:   auditRepo,
		vapiClient:  vapiClient,
		tokenSvc:    tokenSvc,
		webhookCfg:  webhookCfg,
		batchSize:   batchSize,
		concurrency: concurrency,
		callTimeout: callTimeout,
		logger:      logger,
	}
}

// ProcessBatch claims up to one batch of pending contacts and dispatches a
// call for each on the worker pool
func (p *ContactProcessorImpl) ProcessBatch(ctx context.Context, campaign *models.Campaign, apiKey, correlationID string) (*BatchResult, error) {
	contacts, err := p.contactRepo.ClaimPendingBatch(ctx, campaign.ID, p.batchSize)
	if err != nil {
		return nil, TransientError("BATCH_CLAIM_FAILED", err)
	}

	result := &BatchResult{Claimed: len(contacts)}
	if len(contacts) == 0 {
		return result, nil
	}

	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		sem = make(chan struct{}, p.concurrency)
	)

	for _, contact := range contacts {
		wg.Add(1)
		sem <- struct{}{}
		go func(contact *models.CampaignContact) {
			defer wg.Done()
			defer func() { <-sem }()

			dispatchErr := p.dispatchContact(ctx, campaign, contact, apiKey, correlationID)

			mu.Lock()
			defer mu.Unlock()
			if dispatchErr != nil {
				result.Failed++
				middleware.ContactCallsFailed.Inc()
				result.Errors = append(result.Errors, ContactDispatchError{
					ContactID:   contact.ID,
					PhoneNumber: contact.PhoneNumber,
					Message:     dispatchErr.Error(),
				})
			} else {
				result.Dispatched++
				middleware.ContactCallsDispatched.Inc()
			}
		}(contact)
	}
	wg.Wait()

	return result, nil
}

// dispatchContact processes one contact end to end: retry budget check,
// processing transition, token mint, provider call
func (p *ContactProcessorImpl) dispatchContact(ctx context.Context, campaign *models.Campaign, contact *models.CampaignContact, apiKey, correlationID string) error {
	now := utils.UTCNow()

	if contact.RetriesExhausted() {
		if err := p.contactRepo.MarkFailed(ctx, contact.ID, ErrContactRetriesSpent.Error(), now); err != nil {
			p.logger.Printf("contact %d: failed to record exhausted retries: %v", contact.ID, err)
		}
		return fmt.Errorf("contact %d: %w", contact.ID, ErrContactRetriesSpent)
	}

	if err := p.contactRepo.MarkProcessing(ctx, contact.ID, now); err != nil {
		return fmt.Errorf("contact %d: failed to mark processing: %w", contact.ID, err)
	}

	token, err := p.tokenSvc.MintToken(campaign.ID, contact.ID)
	if err != nil {
		p.failContact(ctx, contact.ID, err)
		return fmt.Errorf("contact %d: failed to mint webhook token: %w", contact.ID, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, p.callTimeout)
	defer cancel()

	callReq := services.CallRequest{
		AssistantID:     *campaign.Assistant.VapiAssistantID,
		PhoneNumber:     contact.PhoneNumber,
		CustomerName:    contact.Name,
		ServerURL:       p.callbackURL(p.webhookCfg.EventRoute),
		ServerURLAuth:   token,
		ErrorWebhookURL: p.callbackURL(p.webhookCfg.ErrorRoute),
		Metadata: map[string]string{
			"contactId":     strconv.FormatUint(uint64(contact.ID), 10),
			"campaignId":    strconv.FormatUint(uint64(campaign.ID), 10),
			"correlationId": correlationID,
		},
	}

	resp, err := p.vapiClient.CreateCall(callCtx, apiKey, callReq)
	if err != nil {
		p.failContact(ctx, contact.ID, err)
		return fmt.Errorf("contact %d: call dispatch failed: %w", contact.ID, err)
	}

	p.logger.Printf("campaign %d contact %d: call %s dispatched to %s",
		campaign.ID, contact.ID, resp.ID, contact.PhoneNumber)

	entry := &models.AuditLog{
		CampaignID:  &campaign.ID,
		Action:      models.AuditActionProviderInteraction,
		Description: utils.ToPtr(fmt.Sprintf("call %s dispatched for contact %d", resp.ID, contact.ID)),
		Success:     utils.ToPtr(true),
		RequestID:   utils.ToPtr(correlationID),
	}
	if err := p.auditRepo.Save(ctx, entry); err != nil {
		p.logger.Printf("contact %d: failed to write dispatch audit log: %v", contact.ID, err)
	}

	return nil
}

func (p *ContactProcessorImpl) failContact(ctx context.Context, contactID uint, cause error) {
	if err := p.contactRepo.MarkFailed(ctx, contactID, cause.Error(), utils.UTCNow()); err != nil {
		p.logger.Printf("contact %d: failed to record dispatch failure: %v", contactID, err)
	}
}

func (p *ContactProcessorImpl) callbackURL(route string) string {
	if route == "" {
		return p.webhookCfg.BaseURL
	}
	return strings.TrimSuffix(p.webhookCfg.BaseURL, "/") + route
}
