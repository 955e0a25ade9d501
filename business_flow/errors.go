// Package business_flow contains the campaign execution engine and its
// supporting flows
package business_flow

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
)

// ErrorCategory partitions execution failures by how they should be handled
type ErrorCategory string

const (
	// ErrorCategoryConfiguration covers missing keys, invalid assistants and
	// unreachable webhooks; retrying without operator action is pointless
	ErrorCategoryConfiguration ErrorCategory = "CONFIGURATION"

	// ErrorCategoryTransient covers timeouts and rate limits; safe to retry
	ErrorCategoryTransient ErrorCategory = "TRANSIENT"

	// ErrorCategoryResource covers lock and quota contention and exhausted
	// inputs such as no pending contacts; expected to clear on a later attempt
	ErrorCategoryResource ErrorCategory = "RESOURCE"

	// ErrorCategoryFatal covers everything that must stop the campaign
	ErrorCategoryFatal ErrorCategory = "FATAL"
)

// Validation failure messages surfaced to operators. The strings are stable
// because downstream tooling matches on them.
var (
	ErrVapiKeyNotFound       = errors.New("VAPI API key not found")
	ErrInvalidAssistant      = errors.New("Invalid assistant configuration")
	ErrWebhookValidation     = errors.New("Webhook endpoints validation failed")
	ErrNoPendingContacts     = errors.New("No pending contacts found")
	ErrContactRetriesSpent   = errors.New("Maximum retry attempts reached")
	ErrCampaignNotFound      = errors.New("campaign not found")
	ErrCampaignNotReady      = errors.New("campaign is not in an executable state")
	ErrExecutionLockHeld     = errors.New("campaign execution lock is held by another worker")
	ErrCircuitBreakerOpen    = errors.New("circuit breaker is open for campaign")
	ErrInvalidTransition     = errors.New("invalid campaign status transition")
	ErrAssistantNotFound     = errors.New("assistant not found")
	ErrAssistantUnregistered = errors.New("assistant has no provider identifier")
)

// CampaignError is an execution failure carrying its handling category. Errors
// are categorized where they are raised; Classify exists only for errors that
// arrive untyped from third-party clients.
type CampaignError struct {
	Category ErrorCategory
	Code     string
	Message  string
	Err      error
}

func (e *CampaignError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *CampaignError) Unwrap() error {
	return e.Err
}

// NewCampaignError creates a categorized campaign error
func NewCampaignError(category ErrorCategory, code, message string, err error) *CampaignError {
	return &CampaignError{
		Category: category,
		Code:     code,
		Message:  message,
		Err:      err,
	}
}

// ConfigurationError creates a CONFIGURATION-category error
func ConfigurationError(code string, err error) *CampaignError {
	return NewCampaignError(ErrorCategoryConfiguration, code, err.Error(), err)
}

// TransientError creates a TRANSIENT-category error
func TransientError(code string, err error) *CampaignError {
	return NewCampaignError(ErrorCategoryTransient, code, err.Error(), err)
}

// ResourceError creates a RESOURCE-category error
func ResourceError(code string, err error) *CampaignError {
	return NewCampaignError(ErrorCategoryResource, code, err.Error(), err)
}

// FatalError creates a FATAL-category error
func FatalError(code string, err error) *CampaignError {
	return NewCampaignError(ErrorCategoryFatal, code, err.Error(), err)
}

// CategoryOf returns the category of an error. Typed errors report their own
// category; untyped errors fall back to substring classification.
func CategoryOf(err error) ErrorCategory {
	var cerr *CampaignError
	if errors.As(err, &cerr) {
		return cerr.Category
	}
	return Classify(err)
}

// Classify maps an untyped error to a category by message inspection. It is
// the fallback for errors produced outside this package.
func Classify(err error) ErrorCategory {
	if err == nil {
		return ErrorCategoryTransient
	}

	msg := strings.ToLower(err.Error())
	switch {
	case strings.Contains(msg, "api key"),
		strings.Contains(msg, "unauthorized"),
		strings.Contains(msg, "forbidden"),
		strings.Contains(msg, "assistant"),
		strings.Contains(msg, "webhook"):
		return ErrorCategoryConfiguration
	case strings.Contains(msg, "timeout"),
		strings.Contains(msg, "deadline exceeded"),
		strings.Contains(msg, "connection refused"),
		strings.Contains(msg, "connection reset"),
		strings.Contains(msg, "rate limit"),
		strings.Contains(msg, "too many requests"),
		strings.Contains(msg, "temporarily unavailable"):
		return ErrorCategoryTransient
	case strings.Contains(msg, "no pending contacts"),
		strings.Contains(msg, "quota"),
		strings.Contains(msg, "insufficient"):
		return ErrorCategoryResource
	default:
		return ErrorCategoryFatal
	}
}

// IsFatal reports whether an error must terminate the campaign
func IsFatal(err error) bool {
	return CategoryOf(err) == ErrorCategoryFatal
}

// ExecutionErrorHandler records execution failures to the audit trail and
// flags campaigns on fatal errors. Audit writes are best effort; a failure to
// log never masks the original execution error.
type ExecutionErrorHandler struct {
	campaignRepo repository.CampaignRepository
	auditRepo    repository.AuditLogRepository
	logger       *log.Logger
}

// NewExecutionErrorHandler creates a new execution error handler
func NewExecutionErrorHandler(
	campaignRepo repository.CampaignRepository,
	auditRepo repository.AuditLogRepository,
	logger *log.Logger,
) *ExecutionErrorHandler {
	return &ExecutionErrorHandler{
		campaignRepo: campaignRepo,
		auditRepo:    auditRepo,
		logger:       logger,
	}
}

// Handle records the failure and, for fatal errors, marks the campaign as
// failed. The returned error is always execErr so callers can propagate it.
func (h *ExecutionErrorHandler) Handle(ctx context.Context, campaignID uint, correlationID string, execErr error) error {
	category := h.record(ctx, campaignID, correlationID, execErr)

	if category == ErrorCategoryFatal {
		h.markFailed(ctx, campaignID, execErr)
	}

	return execErr
}

// Escalate records a definitive failure of the execution protocol and drives
// the campaign to failed_execution with execution_error set, regardless of
// category. Contention outcomes such as a held lock or an open breaker go
// through Handle instead so the next trigger can still run the campaign.
func (h *ExecutionErrorHandler) Escalate(ctx context.Context, campaignID uint, correlationID string, execErr error) error {
	h.record(ctx, campaignID, correlationID, execErr)
	h.markFailed(ctx, campaignID, execErr)
	return execErr
}

func (h *ExecutionErrorHandler) record(ctx context.Context, campaignID uint, correlationID string, execErr error) ErrorCategory {
	category := CategoryOf(execErr)

	h.logger.Printf("campaign %d execution error [%s] correlation=%s: %v",
		campaignID, category, correlationID, execErr)

	entry := &models.AuditLog{
		CampaignID:   &campaignID,
		Action:       models.AuditActionExecutionFailed,
		Description:  utils.ToPtr(fmt.Sprintf("[%s] %v", category, execErr)),
		Success:      utils.ToPtr(false),
		ErrorMessage: utils.ToPtr(execErr.Error()),
		RequestID:    &correlationID,
	}
	if err := h.auditRepo.Save(ctx, entry); err != nil {
		h.logger.Printf("campaign %d: failed to write audit log: %v", campaignID, err)
	}

	return category
}

func (h *ExecutionErrorHandler) markFailed(ctx context.Context, campaignID uint, execErr error) {
	if err := h.campaignRepo.MarkExecutionFailed(ctx, campaignID, execErr.Error()); err != nil {
		h.logger.Printf("campaign %d: failed to record terminal execution error: %v", campaignID, err)
	}
}
