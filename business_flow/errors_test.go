package business_flow

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyUntypedErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected ErrorCategory
	}{
		{"missing api key", errors.New("VAPI API key not found"), ErrorCategoryConfiguration},
		{"unauthorized", errors.New("request returned 401 unauthorized"), ErrorCategoryConfiguration},
		{"bad assistant", errors.New("assistant asst_1 rejected"), ErrorCategoryConfiguration},
		{"webhook down", errors.New("webhook endpoint returned status 503"), ErrorCategoryConfiguration},
		{"timeout", errors.New("context deadline exceeded"), ErrorCategoryTransient},
		{"connection refused", errors.New("dial tcp: connection refused"), ErrorCategoryTransient},
		{"rate limited", errors.New("429 too many requests"), ErrorCategoryTransient},
		{"no contacts", errors.New("No pending contacts found"), ErrorCategoryResource},
		{"quota", errors.New("monthly quota exceeded"), ErrorCategoryResource},
		{"unknown", errors.New("something inexplicable happened"), ErrorCategoryFatal},
		{"nil", nil, ErrorCategoryTransient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, Classify(tt.err))
		})
	}
}

func TestCategoryOfPrefersTypedCategory(t *testing.T) {
	// The message alone would classify as configuration, but the throw site
	// said transient and the throw site wins
	err := TransientError("KEY_FETCH_TIMEOUT", errors.New("api key lookup timed out"))
	assert.Equal(t, ErrorCategoryTransient, CategoryOf(err))

	// Typed errors keep their category through wrapping
	wrapped := fmt.Errorf("execution aborted: %w", FatalError("BAD_STATE", errors.New("row vanished")))
	assert.Equal(t, ErrorCategoryFatal, CategoryOf(wrapped))
	assert.True(t, IsFatal(wrapped))

	// Untyped errors fall back to message classification
	assert.Equal(t, ErrorCategoryTransient, CategoryOf(errors.New("connection reset by peer")))
}

func TestCampaignErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := ConfigurationError("SOME_CODE", cause)

	assert.True(t, errors.Is(err, cause))
	assert.Contains(t, err.Error(), "root cause")
	assert.Equal(t, "SOME_CODE", err.Code)
}

func TestHandlerMarksCampaignFailedOnFatalError(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	auditRepo := newFakeAuditRepo()
	seedCampaignWithStatus(campaignRepo, models.CampaignStatusExecuting)
	handler := NewExecutionErrorHandler(campaignRepo, auditRepo, testLogger())

	execErr := FatalError("CORRUPT_STATE", errors.New("campaign row vanished mid-run"))
	returned := handler.Handle(context.Background(), testCampaignID, "corr-1", execErr)

	// The original error always comes back to the caller
	assert.Equal(t, execErr, returned)

	assert.Contains(t, campaignRepo.markedFailed, testCampaignID)
	assert.Equal(t, 1, campaignRepo.get(testCampaignID).CurrentRetryCount)

	entries, err := auditRepo.ListByAction(context.Background(), models.AuditActionExecutionFailed, 10, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.NotNil(t, entries[0].RequestID)
	assert.Equal(t, "corr-1", *entries[0].RequestID)
	assert.True(t, entries[0].IsFailed())
}

func TestHandlerLeavesCampaignAloneOnTransientError(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	seedCampaignWithStatus(campaignRepo, models.CampaignStatusReady)
	handler := NewExecutionErrorHandler(campaignRepo, newFakeAuditRepo(), testLogger())

	execErr := TransientError("PROVIDER_TIMEOUT", errors.New("timeout"))
	_ = handler.Handle(context.Background(), testCampaignID, "corr-2", execErr)

	assert.Empty(t, campaignRepo.markedFailed)
	assert.Equal(t, models.CampaignStatusReady, campaignRepo.get(testCampaignID).Status)
}

func TestEscalateMarksCampaignFailedRegardlessOfCategory(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	auditRepo := newFakeAuditRepo()
	seedCampaignWithStatus(campaignRepo, models.CampaignStatusReady)
	handler := NewExecutionErrorHandler(campaignRepo, auditRepo, testLogger())

	// A configuration error would not mark through Handle, but escalation is
	// for definitive outcomes and always records the failure on the campaign
	execErr := ConfigurationError("VAPI_KEY_MISSING", ErrVapiKeyNotFound)
	returned := handler.Escalate(context.Background(), testCampaignID, "corr-4", execErr)

	assert.Equal(t, execErr, returned)
	assert.Contains(t, campaignRepo.markedFailed, testCampaignID)

	campaign := campaignRepo.get(testCampaignID)
	assert.Equal(t, models.CampaignStatusFailedExecution, campaign.Status)
	require.NotNil(t, campaign.ExecutionError)
	assert.Contains(t, *campaign.ExecutionError, "VAPI API key not found")

	entries, err := auditRepo.ListByAction(context.Background(), models.AuditActionExecutionFailed, 10, 0)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestHandlerAuditFailureNeverMasksOriginalError(t *testing.T) {
	campaignRepo := newFakeCampaignRepo()
	auditRepo := newFakeAuditRepo()
	auditRepo.saveErr = errors.New("audit table unavailable")
	seedCampaignWithStatus(campaignRepo, models.CampaignStatusReady)
	handler := NewExecutionErrorHandler(campaignRepo, auditRepo, testLogger())

	execErr := TransientError("PROVIDER_TIMEOUT", errors.New("timeout"))
	returned := handler.Handle(context.Background(), testCampaignID, "corr-3", execErr)

	assert.Equal(t, execErr, returned)
}
