package business_flow

import (
	"context"
	"errors"
	"strconv"
	"testing"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCorrelationID = "5f0c6b7a-2e64-4d9c-9a41-0c2f6f0e8b31"

func TestProcessBatchDispatchesUpToBatchSize(t *testing.T) {
	f := newFlowFixture()
	campaign := f.seedReadyCampaign(8)

	result, err := f.processor.ProcessBatch(context.Background(), campaign, "sk-test-key", testCorrelationID)
	require.NoError(t, err)

	assert.Equal(t, 5, result.Claimed)
	assert.Equal(t, 5, result.Dispatched)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, 5, f.vapi.CreatedCallCount())

	remaining, err := f.contactRepo.CountPending(context.Background(), testCampaignID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), remaining)
}

func TestProcessBatchEmptyCampaign(t *testing.T) {
	f := newFlowFixture()
	campaign := f.seedReadyCampaign(0)

	result, err := f.processor.ProcessBatch(context.Background(), campaign, "sk-test-key", testCorrelationID)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Claimed)
	assert.Equal(t, 0, f.vapi.CreatedCallCount())
}

func TestProcessBatchOneFailureDoesNotAbortTheRest(t *testing.T) {
	f := newFlowFixture()
	campaign := f.seedReadyCampaign(4)

	f.vapi.FailCallFor[f.contactRepo.get(3).PhoneNumber] = errors.New("carrier rejected")

	result, err := f.processor.ProcessBatch(context.Background(), campaign, "sk-test-key", testCorrelationID)
	require.NoError(t, err)

	assert.Equal(t, 4, result.Claimed)
	assert.Equal(t, 3, result.Dispatched)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, uint(3), result.Errors[0].ContactID)

	failed := f.contactRepo.get(3)
	assert.Equal(t, models.ContactStatusFailed, failed.Status)
	require.NotNil(t, failed.LastError)
	assert.Contains(t, *failed.LastError, "carrier rejected")
}

func TestProcessBatchSkipsContactsWithExhaustedRetries(t *testing.T) {
	f := newFlowFixture()
	campaign := f.seedReadyCampaign(2)

	spent := f.contactRepo.get(1)
	spent.RetryCount = 3
	f.contactRepo.put(spent)

	result, err := f.processor.ProcessBatch(context.Background(), campaign, "sk-test-key", testCorrelationID)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Claimed)
	assert.Equal(t, 1, result.Dispatched)
	assert.Equal(t, 1, result.Failed)

	// The spent contact is failed outright without touching the provider
	assert.Equal(t, 1, f.vapi.CreatedCallCount())
	exhausted := f.contactRepo.get(1)
	assert.Equal(t, models.ContactStatusFailed, exhausted.Status)
	require.NotNil(t, exhausted.LastError)
	assert.Equal(t, "Maximum retry attempts reached", *exhausted.LastError)
}

func TestProcessBatchCallCarriesCallbackAndMetadata(t *testing.T) {
	f := newFlowFixture()
	campaign := f.seedReadyCampaign(1)

	_, err := f.processor.ProcessBatch(context.Background(), campaign, "sk-test-key", testCorrelationID)
	require.NoError(t, err)
	require.Len(t, f.vapi.CreatedCalls, 1)

	call := f.vapi.CreatedCalls[0]
	assert.Equal(t, "asst_test_1", call.AssistantID)
	assert.Equal(t, "https://hooks.example.com/api/v1/webhooks/vapi", call.ServerURL)
	assert.Equal(t, "https://hooks.example.com/api/v1/webhooks/vapi-error", call.ErrorWebhookURL)
	assert.NotEmpty(t, call.ServerURLAuth)

	// The identifiers round-trip through provider metadata back to the webhook
	assert.Equal(t, strconv.Itoa(int(testCampaignID)), call.Metadata["campaignId"])
	assert.Equal(t, "1", call.Metadata["contactId"])
	assert.Equal(t, testCorrelationID, call.Metadata["correlationId"])

	// The per-call token is scoped to exactly this contact
	claims, err := newTestTokenService().ValidateToken(call.ServerURLAuth)
	require.NoError(t, err)
	assert.Equal(t, testCampaignID, claims.CampaignID)
	assert.Equal(t, uint(1), claims.ContactID)

	contact := f.contactRepo.get(1)
	assert.Equal(t, models.ContactStatusProcessing, contact.Status)
	assert.NotNil(t, contact.CallStartedAt)
}

func TestProcessBatchClaimErrorIsTransient(t *testing.T) {
	f := newFlowFixture()
	campaign := f.seedReadyCampaign(2)
	f.contactRepo.claimErr = errors.New("deadlock detected")

	_, err := f.processor.ProcessBatch(context.Background(), campaign, "sk-test-key", testCorrelationID)
	require.Error(t, err)

	var cerr *CampaignError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrorCategoryTransient, cerr.Category)
	assert.Equal(t, "BATCH_CLAIM_FAILED", cerr.Code)
}
