package business_flow

import (
	"context"
	"errors"
	"testing"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedCampaignWithStatus(repo *fakeCampaignRepo, status models.CampaignStatus) *models.Campaign {
	campaign := &models.Campaign{
		ID:     testCampaignID,
		UUID:   uuid.New(),
		UserID: testUserID,
		Name:   "lifecycle",
		Status: status,
	}
	repo.put(campaign)
	return campaign
}

func TestTransitionFollowsLifecycleGraph(t *testing.T) {
	tests := []struct {
		name    string
		from    models.CampaignStatus
		to      models.CampaignStatus
		allowed bool
	}{
		{"draft to validating", models.CampaignStatusDraft, models.CampaignStatusValidating, true},
		{"draft to failed validation", models.CampaignStatusDraft, models.CampaignStatusFailedValidation, true},
		{"draft to executing", models.CampaignStatusDraft, models.CampaignStatusExecuting, false},
		{"validating to ready", models.CampaignStatusValidating, models.CampaignStatusReady, true},
		{"validating to executing", models.CampaignStatusValidating, models.CampaignStatusExecuting, false},
		{"ready to executing", models.CampaignStatusReady, models.CampaignStatusExecuting, true},
		{"executing to ready", models.CampaignStatusExecuting, models.CampaignStatusReady, true},
		{"executing to failed execution", models.CampaignStatusExecuting, models.CampaignStatusFailedExecution, true},
		{"failed validation to draft", models.CampaignStatusFailedValidation, models.CampaignStatusDraft, true},
		{"failed execution to ready", models.CampaignStatusFailedExecution, models.CampaignStatusReady, true},
		{"failed execution to executing", models.CampaignStatusFailedExecution, models.CampaignStatusExecuting, true},
		{"ready to draft", models.CampaignStatusReady, models.CampaignStatusDraft, false},
		{"completed is terminal", models.CampaignStatusCompleted, models.CampaignStatusReady, false},
		{"cancelled is terminal", models.CampaignStatusCancelled, models.CampaignStatusDraft, false},
		{"nothing enters completed", models.CampaignStatusExecuting, models.CampaignStatusCompleted, false},
		{"nothing enters cancelled", models.CampaignStatusReady, models.CampaignStatusCancelled, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := newFakeCampaignRepo()
			seedCampaignWithStatus(repo, tt.from)
			manager := NewStateManager(repo, testLogger())

			err := manager.Transition(context.Background(), testCampaignID, tt.from, tt.to, nil)
			if tt.allowed {
				require.NoError(t, err)
				assert.Equal(t, tt.to, repo.get(testCampaignID).Status)
			} else {
				require.Error(t, err)
				assert.True(t, errors.Is(err, ErrInvalidTransition))
				assert.Equal(t, ErrorCategoryConfiguration, CategoryOf(err))
				assert.Equal(t, tt.from, repo.get(testCampaignID).Status)
			}
		})
	}
}

func TestTransitionDetectsConcurrentChange(t *testing.T) {
	repo := newFakeCampaignRepo()
	seedCampaignWithStatus(repo, models.CampaignStatusExecuting)
	manager := NewStateManager(repo, testLogger())

	// The in-memory view says ready but another worker already moved the row
	err := manager.Transition(context.Background(), testCampaignID, models.CampaignStatusReady, models.CampaignStatusExecuting, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidTransition))

	var cerr *CampaignError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, ErrorCategoryTransient, cerr.Category)
	assert.Equal(t, "TRANSITION_CONFLICT", cerr.Code)
}

func TestTransitionCampaignUpdatesStruct(t *testing.T) {
	repo := newFakeCampaignRepo()
	campaign := seedCampaignWithStatus(repo, models.CampaignStatusReady)
	manager := NewStateManager(repo, testLogger())

	require.NoError(t, manager.TransitionCampaign(context.Background(), campaign, models.CampaignStatusExecuting, nil))
	assert.Equal(t, models.CampaignStatusExecuting, campaign.Status)
	assert.Equal(t, models.CampaignStatusExecuting, repo.get(testCampaignID).Status)

	// A failed transition leaves the struct untouched
	err := manager.TransitionCampaign(context.Background(), campaign, models.CampaignStatusDraft, nil)
	require.Error(t, err)
	assert.Equal(t, models.CampaignStatusExecuting, campaign.Status)
}
