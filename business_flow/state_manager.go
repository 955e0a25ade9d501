package business_flow

import (
	"context"
	"fmt"
	"log"

	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
)

// StateManager performs guarded campaign status transitions. Every transition
// is checked against the lifecycle graph and applied with a conditional update
// so a row changed by a concurrent worker is never overwritten blindly.
type StateManager interface {
	Transition(ctx context.Context, campaignID uint, from, to models.CampaignStatus, fields map[string]any) error
	TransitionCampaign(ctx context.Context, campaign *models.Campaign, to models.CampaignStatus, fields map[string]any) error
}

// StateManagerImpl implements StateManager
type StateManagerImpl struct {
	campaignRepo repository.CampaignRepository
	logger       *log.Logger
}

// NewStateManager creates a new campaign state manager
func NewStateManager(campaignRepo repository.CampaignRepository, logger *log.Logger) StateManager {
	return &StateManagerImpl{
		campaignRepo: campaignRepo,
		logger:       logger,
	}
}

// Transition moves a campaign from one status to another, writing any
// auxiliary fields in the same statement
func (m *StateManagerImpl) Transition(ctx context.Context, campaignID uint, from, to models.CampaignStatus, fields map[string]any) error {
	if !transitionAllowed(from, to) {
		return NewCampaignError(ErrorCategoryConfiguration, "INVALID_TRANSITION",
			fmt.Sprintf("cannot transition campaign %d from %s to %s", campaignID, from, to),
			ErrInvalidTransition)
	}

	ok, err := m.campaignRepo.UpdateStatusGuarded(ctx, campaignID, from, to, fields)
	if err != nil {
		return TransientError("TRANSITION_FAILED", err)
	}
	if !ok {
		return NewCampaignError(ErrorCategoryTransient, "TRANSITION_CONFLICT",
			fmt.Sprintf("campaign %d left status %s before transition to %s applied", campaignID, from, to),
			ErrInvalidTransition)
	}

	m.logger.Printf("campaign %d: %s -> %s", campaignID, from, to)
	return nil
}

// TransitionCampaign transitions using the in-memory campaign's current status
// as the guard and updates the struct on success
func (m *StateManagerImpl) TransitionCampaign(ctx context.Context, campaign *models.Campaign, to models.CampaignStatus, fields map[string]any) error {
	if err := m.Transition(ctx, campaign.ID, campaign.Status, to, fields); err != nil {
		return err
	}
	campaign.Status = to
	return nil
}

func transitionAllowed(from, to models.CampaignStatus) bool {
	c := models.Campaign{Status: from}
	return c.CanTransitionTo(to)
}
