package business_flow

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBreaker(repo *fakeBreakerRepo, audit *fakeAuditRepo, cooldown time.Duration) CircuitBreaker {
	cfg := &config.ExecutionConfig{
		BreakerMaxFailures: 3,
		BreakerCooldown:    cooldown,
	}
	return NewCircuitBreaker(repo, audit, cfg, testLogger())
}

func TestBreakerOpensAtFailureThreshold(t *testing.T) {
	repo := newFakeBreakerRepo()
	audit := newFakeAuditRepo()
	breaker := newTestBreaker(repo, audit, time.Minute)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, testCampaignID, errors.New("provider timeout")))

		status, err := breaker.Check(ctx, testCampaignID)
		require.NoError(t, err)
		assert.False(t, status.Open, "breaker must stay closed below the threshold")
	}

	require.NoError(t, breaker.RecordFailure(ctx, testCampaignID, errors.New("provider timeout")))

	status, err := breaker.Check(ctx, testCampaignID)
	require.NoError(t, err)
	assert.True(t, status.Open)
	assert.Equal(t, 3, status.FailureCount)
	assert.Greater(t, status.CooldownRemaining, time.Duration(0))

	assert.Contains(t, audit.actions(), models.AuditActionCircuitBreakerOpened)
}

func TestBreakerHalfOpenAdmitsButKeepsCounters(t *testing.T) {
	repo := newFakeBreakerRepo()
	breaker := newTestBreaker(repo, newFakeAuditRepo(), 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, testCampaignID, errors.New("boom")))
	}

	status, err := breaker.Check(ctx, testCampaignID)
	require.NoError(t, err)
	require.True(t, status.Open)

	time.Sleep(20 * time.Millisecond)

	// Cooldown expiry admits traffic but the failure history survives
	status, err = breaker.Check(ctx, testCampaignID)
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, 3, status.FailureCount)
}

func TestBreakerReopensOnHalfOpenFailure(t *testing.T) {
	repo := newFakeBreakerRepo()
	breaker := newTestBreaker(repo, newFakeAuditRepo(), 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, testCampaignID, errors.New("boom")))
	}
	time.Sleep(20 * time.Millisecond)

	// The probe execution fails: one more failure re-arms a fresh cooldown
	require.NoError(t, breaker.RecordFailure(ctx, testCampaignID, errors.New("still broken")))

	status, err := breaker.Check(ctx, testCampaignID)
	require.NoError(t, err)
	assert.True(t, status.Open)
	assert.Equal(t, 4, status.FailureCount)
}

func TestBreakerSuccessClearsState(t *testing.T) {
	repo := newFakeBreakerRepo()
	breaker := newTestBreaker(repo, newFakeAuditRepo(), 10*time.Millisecond)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, breaker.RecordFailure(ctx, testCampaignID, errors.New("boom")))
	}
	time.Sleep(20 * time.Millisecond)

	require.NoError(t, breaker.RecordSuccess(ctx, testCampaignID))

	status, err := breaker.Check(ctx, testCampaignID)
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, 0, status.FailureCount)
	assert.Equal(t, time.Duration(0), status.CooldownRemaining)
}

func TestBreakerFailsClosedWhenStateUnreadable(t *testing.T) {
	repo := newFakeBreakerRepo()
	repo.readErr = errors.New("connection refused")
	breaker := newTestBreaker(repo, newFakeAuditRepo(), time.Minute)

	status, err := breaker.Check(context.Background(), testCampaignID)
	require.NoError(t, err)
	assert.True(t, status.Open)
	assert.Equal(t, float64(1), status.FailureRate)
}

func TestBreakerNoStateMeansClosed(t *testing.T) {
	breaker := newTestBreaker(newFakeBreakerRepo(), newFakeAuditRepo(), time.Minute)

	status, err := breaker.Check(context.Background(), testCampaignID)
	require.NoError(t, err)
	assert.False(t, status.Open)
	assert.Equal(t, 0, status.FailureCount)
	assert.Equal(t, float64(1), status.RecoveryProgress)
}

func TestBreakerStateMath(t *testing.T) {
	now := utils.UTCNow()

	t.Run("FailureRate", func(t *testing.T) {
		state := &models.CircuitBreakerState{FailureCount: 3, SuccessCount: 1}
		assert.InDelta(t, 0.75, state.FailureRate(), 0.001)

		empty := &models.CircuitBreakerState{}
		assert.Equal(t, float64(0), empty.FailureRate())
	})

	t.Run("RecoveryProgress", func(t *testing.T) {
		halfway := now.Add(utils.BreakerCooldown / 2)
		state := &models.CircuitBreakerState{CooldownUntil: &halfway}
		assert.InDelta(t, 0.5, state.RecoveryProgress(now), 0.01)

		closed := &models.CircuitBreakerState{}
		assert.Equal(t, float64(1), closed.RecoveryProgress(now))
	})
}
