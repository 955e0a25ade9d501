package utils

import (
	"time"
)

// Execution lock constants
const (
	// ExecutionLockTTL is how long a campaign execution lock stays valid before
	// any subsequent attempt may reclaim it
	ExecutionLockTTL = 5 * time.Minute

	// LockMaxAttempts is the number of lock acquisition attempts before failing
	LockMaxAttempts = 3

	// LockRetryBackoff is the linear backoff unit between lock attempts
	LockRetryBackoff = 1 * time.Second
)

// Validation constants
const (
	// ValidationMaxAttempts is the number of configuration validation attempts
	ValidationMaxAttempts = 3

	// ValidationRetryBackoff is the linear backoff unit between validation attempts
	ValidationRetryBackoff = 3 * time.Second
)

// Circuit breaker constants
const (
	// BreakerMaxFailures is the failure count at which the breaker opens
	BreakerMaxFailures = 3

	// BreakerCooldown is how long an open breaker blocks execution
	BreakerCooldown = 15 * time.Minute
)

// Contact processing constants
const (
	// ContactBatchSize is the number of pending contacts dispatched per execution
	ContactBatchSize = 5

	// ContactMaxRetries is the per-contact retry budget before it is failed outright
	ContactMaxRetries = 3

	// ProviderCallTimeout bounds every outbound voice provider HTTP call
	ProviderCallTimeout = 30 * time.Second
)

// Webhook constants
const (
	// WebhookTokenTTL is the lifetime of the callback auth token minted per call
	WebhookTokenTTL = 24 * time.Hour

	// WebhookDedupTTL is how long processed webhook event keys are remembered
	WebhookDedupTTL = 6 * time.Hour
)
