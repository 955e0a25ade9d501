package business_flow

import (
	"context"
	"fmt"
	"io"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/aproductiontitle/capi-public/app/services"
	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/utils"
	"github.com/google/uuid"
)

// In-memory repository fakes. Lock and status operations take the same
// conditional form as the SQL implementations so concurrency tests exercise
// the real protocol.

type fakeCampaignRepo struct {
	mu        sync.Mutex
	campaigns map[uint]*models.Campaign

	markedFailed map[uint]string
	acquireErr   error
	updateErr    error
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{
		campaigns:    make(map[uint]*models.Campaign),
		markedFailed: make(map[uint]string),
	}
}

func (r *fakeCampaignRepo) put(c *models.Campaign) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.campaigns[c.ID] = &cp
}

func (r *fakeCampaignRepo) get(id uint) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.campaigns[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	return r.get(id), nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, raw string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.campaigns {
		if c.UUID.String() == raw {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	return nil, nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.put(c)
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		r.put(c)
	}
	return nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	return int64(len(r.campaigns)), nil
}

func (r *fakeCampaignRepo) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	return len(r.campaigns) > 0, nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	r.put(c)
	return nil
}

func (r *fakeCampaignRepo) AcquireExecutionLock(ctx context.Context, campaignID uint, lockID uuid.UUID, lockTTL time.Duration) (bool, error) {
	if r.acquireErr != nil {
		return false, r.acquireErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[campaignID]
	if !ok {
		return false, nil
	}

	now := utils.UTCNow()
	free := c.ExecutionLockID == nil || c.ExecutionLockTime == nil
	stale := !free && now.Sub(*c.ExecutionLockTime) >= lockTTL
	if !free && !stale {
		return false, nil
	}

	c.ExecutionLockID = &lockID
	c.ExecutionLockTime = &now
	return true, nil
}

func (r *fakeCampaignRepo) ReleaseExecutionLock(ctx context.Context, campaignID uint, lockID uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[campaignID]
	if !ok {
		return nil
	}
	if c.ExecutionLockID != nil && *c.ExecutionLockID == lockID {
		c.ExecutionLockID = nil
		c.ExecutionLockTime = nil
	}
	return nil
}

func (r *fakeCampaignRepo) UpdateStatusGuarded(ctx context.Context, campaignID uint, from, to models.CampaignStatus, fields map[string]any) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.campaigns[campaignID]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) UpdateValidationState(ctx context.Context, c *models.Campaign) error {
	if r.updateErr != nil {
		return r.updateErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.campaigns[c.ID]
	if !ok {
		return nil
	}
	stored.ValidationAttempts = c.ValidationAttempts
	stored.LastValidationError = c.LastValidationError
	stored.LastValidationTime = c.LastValidationTime
	stored.VapiConfigValidated = c.VapiConfigValidated
	return nil
}

func (r *fakeCampaignRepo) MarkExecutionFailed(ctx context.Context, campaignID uint, execErr string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.markedFailed[campaignID] = execErr
	if c, ok := r.campaigns[campaignID]; ok {
		c.Status = models.CampaignStatusFailedExecution
		c.ExecutionError = utils.ToPtr(execErr)
		c.CurrentRetryCount++
	}
	return nil
}

func (r *fakeCampaignRepo) ListDue(ctx context.Context, status models.CampaignStatus, now time.Time, limit int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var due []*models.Campaign
	for _, c := range r.campaigns {
		if c.Status == status && c.IsDue(now) {
			cp := *c
			due = append(due, &cp)
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].ID < due[j].ID })
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

type fakeContactRepo struct {
	mu       sync.Mutex
	contacts map[uint]*models.CampaignContact

	claimErr error
	countErr error
}

func newFakeContactRepo() *fakeContactRepo {
	return &fakeContactRepo{contacts: make(map[uint]*models.CampaignContact)}
}

func (r *fakeContactRepo) put(c *models.CampaignContact) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *c
	r.contacts[c.ID] = &cp
}

func (r *fakeContactRepo) get(id uint) *models.CampaignContact {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.contacts[id]
	if !ok {
		return nil
	}
	cp := *c
	return &cp
}

func (r *fakeContactRepo) ByID(ctx context.Context, id uint) (*models.CampaignContact, error) {
	return r.get(id), nil
}

func (r *fakeContactRepo) ByFilter(ctx context.Context, filter models.CampaignContactFilter, orderBy string, limit, offset int) ([]*models.CampaignContact, error) {
	return nil, nil
}

func (r *fakeContactRepo) Save(ctx context.Context, c *models.CampaignContact) error {
	r.put(c)
	return nil
}

func (r *fakeContactRepo) SaveBatch(ctx context.Context, cs []*models.CampaignContact) error {
	for _, c := range cs {
		r.put(c)
	}
	return nil
}

func (r *fakeContactRepo) Count(ctx context.Context, filter models.CampaignContactFilter) (int64, error) {
	return int64(len(r.contacts)), nil
}

func (r *fakeContactRepo) Exists(ctx context.Context, filter models.CampaignContactFilter) (bool, error) {
	return len(r.contacts) > 0, nil
}

func (r *fakeContactRepo) Update(ctx context.Context, c *models.CampaignContact) error {
	r.put(c)
	return nil
}

func (r *fakeContactRepo) ClaimPendingBatch(ctx context.Context, campaignID uint, batchSize int) ([]*models.CampaignContact, error) {
	if r.claimErr != nil {
		return nil, r.claimErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var pending []*models.CampaignContact
	for _, c := range r.contacts {
		if c.CampaignID == campaignID && c.Status == models.ContactStatusPending {
			cp := *c
			pending = append(pending, &cp)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].ID < pending[j].ID })
	if len(pending) > batchSize {
		pending = pending[:batchSize]
	}
	return pending, nil
}

func (r *fakeContactRepo) CountPending(ctx context.Context, campaignID uint) (int64, error) {
	if r.countErr != nil {
		return 0, r.countErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, c := range r.contacts {
		if c.CampaignID == campaignID && c.Status == models.ContactStatusPending {
			n++
		}
	}
	return n, nil
}

func (r *fakeContactRepo) StatusCounts(ctx context.Context, campaignID uint) (*models.ContactStatusCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := &models.ContactStatusCounts{}
	for _, c := range r.contacts {
		if c.CampaignID != campaignID {
			continue
		}
		counts.Total++
		switch c.Status {
		case models.ContactStatusPending:
			counts.Pending++
		case models.ContactStatusProcessing:
			counts.Processing++
		case models.ContactStatusCompleted:
			counts.Completed++
		case models.ContactStatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

func (r *fakeContactRepo) MarkProcessing(ctx context.Context, contactID uint, startedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contacts[contactID]; ok {
		c.Status = models.ContactStatusProcessing
		c.CallStartedAt = &startedAt
	}
	return nil
}

func (r *fakeContactRepo) MarkFailed(ctx context.Context, contactID uint, lastError string, endedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contacts[contactID]; ok {
		c.Status = models.ContactStatusFailed
		c.LastError = utils.ToPtr(lastError)
		c.RetryCount++
		c.CallEndedAt = &endedAt
	}
	return nil
}

func (r *fakeContactRepo) MarkCompleted(ctx context.Context, contactID uint, endedAt time.Time, duration *int, transcript *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contacts[contactID]; ok {
		c.Status = models.ContactStatusCompleted
		c.CallEndedAt = &endedAt
		c.CallDuration = duration
		if transcript != nil {
			c.Transcript = transcript
		}
	}
	return nil
}

func (r *fakeContactRepo) UpdateTranscript(ctx context.Context, contactID uint, transcript string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.contacts[contactID]; ok {
		c.Transcript = utils.ToPtr(transcript)
	}
	return nil
}

type fakeBreakerRepo struct {
	mu     sync.Mutex
	states map[uint]*models.CircuitBreakerState

	readErr  error
	writeErr error
}

func newFakeBreakerRepo() *fakeBreakerRepo {
	return &fakeBreakerRepo{states: make(map[uint]*models.CircuitBreakerState)}
}

func (r *fakeBreakerRepo) put(s *models.CircuitBreakerState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.states[s.CampaignID] = &cp
}

func (r *fakeBreakerRepo) ByCampaignID(ctx context.Context, campaignID uint) (*models.CircuitBreakerState, error) {
	if r.readErr != nil {
		return nil, r.readErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[campaignID]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeBreakerRepo) RecordFailure(ctx context.Context, campaignID uint, errMsg string, maxFailures int, cooldown time.Duration) (*models.CircuitBreakerState, error) {
	if r.writeErr != nil {
		return nil, r.writeErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[campaignID]
	if !ok {
		s = &models.CircuitBreakerState{CampaignID: campaignID}
		r.states[campaignID] = s
	}

	now := utils.UTCNow()
	s.FailureCount++
	s.LastFailure = &now
	s.LastError = utils.ToPtr(errMsg)
	if s.FailureCount >= maxFailures {
		until := now.Add(cooldown)
		s.CooldownUntil = &until
	}

	cp := *s
	return &cp, nil
}

func (r *fakeBreakerRepo) RecordSuccess(ctx context.Context, campaignID uint) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.states[campaignID]
	if !ok {
		return nil
	}

	now := utils.UTCNow()
	s.FailureCount = 0
	s.SuccessCount++
	s.LastSuccess = &now
	s.CooldownUntil = nil
	return nil
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []*models.ExecutionAttempt
}

func newFakeAttemptRepo() *fakeAttemptRepo {
	return &fakeAttemptRepo{}
}

func (r *fakeAttemptRepo) ByID(ctx context.Context, id uint) (*models.ExecutionAttempt, error) {
	return nil, nil
}

func (r *fakeAttemptRepo) ByFilter(ctx context.Context, filter models.ExecutionAttemptFilter, orderBy string, limit, offset int) ([]*models.ExecutionAttempt, error) {
	return nil, nil
}

func (r *fakeAttemptRepo) Save(ctx context.Context, a *models.ExecutionAttempt) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	a.ID = uint(len(r.attempts) + 1)
	cp := *a
	r.attempts = append(r.attempts, &cp)
	return nil
}

func (r *fakeAttemptRepo) SaveBatch(ctx context.Context, as []*models.ExecutionAttempt) error {
	for _, a := range as {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAttemptRepo) Count(ctx context.Context, filter models.ExecutionAttemptFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.attempts)), nil
}

func (r *fakeAttemptRepo) Exists(ctx context.Context, filter models.ExecutionAttemptFilter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.attempts) > 0, nil
}

func (r *fakeAttemptRepo) CountsByCampaign(ctx context.Context, campaignID uint) (*models.AttemptCounts, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	counts := &models.AttemptCounts{}
	for _, a := range r.attempts {
		if a.CampaignID != campaignID {
			continue
		}
		counts.Total++
		switch a.Status {
		case models.AttemptStatusCompleted:
			counts.Completed++
		case models.AttemptStatusFailed:
			counts.Failed++
		}
	}
	return counts, nil
}

func (r *fakeAttemptRepo) Latest(ctx context.Context, campaignID uint) (*models.ExecutionAttempt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := len(r.attempts) - 1; i >= 0; i-- {
		if r.attempts[i].CampaignID == campaignID {
			cp := *r.attempts[i]
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeAttemptRepo) all(campaignID uint) []*models.ExecutionAttempt {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.ExecutionAttempt
	for _, a := range r.attempts {
		if a.CampaignID == campaignID {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out
}

type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []*models.AuditLog

	saveErr error
}

func newFakeAuditRepo() *fakeAuditRepo {
	return &fakeAuditRepo{}
}

func (r *fakeAuditRepo) ByID(ctx context.Context, id uint) (*models.AuditLog, error) {
	return nil, nil
}

func (r *fakeAuditRepo) ByFilter(ctx context.Context, filter models.AuditLogFilter, orderBy string, limit, offset int) ([]*models.AuditLog, error) {
	return nil, nil
}

func (r *fakeAuditRepo) Save(ctx context.Context, e *models.AuditLog) error {
	if r.saveErr != nil {
		return r.saveErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	e.ID = uint(len(r.entries) + 1)
	cp := *e
	r.entries = append(r.entries, &cp)
	return nil
}

func (r *fakeAuditRepo) SaveBatch(ctx context.Context, es []*models.AuditLog) error {
	for _, e := range es {
		if err := r.Save(ctx, e); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAuditRepo) Count(ctx context.Context, filter models.AuditLogFilter) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.entries)), nil
}

func (r *fakeAuditRepo) Exists(ctx context.Context, filter models.AuditLogFilter) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries) > 0, nil
}

func (r *fakeAuditRepo) ListByCampaign(ctx context.Context, campaignID uint, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.CampaignID != nil && *e.CampaignID == campaignID {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) ListByAction(ctx context.Context, action string, limit, offset int) ([]*models.AuditLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []*models.AuditLog
	for _, e := range r.entries {
		if e.Action == action {
			cp := *e
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeAuditRepo) actions() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]string, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

type fakeAssistantRepo struct {
	mu         sync.Mutex
	assistants map[uint]*models.Assistant
}

func newFakeAssistantRepo() *fakeAssistantRepo {
	return &fakeAssistantRepo{assistants: make(map[uint]*models.Assistant)}
}

func (r *fakeAssistantRepo) ByID(ctx context.Context, id uint) (*models.Assistant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	a, ok := r.assistants[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *fakeAssistantRepo) ByFilter(ctx context.Context, filter models.AssistantFilter, orderBy string, limit, offset int) ([]*models.Assistant, error) {
	return nil, nil
}

func (r *fakeAssistantRepo) Save(ctx context.Context, a *models.Assistant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *a
	r.assistants[a.ID] = &cp
	return nil
}

func (r *fakeAssistantRepo) SaveBatch(ctx context.Context, as []*models.Assistant) error {
	for _, a := range as {
		if err := r.Save(ctx, a); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeAssistantRepo) Count(ctx context.Context, filter models.AssistantFilter) (int64, error) {
	return int64(len(r.assistants)), nil
}

func (r *fakeAssistantRepo) Exists(ctx context.Context, filter models.AssistantFilter) (bool, error) {
	return len(r.assistants) > 0, nil
}

type fakeSecretRepo struct {
	mu      sync.Mutex
	secrets map[string]*models.Secret

	lookupErr error
}

func newFakeSecretRepo() *fakeSecretRepo {
	return &fakeSecretRepo{secrets: make(map[string]*models.Secret)}
}

func secretKey(userID uint, name string) string {
	return fmt.Sprintf("%d/%s", userID, name)
}

func (r *fakeSecretRepo) ByID(ctx context.Context, id uint) (*models.Secret, error) {
	return nil, nil
}

func (r *fakeSecretRepo) ByFilter(ctx context.Context, filter models.SecretFilter, orderBy string, limit, offset int) ([]*models.Secret, error) {
	return nil, nil
}

func (r *fakeSecretRepo) Save(ctx context.Context, s *models.Secret) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *s
	r.secrets[secretKey(s.UserID, s.Name)] = &cp
	return nil
}

func (r *fakeSecretRepo) SaveBatch(ctx context.Context, ss []*models.Secret) error {
	for _, s := range ss {
		if err := r.Save(ctx, s); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeSecretRepo) Count(ctx context.Context, filter models.SecretFilter) (int64, error) {
	return int64(len(r.secrets)), nil
}

func (r *fakeSecretRepo) Exists(ctx context.Context, filter models.SecretFilter) (bool, error) {
	return len(r.secrets) > 0, nil
}

func (r *fakeSecretRepo) ByUserAndName(ctx context.Context, userID uint, name string) (*models.Secret, error) {
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.secrets[secretKey(userID, name)]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

// flowFixture wires an execution flow over the in-memory fakes with fast
// backoffs so retry paths run in milliseconds
type flowFixture struct {
	campaignRepo  *fakeCampaignRepo
	contactRepo   *fakeContactRepo
	attemptRepo   *fakeAttemptRepo
	auditRepo     *fakeAuditRepo
	breakerRepo   *fakeBreakerRepo
	assistantRepo *fakeAssistantRepo
	secretRepo    *fakeSecretRepo
	vapi          *services.MockVapiClient

	execCfg    *config.ExecutionConfig
	webhookCfg *config.WebhookConfig

	stateManager StateManager
	breaker      CircuitBreaker
	validation   ValidationFlow
	processor    ContactProcessor
	handler      *ExecutionErrorHandler
	flow         ExecutionFlow
}

const (
	testCampaignID  = uint(1)
	testUserID      = uint(7)
	testAssistantID = uint(3)
)

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func newFlowFixture() *flowFixture {
	f := &flowFixture{
		campaignRepo:  newFakeCampaignRepo(),
		contactRepo:   newFakeContactRepo(),
		attemptRepo:   newFakeAttemptRepo(),
		auditRepo:     newFakeAuditRepo(),
		breakerRepo:   newFakeBreakerRepo(),
		assistantRepo: newFakeAssistantRepo(),
		secretRepo:    newFakeSecretRepo(),
		vapi:          services.NewMockVapiClient(),
		execCfg: &config.ExecutionConfig{
			LockTTL:             5 * time.Minute,
			LockMaxAttempts:     3,
			LockRetryBackoff:    2 * time.Millisecond,
			ValidationAttempts:  3,
			ValidationBackoff:   time.Millisecond,
			BreakerMaxFailures:  3,
			BreakerCooldown:     time.Minute,
			ContactBatchSize:    5,
			BatchConcurrency:    2,
			ProviderCallTimeout: time.Second,
		},
		webhookCfg: &config.WebhookConfig{
			BaseURL:        "https://hooks.example.com",
			EventRoute:     "/api/v1/webhooks/vapi",
			ErrorRoute:     "/api/v1/webhooks/vapi-error",
			RequiredRoutes: []string{"/api/v1/webhooks/vapi", "/api/v1/webhooks/vapi-error"},
		},
	}

	f.rebuild()
	return f
}

// rebuild rewires the flows from the current config, letting tests tune
// backoffs and budgets before running
func (f *flowFixture) rebuild() {
	logger := testLogger()
	f.stateManager = NewStateManager(f.campaignRepo, logger)
	f.breaker = NewCircuitBreaker(f.breakerRepo, f.auditRepo, f.execCfg, logger)
	f.validation = NewValidationFlow(
		f.campaignRepo, f.contactRepo, f.assistantRepo, f.secretRepo, f.auditRepo,
		f.vapi, f.webhookCfg, f.execCfg, logger,
	)
	f.processor = NewContactProcessor(
		f.contactRepo, f.auditRepo, f.vapi, newTestTokenService(), f.webhookCfg, f.execCfg, logger,
	)
	f.handler = NewExecutionErrorHandler(f.campaignRepo, f.auditRepo, logger)
	f.flow = NewExecutionFlow(
		f.campaignRepo, f.contactRepo, f.attemptRepo, f.auditRepo, f.secretRepo,
		f.stateManager, f.breaker, f.validation, f.processor, f.handler,
		f.execCfg, logger,
	)
}

func newTestTokenService() services.WebhookTokenService {
	svc, err := services.NewWebhookTokenService("test-webhook-secret-key-32-characters", time.Hour, "capi-test")
	if err != nil {
		panic(err)
	}
	return svc
}

// seedReadyCampaign installs a ready campaign with a registered assistant, an
// API key secret, and n pending contacts
func (f *flowFixture) seedReadyCampaign(n int) *models.Campaign {
	assistant := &models.Assistant{
		ID:              testAssistantID,
		UUID:            uuid.New(),
		UserID:          testUserID,
		Name:            "survey assistant",
		VapiAssistantID: utils.ToPtr("asst_test_1"),
	}
	_ = f.assistantRepo.Save(context.Background(), assistant)
	f.vapi.Assistants["asst_test_1"] = &services.AssistantInfo{ID: "asst_test_1", Name: "survey assistant"}

	_ = f.secretRepo.Save(context.Background(), &models.Secret{
		ID:     1,
		UserID: testUserID,
		Name:   models.SecretNameVapiAPIKey,
		Secret: "sk-test-key",
	})

	campaign := &models.Campaign{
		ID:          testCampaignID,
		UUID:        uuid.New(),
		UserID:      testUserID,
		Name:        "q3 outreach",
		AssistantID: testAssistantID,
		Status:      models.CampaignStatusReady,
		MaxRetries:  3,
		Assistant:   assistant,
	}
	f.campaignRepo.put(campaign)

	for i := 1; i <= n; i++ {
		f.contactRepo.put(&models.CampaignContact{
			ID:          uint(i),
			UUID:        uuid.New(),
			CampaignID:  testCampaignID,
			Name:        fmt.Sprintf("contact %d", i),
			PhoneNumber: fmt.Sprintf("+1415555%04d", i),
			Status:      models.ContactStatusPending,
		})
	}

	return campaign
}
