// Package scheduler
package scheduler

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"time"

	businessflow "github.com/aproductiontitle/capi-public/business_flow"
	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/aproductiontitle/capi-public/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

// CampaignScheduler periodically picks up due campaigns and runs one
// execution batch for each. Campaigns skipped because another worker holds
// the lock or the breaker is open are retried on the next tick.
type CampaignScheduler struct {
	campaignRepo  repository.CampaignRepository
	executionFlow businessflow.ExecutionFlow
	logger        *log.Logger
	interval      time.Duration
	batchLimit    int
}

// NewCampaignScheduler creates a new campaign scheduler
func NewCampaignScheduler(
	campaignRepo repository.CampaignRepository,
	executionFlow businessflow.ExecutionFlow,
	schedCfg config.SchedulerConfig,
	logCfg config.LoggingConfig,
) *CampaignScheduler {
	interval := schedCfg.TickInterval
	if interval <= 0 {
		interval = time.Minute
	}
	batchLimit := schedCfg.BatchLimit
	if batchLimit <= 0 {
		batchLimit = 10
	}

	return &CampaignScheduler{
		campaignRepo:  campaignRepo,
		executionFlow: executionFlow,
		logger:        newSchedulerLogger(logCfg),
		interval:      interval,
		batchLimit:    batchLimit,
	}
}

// newSchedulerLogger writes to stdout and a rotated log file
func newSchedulerLogger(cfg config.LoggingConfig) *log.Logger {
	var w io.Writer = os.Stdout
	if cfg.Output == "file" || cfg.Output == "both" {
		rotated := &lumberjack.Logger{
			Filename:   cfg.FilePath,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		if cfg.Output == "file" {
			w = rotated
		} else {
			w = io.MultiWriter(os.Stdout, rotated)
		}
	}
	return log.New(w, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
}

// Start launches the scheduler loop in a background goroutine and returns a
// stop function
func (s *CampaignScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

// runOnce executes one scheduling pass over due campaigns
func (s *CampaignScheduler) runOnce(ctx context.Context) {
	now := utils.UTCNow()

	due, err := s.campaignRepo.ListDue(ctx, models.CampaignStatusReady, now, s.batchLimit)
	if err != nil {
		s.logger.Printf("failed to list due campaigns: %v", err)
		return
	}
	if len(due) == 0 {
		return
	}

	s.logger.Printf("tick: %d due campaign(s)", len(due))

	for _, campaign := range due {
		if ctx.Err() != nil {
			return
		}

		outcome, err := s.executionFlow.Execute(ctx, campaign.ID)
		switch {
		case err == nil:
			s.logger.Printf("campaign %d executed: correlation=%s dispatched=%d remaining=%d",
				campaign.ID, outcome.CorrelationID, outcome.Batch.Dispatched, outcome.Remaining)
		case errors.Is(err, businessflow.ErrExecutionLockHeld),
			errors.Is(err, businessflow.ErrCircuitBreakerOpen):
			s.logger.Printf("campaign %d skipped: %v", campaign.ID, err)
		default:
			s.logger.Printf("campaign %d execution failed: %v", campaign.ID, err)
		}
	}
}
