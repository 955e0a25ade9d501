// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"errors"
	"io"
	"log"
	"strings"

	"github.com/aproductiontitle/capi-public/app/dto"
	"github.com/aproductiontitle/capi-public/app/middleware"
	"github.com/aproductiontitle/capi-public/app/services"
	businessflow "github.com/aproductiontitle/capi-public/business_flow"
	"github.com/aproductiontitle/capi-public/models"
	"github.com/aproductiontitle/capi-public/repository"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	DeployCampaign(c fiber.Ctx) error
	CampaignHealth(c fiber.Ctx) error
	ImportContacts(c fiber.Ctx) error
}

// CampaignHandler handles campaign execution HTTP requests
type CampaignHandler struct {
	campaignRepo  repository.CampaignRepository
	contactRepo   repository.CampaignContactRepository
	executionFlow businessflow.ExecutionFlow
	monitor       businessflow.ExecutionMonitor
	importer      services.ContactImporter
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(
	campaignRepo repository.CampaignRepository,
	contactRepo repository.CampaignContactRepository,
	executionFlow businessflow.ExecutionFlow,
	monitor businessflow.ExecutionMonitor,
	importer services.ContactImporter,
) *CampaignHandler {
	return &CampaignHandler{
		campaignRepo:  campaignRepo,
		contactRepo:   contactRepo,
		executionFlow: executionFlow,
		monitor:       monitor,
		importer:      importer,
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// DeployCampaign triggers one execution run for a ready campaign
func (h *CampaignHandler) DeployCampaign(c fiber.Ctx) error {
	campaign, err := h.campaignByUUIDParam(c)
	if err != nil || campaign == nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}

	outcome, err := h.executionFlow.Execute(c.Context(), campaign.ID)
	if err != nil {
		middleware.CampaignExecutionsTotal.WithLabelValues("failed").Inc()
		return h.executionErrorResponse(c, err)
	}
	middleware.CampaignExecutionsTotal.WithLabelValues("completed").Inc()

	resp := dto.DeployCampaignResponse{
		Message:       "Campaign execution completed",
		CampaignID:    outcome.CampaignID,
		CorrelationID: outcome.CorrelationID,
		Remaining:     outcome.Remaining,
	}
	if outcome.Batch != nil {
		resp.Dispatched = outcome.Batch.Dispatched
		resp.Failed = outcome.Batch.Failed
	}

	return h.SuccessResponse(c, fiber.StatusOK, resp.Message, resp)
}

// CampaignHealth returns the execution health aggregate of a campaign
func (h *CampaignHandler) CampaignHealth(c fiber.Ctx) error {
	campaign, err := h.campaignByUUIDParam(c)
	if err != nil || campaign == nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}

	health, err := h.monitor.Health(c.Context(), campaign.ID)
	if err != nil {
		log.Println("Campaign health aggregation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to aggregate campaign health", "HEALTH_FAILED", nil)
	}

	resp := dto.CampaignHealthResponse{
		CampaignID:    health.CampaignID,
		Status:        health.Status.String(),
		Locked:        health.Locked,
		LockExpired:   health.LockExpired,
		RetryBudget:   health.RetryBudget,
		LastError:     health.LastError,
		LastAttemptAt: health.LastAttemptAt,
	}
	if health.Contacts != nil {
		resp.Contacts = dto.ContactCountsDTO{
			Total:      health.Contacts.Total,
			Pending:    health.Contacts.Pending,
			Processing: health.Contacts.Processing,
			Completed:  health.Contacts.Completed,
			Failed:     health.Contacts.Failed,
		}
	}
	if health.Attempts != nil {
		resp.Attempts = dto.AttemptCountsDTO{
			Total:     health.Attempts.Total,
			Completed: health.Attempts.Completed,
			Failed:    health.Attempts.Failed,
		}
	}
	if health.Breaker != nil {
		resp.Breaker = dto.BreakerStatusDTO{
			Open:              health.Breaker.Open,
			FailureCount:      health.Breaker.FailureCount,
			FailureRate:       health.Breaker.FailureRate,
			CooldownRemaining: health.Breaker.CooldownRemaining.String(),
			RecoveryProgress:  health.Breaker.RecoveryProgress,
			LastError:         health.Breaker.LastError,
		}
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Campaign health retrieved", resp)
}

// ImportContacts uploads a CSV or XLSX contact list into a campaign
func (h *CampaignHandler) ImportContacts(c fiber.Ctx) error {
	campaign, err := h.campaignByUUIDParam(c)
	if err != nil || campaign == nil {
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Contact file is required", "MISSING_FILE", err.Error())
	}

	file, err := fileHeader.Open()
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to open uploaded file", "INVALID_FILE", err.Error())
	}
	defer file.Close()

	var result *services.ImportResult
	name := strings.ToLower(fileHeader.Filename)
	switch {
	case strings.HasSuffix(name, ".xlsx"):
		data, err := io.ReadAll(file)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to read uploaded file", "INVALID_FILE", err.Error())
		}
		result, err = h.importer.ImportXLSX(campaign.ID, data)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse workbook", "IMPORT_FAILED", err.Error())
		}
	case strings.HasSuffix(name, ".csv"):
		result, err = h.importer.ImportCSV(campaign.ID, file)
		if err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Failed to parse CSV", "IMPORT_FAILED", err.Error())
		}
	default:
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Unsupported file type, expected .csv or .xlsx", "UNSUPPORTED_FILE", nil)
	}

	if len(result.Contacts) > 0 {
		if err := h.contactRepo.SaveBatch(c.Context(), result.Contacts); err != nil {
			log.Println("Contact import persistence failed", err)
			return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to persist contacts", "IMPORT_FAILED", nil)
		}
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Contacts imported", dto.ImportContactsResponse{
		Message:  "Contacts imported",
		Imported: result.Imported,
		Skipped:  result.Skipped,
		Errors:   result.Errors,
	})
}

func (h *CampaignHandler) campaignByUUIDParam(c fiber.Ctx) (*models.Campaign, error) {
	raw := c.Params("uuid")
	if raw == "" {
		return nil, errors.New("missing campaign uuid")
	}
	return h.campaignRepo.ByUUID(c.Context(), raw)
}

func (h *CampaignHandler) executionErrorResponse(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, businessflow.ErrCampaignNotFound):
		return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
	case errors.Is(err, businessflow.ErrCampaignNotReady):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is not in an executable state", "CAMPAIGN_NOT_READY", nil)
	case errors.Is(err, businessflow.ErrCircuitBreakerOpen):
		return h.ErrorResponse(c, fiber.StatusTooManyRequests, "Circuit breaker is open", "BREAKER_OPEN", err.Error())
	case errors.Is(err, businessflow.ErrExecutionLockHeld):
		return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is already being executed", "LOCK_HELD", nil)
	case errors.Is(err, businessflow.ErrVapiKeyNotFound),
		errors.Is(err, businessflow.ErrInvalidAssistant),
		errors.Is(err, businessflow.ErrWebhookValidation),
		errors.Is(err, businessflow.ErrNoPendingContacts):
		return h.ErrorResponse(c, fiber.StatusUnprocessableEntity, "Campaign validation failed", "VALIDATION_FAILED", err.Error())
	default:
		log.Println("Campaign execution failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign execution failed", "EXECUTION_FAILED", nil)
	}
}
