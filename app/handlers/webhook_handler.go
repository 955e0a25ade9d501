package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/aproductiontitle/capi-public/app/dto"
	"github.com/aproductiontitle/capi-public/app/middleware"
	"github.com/aproductiontitle/capi-public/app/services"
	businessflow "github.com/aproductiontitle/capi-public/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	HandleVapiEvent(c fiber.Ctx) error
	HandleVapiErrorEvent(c fiber.Ctx) error
	ProbeVapiEndpoint(c fiber.Ctx) error
}

// WebhookHandler receives provider callback events
type WebhookHandler struct {
	webhookFlow businessflow.WebhookFlow
	validator   *validator.Validate
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(webhookFlow businessflow.WebhookFlow) *WebhookHandler {
	return &WebhookHandler{
		webhookFlow: webhookFlow,
		validator:   validator.New(),
	}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// HandleVapiEvent processes one provider callback event
func (h *WebhookHandler) HandleVapiEvent(c fiber.Ctx) error {
	return h.handleEvent(c, h.webhookFlow.ProcessEvent)
}

// HandleVapiErrorEvent processes one provider error callback. Errors arrive on
// their own channel so a misbehaving call cannot drown out lifecycle events.
func (h *WebhookHandler) HandleVapiErrorEvent(c fiber.Ctx) error {
	return h.handleEvent(c, h.webhookFlow.ProcessErrorEvent)
}

func (h *WebhookHandler) handleEvent(
	c fiber.Ctx,
	process func(ctx context.Context, token string, event *dto.WebhookEventRequest) (*dto.WebhookEventResponse, error),
) error {
	var req dto.WebhookEventRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid event payload", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, verr := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, verr.Error())
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Event validation failed", "VALIDATION_ERROR", validationErrors)
	}

	token := extractCallbackToken(c)
	if token == "" {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Callback token is required", "MISSING_TOKEN", nil)
	}

	middleware.WebhookEventsTotal.WithLabelValues(req.Type).Inc()

	result, err := process(c.Context(), token, &req)
	if err != nil {
		if errors.Is(err, services.ErrWebhookTokenExpired) || errors.Is(err, services.ErrWebhookTokenInvalid) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Invalid callback token", "INVALID_TOKEN", nil)
		}
		log.Println("Webhook event processing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Event processing failed", "EVENT_FAILED", nil)
	}

	return c.Status(fiber.StatusOK).JSON(dto.APIResponse{
		Success: true,
		Message: result.Message,
		Data:    result,
	})
}

// ProbeVapiEndpoint answers the provider's OPTIONS reachability probe. It must
// succeed without authentication or validation would never pass.
func (h *WebhookHandler) ProbeVapiEndpoint(c fiber.Ctx) error {
	c.Set("Allow", "OPTIONS, POST")
	return c.SendStatus(fiber.StatusNoContent)
}

// extractCallbackToken reads the per-call token from the Authorization header
// or the token query parameter
func extractCallbackToken(c fiber.Ctx) string {
	auth := c.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if auth != "" {
		return auth
	}
	return c.Query("token")
}
