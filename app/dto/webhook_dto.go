package dto

// Webhook event types emitted by the voice provider
const (
	WebhookEventCallCompleted    = "call.completed"
	WebhookEventCallFailed       = "call.failed"
	WebhookEventTranscriptUpdate = "call.transcript.update"
)

// WebhookEventRequest is the provider callback payload
type WebhookEventRequest struct {
	ID       string               `json:"id" validate:"required"`
	Type     string               `json:"type" validate:"required"`
	CallID   string               `json:"callId,omitempty"`
	Metadata WebhookEventMetadata `json:"metadata"`

	Transcript  *string `json:"transcript,omitempty"`
	Duration    *int    `json:"duration,omitempty"`
	EndedReason *string `json:"endedReason,omitempty"`
	Sentiment   *string `json:"sentiment,omitempty"`
	Error       *string `json:"error,omitempty"`
}

// WebhookEventMetadata carries the identifiers round-tripped through the
// provider from call creation
type WebhookEventMetadata struct {
	ContactID  string `json:"contactId"`
	CampaignID string `json:"campaignId,omitempty"`
}

// WebhookEventResponse acknowledges a processed callback
type WebhookEventResponse struct {
	Message   string `json:"message"`
	Duplicate bool   `json:"duplicate,omitempty"`
}
