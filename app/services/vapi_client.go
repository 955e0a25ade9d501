// Package services provides external service integrations and technical concerns like provider clients and tokens
package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/aproductiontitle/capi-public/config"
	"github.com/aproductiontitle/capi-public/utils"
)

// VapiClient handles outbound operations against the VAPI voice provider
type VapiClient interface {
	CreateCall(ctx context.Context, apiKey string, req CallRequest) (*CallResponse, error)
	GetAssistant(ctx context.Context, apiKey, assistantID string) (*AssistantInfo, error)
	ProbeWebhook(ctx context.Context, url string) error
}

// CallRequest represents the request payload for the call creation API.
// ServerURL receives lifecycle events; ErrorWebhookURL receives provider-side
// call failures on a separate channel.
type CallRequest struct {
	AssistantID     string            `json:"assistantId"`
	PhoneNumber     string            `json:"phoneNumber"`
	CustomerName    string            `json:"customerName,omitempty"`
	ServerURL       string            `json:"serverUrl,omitempty"`
	ServerURLAuth   string            `json:"serverUrlSecret,omitempty"`
	ErrorWebhookURL string            `json:"errorWebhookUrl,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
}

// CallResponse represents the provider's call creation result
type CallResponse struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	AssistantID string `json:"assistantId"`
	PhoneNumber string `json:"phoneNumber"`
	CreatedAt   string `json:"createdAt"`
}

// AssistantInfo represents the provider-side assistant record
type AssistantInfo struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"createdAt"`
}

// VapiClientImpl implements VapiClient
type VapiClientImpl struct {
	config *config.VapiConfig
	client *http.Client
}

// NewVapiClient creates a new VAPI client instance
func NewVapiClient(cfg *config.VapiConfig) VapiClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = utils.ProviderCallTimeout
	}
	return &VapiClientImpl{
		config: cfg,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateCall dispatches an outbound voice call for one contact
func (v *VapiClientImpl) CreateCall(ctx context.Context, apiKey string, callReq CallRequest) (*CallResponse, error) {
	requestBody, err := json.Marshal(callReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal call request: %w", err)
	}

	url := fmt.Sprintf("%s/call", v.config.BaseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send call request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("call creation failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result CallResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode call response: %w", err)
	}
	return &result, nil
}

// GetAssistant fetches the provider-side assistant record
func (v *VapiClientImpl) GetAssistant(ctx context.Context, apiKey, assistantID string) (*AssistantInfo, error) {
	url := fmt.Sprintf("%s/assistant/%s", v.config.BaseURL, assistantID)
	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch assistant: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("assistant fetch failed with status %d: %s", resp.StatusCode, string(body))
	}

	var result AssistantInfo
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode assistant response: %w", err)
	}
	return &result, nil
}

// ProbeWebhook checks that a callback endpoint answers OPTIONS before any call
// is dispatched against it
func (v *VapiClientImpl) ProbeWebhook(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, "OPTIONS", url, nil)
	if err != nil {
		return fmt.Errorf("failed to create HTTP request: %w", err)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook endpoint unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}
	return nil
}

// MockVapiClient implements VapiClient for testing
type MockVapiClient struct {
	mu sync.Mutex

	CreatedCalls    []CallRequest
	Assistants      map[string]*AssistantInfo
	FailCallFor     map[string]error // keyed by phone number
	FailAssistant   error
	FailProbe       error
	CallDelay       time.Duration
	nextCallID      int
	ProbedEndpoints []string
}

// NewMockVapiClient creates a new mock VAPI client
func NewMockVapiClient() *MockVapiClient {
	return &MockVapiClient{
		Assistants:  make(map[string]*AssistantInfo),
		FailCallFor: make(map[string]error),
	}
}

// CreateCall records the call request and returns a synthetic response
func (m *MockVapiClient) CreateCall(ctx context.Context, apiKey string, req CallRequest) (*CallResponse, error) {
	if m.CallDelay > 0 {
		select {
		case <-time.After(m.CallDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err, ok := m.FailCallFor[req.PhoneNumber]; ok {
		return nil, err
	}

	m.nextCallID++
	m.CreatedCalls = append(m.CreatedCalls, req)
	return &CallResponse{
		ID:          fmt.Sprintf("call-%d", m.nextCallID),
		Status:      "queued",
		AssistantID: req.AssistantID,
		PhoneNumber: req.PhoneNumber,
		CreatedAt:   utils.UTCNow().Format(time.RFC3339),
	}, nil
}

// GetAssistant returns the registered mock assistant, nil when absent
func (m *MockVapiClient) GetAssistant(ctx context.Context, apiKey, assistantID string) (*AssistantInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAssistant != nil {
		return nil, m.FailAssistant
	}
	return m.Assistants[assistantID], nil
}

// ProbeWebhook records the probed endpoint
func (m *MockVapiClient) ProbeWebhook(ctx context.Context, url string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailProbe != nil {
		return m.FailProbe
	}
	m.ProbedEndpoints = append(m.ProbedEndpoints, url)
	return nil
}

// CreatedCallCount returns the number of dispatched mock calls
func (m *MockVapiClient) CreatedCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CreatedCalls)
}
