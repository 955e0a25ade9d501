package dto

// APIResponse is the envelope every HTTP endpoint answers with. Error carries
// an ErrorDetail on failure responses and is omitted on success.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
	Error   any    `json:"error,omitempty"`
}

// ErrorDetail names the machine-readable error code behind a failed response,
// with optional context such as field-level validation messages
type ErrorDetail struct {
	Code    string `json:"code"`
	Details any    `json:"details,omitempty"`
}
