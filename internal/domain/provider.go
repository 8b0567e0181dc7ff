package domain

// ProviderStatus classifies the outcome of an external provider call
type ProviderStatus string

const (
	ProviderSuccess        ProviderStatus = "success"
	ProviderFailed         ProviderStatus = "failed"
	ProviderPending        ProviderStatus = "pending"
	ProviderTimeout        ProviderStatus = "timeout"
	ProviderRetryableError ProviderStatus = "retryable_error"
	ProviderPermanentError ProviderStatus = "permanent_error"
)

// ProviderResult is the uniform envelope every provider call returns.
// It is what lets the saga orchestrator treat all providers identically.
type ProviderResult struct {
	Success           bool                   `json:"success"`
	Status            ProviderStatus         `json:"status"`
	Message           string                 `json:"message,omitempty"`
	Data              map[string]interface{} `json:"data,omitempty"`
	ErrorCode         string                 `json:"error_code,omitempty"`
	ExternalReference string                 `json:"external_reference,omitempty"`
	IsRetryable       bool                   `json:"is_retryable"`
	Provider          string                 `json:"provider"`
}

// OK builds a success envelope.
func OK(provider, message string, data map[string]interface{}) ProviderResult {
	return ProviderResult{
		Success:  true,
		Status:   ProviderSuccess,
		Message:  message,
		Data:     data,
		Provider: provider,
	}
}

// Fail builds a failure envelope. retryable decides whether the caller may
// re-attempt the same operation.
func Fail(provider, code, message string, retryable bool) ProviderResult {
	status := ProviderPermanentError
	if retryable {
		status = ProviderRetryableError
	}
	return ProviderResult{
		Success:     false,
		Status:      status,
		Message:     message,
		ErrorCode:   code,
		IsRetryable: retryable,
		Provider:    provider,
	}
}
