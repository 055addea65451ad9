package ingest

import "fmt"

// ProviderErrorCode represents specific AI-provider failure types.
type ProviderErrorCode string

const (
	ErrProviderUnavailable ProviderErrorCode = "PROVIDER_UNAVAILABLE"
	ErrProviderRateLimited ProviderErrorCode = "PROVIDER_RATE_LIMITED"
	ErrProviderTimeout     ProviderErrorCode = "PROVIDER_TIMEOUT"
	ErrBadResponse         ProviderErrorCode = "BAD_RESPONSE"
)

// ProviderError is a structured error for AI-provider failures. The pipeline
// never propagates these as crashes; they degrade to "no AI result".
type ProviderError struct {
	Code      ProviderErrorCode
	Message   string
	Provider  string
	Retryable bool
	Cause     error
}

func (e *ProviderError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ProviderError) Unwrap() error {
	return e.Cause
}

// IsRetryable returns whether this error is retryable.
func (e *ProviderError) IsRetryable() bool {
	return e.Retryable
}
