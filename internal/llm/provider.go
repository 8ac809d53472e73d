package llm

import (
	"context"
	"errors"
)

// ErrMalformedResponse marks provider output that could not be parsed
// into the expected shape. Callers treat it as a hard, retryable failure.
var ErrMalformedResponse = errors.New("malformed generator response")

// GenerationResponse is the raw text returned by a provider.
type GenerationResponse struct {
	Text           string
	Provider       string
	Model          string
	ProcessingTime int64 // milliseconds
}

// defines the interface for LLM providers
type Provider interface {
	GenerateContent(ctx context.Context, prompt string, requestID string) (*GenerationResponse, error)
	GetProviderName() string
}

// represents an error from an LLM provider
type ProviderError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *ProviderError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *ProviderError) Unwrap() error { return e.Err }

// Common error codes
const (
	ErrCodeAPIKey       = "invalid_api_key"
	ErrCodeRateLimit    = "rate_limit_exceeded"
	ErrCodeServiceDown  = "service_unavailable"
	ErrCodeInvalidInput = "invalid_input"
	ErrCodeTimeout      = "timeout"
)
