package domain

import (
	"errors"
	"fmt"
)

// Domain errors represent business logic failures.
// These are distinct from infrastructure errors.
var (
	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates malformed or invalid input. Surfaced to
	// the caller immediately, never retried.
	ErrInvalidInput = errors.New("invalid input")

	// ErrOwnershipMismatch indicates the entity belongs to a different
	// tenant. Mutations fail without touching any rows.
	ErrOwnershipMismatch = errors.New("ownership mismatch")

	// ErrEmbeddingUnavailable indicates the embedding service is not
	// configured. Ingestion and vector search are disabled without it.
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrLLMUnavailable indicates the LLM service is not configured.
	// Answer generation is disabled; search still works.
	ErrLLMUnavailable = errors.New("LLM service unavailable")
)

// PipelineError is an invariant violation inside an ingestion run: zero
// chunks produced, chunk/embedding count mismatch, or an embedding that
// fails numeric validation. It is always fatal to the run, never retried,
// and its Reason is recorded on the knowledge base.
type PipelineError struct {
	// Reason is the human-readable failure description.
	Reason string
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	return "pipeline invariant violated: " + e.Reason
}

// NewPipelineError creates a PipelineError with the given reason.
func NewPipelineError(format string, args ...any) *PipelineError {
	return &PipelineError{Reason: fmt.Sprintf(format, args...)}
}

// ExternalServiceError wraps a failure from a remote provider (embedding
// or LLM API). Retryable distinguishes "overloaded, try again later" from
// a hard failure; ConfigError marks misconfiguration such as a missing or
// rejected API key, which retrying can never fix.
type ExternalServiceError struct {
	// Provider names the service, e.g. "openai" or "ollama".
	Provider string

	// StatusCode is the HTTP status when one was received, else 0.
	StatusCode int

	// Retryable is true for rate limits, overload and transient faults.
	Retryable bool

	// ConfigError is true for credential or configuration failures.
	ConfigError bool

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ExternalServiceError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Provider, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ExternalServiceError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether err is an ExternalServiceError marked
// retryable. Non-service errors are never retryable.
func IsRetryable(err error) bool {
	var svcErr *ExternalServiceError
	return errors.As(err, &svcErr) && svcErr.Retryable
}

// IsConfigError reports whether err is an ExternalServiceError caused by
// misconfiguration (e.g. missing credentials).
func IsConfigError(err error) bool {
	var svcErr *ExternalServiceError
	return errors.As(err, &svcErr) && svcErr.ConfigError
}
