package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches domain errors by code so sentinel values work with errors.Is
// even after a cause has been attached.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && (t.Message == "" || e.Message == t.Message)
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// ErrorCode returns the machine-readable code of err, or ErrCodeInternalError
// when err carries no DomainError.
func ErrorCode(err error) string {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return ErrCodeInternalError
}

// Common domain error codes
const (
	ErrCodeValidation       = "VALIDATION_ERROR"
	ErrCodeNotFound         = "NOT_FOUND"
	ErrCodeConfiguration    = "CONFIGURATION_ERROR"
	ErrCodeEmbeddingFailed  = "EMBEDDING_FAILED"
	ErrCodeRetrievalFailed  = "RETRIEVAL_FAILED"
	ErrCodeGenerationFailed = "GENERATION_FAILED"
	ErrCodeDuplicateRequest = "DUPLICATE_REQUEST"
	ErrCodeInternalError    = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyQuery           = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrEmptyText            = NewDomainError(ErrCodeValidation, "text cannot be empty")
	ErrTextTooLong          = NewDomainError(ErrCodeValidation, "text exceeds the maximum embeddable length")
	ErrBatchTooLarge        = NewDomainError(ErrCodeValidation, "batch exceeds the maximum size")
	ErrInvalidDocument      = NewDomainError(ErrCodeValidation, "invalid document")
	ErrMissingRequiredField = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// Configuration errors are fatal and never retried
var (
	ErrDimensionMismatch  = NewDomainError(ErrCodeConfiguration, "embedding dimension does not match configured model")
	ErrMissingCredentials = NewDomainError(ErrCodeConfiguration, "missing credentials")
	ErrStoreNotConfigured = NewDomainError(ErrCodeConfiguration, "storage not configured")
)

// Pipeline failures
var (
	ErrEmbeddingFailed  = NewDomainError(ErrCodeEmbeddingFailed, "query embedding failed")
	ErrRetrievalFailed  = NewDomainError(ErrCodeRetrievalFailed, "vector search failed")
	ErrGenerationFailed = NewDomainError(ErrCodeGenerationFailed, "answer generation failed")
)

// IsConfigurationError reports whether err is a fatal configuration error.
func IsConfigurationError(err error) bool {
	return ErrorCode(err) == ErrCodeConfiguration
}
