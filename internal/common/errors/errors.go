// Package errors provides the service's standardized error types and their
// conversion to BPMN errors for the workflow engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ==========================
// 1. Standard Error Types
// ==========================

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeApplicationValidationFailed ErrorCode = "APPLICATION_VALIDATION_FAILED"
	ErrCodeStageFailed                 ErrorCode = "STAGE_FAILED"

	ErrCodeStorageUnavailable   ErrorCode = "STORAGE_UNAVAILABLE"
	ErrCodeQueryExecutionFailed ErrorCode = "QUERY_EXECUTION_FAILED"
	ErrCodeApplicationNotFound  ErrorCode = "APPLICATION_NOT_FOUND"

	ErrCodeDecisionEngineFailed  ErrorCode = "DECISION_ENGINE_FAILED"
	ErrCodeDecisionEngineTimeout ErrorCode = "DECISION_ENGINE_TIMEOUT"

	ErrCodeCacheUnavailable   ErrorCode = "CACHE_UNAVAILABLE"
	ErrCodeSearchIndexFailed  ErrorCode = "SEARCH_INDEX_FAILED"
	ErrCodeNotificationFailed ErrorCode = "NOTIFICATION_SEND_FAILED"

	ErrCodeExternalService ErrorCode = "EXTERNAL_SERVICE_ERROR"
	ErrCodeTimeout         ErrorCode = "TIMEOUT"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Cause     error                  `json:"-"`
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches another StandardError by code, so errors.Is works against the
// sentinel values below.
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// Sentinels for errors.Is checks.
var (
	ErrStorageUnavailable = &StandardError{Code: ErrCodeStorageUnavailable}
	ErrValidation         = &StandardError{Code: ErrCodeApplicationValidationFailed}
	ErrDecisionEngine     = &StandardError{Code: ErrCodeDecisionEngineFailed}
)

// CodeOf returns the code of the first StandardError in err's chain.
func CodeOf(err error) ErrorCode {
	var se *StandardError
	if stderrors.As(err, &se) {
		return se.Code
	}
	return ErrCodeInternal
}

// ==========================
// 2. BPMN Error Integration
// ==========================

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

// ==========================
// 3. Error Constructors
// ==========================

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		Cause:     cause,
	}
}

func causeText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// NewApplicationValidationFailedError creates a non-retryable validation error.
func NewApplicationValidationFailedError(details string) *StandardError {
	return newError(ErrCodeApplicationValidationFailed, "Application validation failed", details, false, nil)
}

// NewStageFailedError reports a pipeline stage that did not succeed.
func NewStageFailedError(stage string, err error) *StandardError {
	e := newError(ErrCodeStageFailed, fmt.Sprintf("Stage %s failed", stage), causeText(err), false, err)
	e.Metadata = map[string]interface{}{"stage": stage}
	return e
}

// NewStorageUnavailableError reports a warehouse that could not be reached
// after its reconnect attempt.
func NewStorageUnavailableError(err error) *StandardError {
	return newError(ErrCodeStorageUnavailable, "Application store unavailable", causeText(err), true, err)
}

func NewQueryExecutionFailedError(operation string, err error) *StandardError {
	e := newError(ErrCodeQueryExecutionFailed, fmt.Sprintf("Query %s failed", operation), causeText(err), true, err)
	e.Metadata = map[string]interface{}{"operation": operation}
	return e
}

func NewApplicationNotFoundError(applicationID string) *StandardError {
	return newError(ErrCodeApplicationNotFound, "Application not found", applicationID, false, nil)
}

func NewDecisionEngineFailedError(err error) *StandardError {
	return newError(ErrCodeDecisionEngineFailed, "Decision engine request failed", causeText(err), true, err)
}

func NewDecisionEngineTimeoutError(err error) *StandardError {
	return newError(ErrCodeDecisionEngineTimeout, "Decision engine timed out", causeText(err), true, err)
}

func NewCacheUnavailableError(err error) *StandardError {
	return newError(ErrCodeCacheUnavailable, "Decision cache unavailable", causeText(err), true, err)
}

func NewSearchIndexFailedError(err error) *StandardError {
	return newError(ErrCodeSearchIndexFailed, "Search index request failed", causeText(err), true, err)
}

func NewNotificationFailedError(channel string, err error) *StandardError {
	e := newError(ErrCodeNotificationFailed, fmt.Sprintf("Notification via %s failed", channel), causeText(err), true, err)
	e.Metadata = map[string]interface{}{"channel": channel}
	return e
}

// NewExternalServiceError wraps a failure of any upstream dependency.
func NewExternalServiceError(service string, err error) *StandardError {
	return newError(ErrCodeExternalService, fmt.Sprintf("External service %s failed", service), causeText(err), true, err)
}

func NewTimeoutError(service string, err error) *StandardError {
	return newError(ErrCodeTimeout, fmt.Sprintf("Timeout calling %s", service), causeText(err), true, err)
}

// ==========================
// 4. Error Conversion to BPMN
// ==========================

// BPMNErrorMapping maps internal codes to the codes caught by boundary events.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeApplicationValidationFailed: "APPLICATION_VALIDATION_FAILED",
	ErrCodeStageFailed:                 "STAGE_FAILED",
	ErrCodeStorageUnavailable:          "STORAGE_UNAVAILABLE",
	ErrCodeQueryExecutionFailed:        "STORAGE_UNAVAILABLE",
	ErrCodeApplicationNotFound:         "APPLICATION_NOT_FOUND",
	ErrCodeDecisionEngineFailed:        "DECISION_ENGINE_FAILED",
	ErrCodeDecisionEngineTimeout:       "DECISION_ENGINE_FAILED",
	ErrCodeNotificationFailed:          "NOTIFICATION_SEND_FAILED",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeStorageUnavailable,
		ErrCodeQueryExecutionFailed,
		ErrCodeNotificationFailed,
		ErrCodeExternalService:
		return 3
	case ErrCodeDecisionEngineTimeout, ErrCodeTimeout:
		return 2
	case ErrCodeDecisionEngineFailed, ErrCodeCacheUnavailable, ErrCodeSearchIndexFailed:
		return 1
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

// ==========================
// 5. Utility Functions
// ==========================

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "VALIDATION"):
		return "VALIDATION"
	case strings.Contains(codeStr, "STAGE") || strings.Contains(codeStr, "DECISION"):
		return "UNDERWRITING"
	case strings.Contains(codeStr, "STORAGE") || strings.Contains(codeStr, "QUERY") || strings.Contains(codeStr, "NOT_FOUND"):
		return "STORAGE"
	case strings.Contains(codeStr, "CACHE") || strings.Contains(codeStr, "SEARCH"):
		return "AUXILIARY"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	default:
		return "OTHER"
	}
}
