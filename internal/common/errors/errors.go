// Package errors provides the error taxonomy shared by the dispatcher, the
// sweeps and the job workers, plus the mapping of those errors onto BPMN
// error codes for the workflow engine.
package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeValidation              ErrorCode = "VALIDATION_ERROR"
	ErrCodeConnectorFailure        ErrorCode = "CONNECTOR_FAILURE"
	ErrCodeConnectorTimeout        ErrorCode = "CONNECTOR_TIMEOUT"
	ErrCodeUnsupportedOperation    ErrorCode = "UNSUPPORTED_OPERATION"
	ErrCodeUnknownInstitution      ErrorCode = "UNKNOWN_INSTITUTION"
	ErrCodeConfigurationMissing    ErrorCode = "CONFIGURATION_MISSING"
	ErrCodePersistenceFailure      ErrorCode = "PERSISTENCE_FAILURE"
	ErrCodeRequestNotFound         ErrorCode = "REQUEST_NOT_FOUND"
	ErrCodeInvalidStatusTransition ErrorCode = "INVALID_STATUS_TRANSITION"
	ErrCodeVersionConflict         ErrorCode = "VERSION_CONFLICT"
	ErrCodeNotificationSendFailed  ErrorCode = "NOTIFICATION_SEND_FAILED"
	ErrCodeWorkflowEngine          ErrorCode = "WORKFLOW_ENGINE_ERROR"
	ErrCodeInternal                ErrorCode = "INTERNAL_ERROR"
)

// Sentinels for errors.Is checks. A StandardError matches the sentinel of
// its code.
var (
	ErrValidation              = stderrors.New(string(ErrCodeValidation))
	ErrConnectorFailure        = stderrors.New(string(ErrCodeConnectorFailure))
	ErrConnectorTimeout        = stderrors.New(string(ErrCodeConnectorTimeout))
	ErrUnsupportedOperation    = stderrors.New(string(ErrCodeUnsupportedOperation))
	ErrUnknownInstitution      = stderrors.New(string(ErrCodeUnknownInstitution))
	ErrConfigurationMissing    = stderrors.New(string(ErrCodeConfigurationMissing))
	ErrPersistenceFailure      = stderrors.New(string(ErrCodePersistenceFailure))
	ErrRequestNotFound         = stderrors.New(string(ErrCodeRequestNotFound))
	ErrInvalidStatusTransition = stderrors.New(string(ErrCodeInvalidStatusTransition))
	ErrVersionConflict         = stderrors.New(string(ErrCodeVersionConflict))
	ErrNotificationSendFailed  = stderrors.New(string(ErrCodeNotificationSendFailed))
	ErrWorkflowEngine          = stderrors.New(string(ErrCodeWorkflowEngine))
)

var sentinels = map[ErrorCode]error{
	ErrCodeValidation:              ErrValidation,
	ErrCodeConnectorFailure:        ErrConnectorFailure,
	ErrCodeConnectorTimeout:        ErrConnectorTimeout,
	ErrCodeUnsupportedOperation:    ErrUnsupportedOperation,
	ErrCodeUnknownInstitution:      ErrUnknownInstitution,
	ErrCodeConfigurationMissing:    ErrConfigurationMissing,
	ErrCodePersistenceFailure:      ErrPersistenceFailure,
	ErrCodeRequestNotFound:         ErrRequestNotFound,
	ErrCodeInvalidStatusTransition: ErrInvalidStatusTransition,
	ErrCodeVersionConflict:         ErrVersionConflict,
	ErrCodeNotificationSendFailed:  ErrNotificationSendFailed,
	ErrCodeWorkflowEngine:          ErrWorkflowEngine,
}

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s", e.Message, e.Details)
	}
	return e.Message
}

// Is matches the sentinel registered for the error's code.
func (e *StandardError) Is(target error) bool {
	s, ok := sentinels[e.Code]
	return ok && s == target
}

func (e *StandardError) Unwrap() error {
	return e.cause
}

func newError(code ErrorCode, message, details string, retryable bool, cause error) *StandardError {
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

// NewValidationError reports a missing or placeholder input field.
func NewValidationError(message, details string) *StandardError {
	return newError(ErrCodeValidation, message, details, false, nil)
}

// NewConnectorFailureError wraps a failure returned by an ILS connector.
func NewConnectorFailureError(institution, operation string, err error) *StandardError {
	e := newError(ErrCodeConnectorFailure, err.Error(),
		fmt.Sprintf("institution: %s, operation: %s", institution, operation), true, err)
	return e
}

func NewConnectorTimeoutError(institution, operation string, timeout time.Duration) *StandardError {
	return newError(ErrCodeConnectorTimeout,
		fmt.Sprintf("ILS call %s timed out after %s", operation, timeout),
		fmt.Sprintf("institution: %s", institution), true, nil)
}

func NewUnsupportedOperationError(institution, operation string) *StandardError {
	return newError(ErrCodeUnsupportedOperation,
		fmt.Sprintf("Operation %s is not supported for institution %s", operation, institution),
		"", false, nil)
}

func NewUnknownInstitutionError(institution string) *StandardError {
	if institution == "" {
		return newError(ErrCodeUnknownInstitution, "Institution not provided", "", false, nil)
	}
	return newError(ErrCodeUnknownInstitution,
		fmt.Sprintf("No ILS connector registered for institution %s", institution), "", false, nil)
}

func NewConfigurationMissingError(institution, key string) *StandardError {
	return newError(ErrCodeConfigurationMissing, "Configuration value missing",
		fmt.Sprintf("institution: %s, key: %s", institution, key), false, nil)
}

// NewPersistenceFailureError wraps a store failure. Retryable: the store
// may come back.
func NewPersistenceFailureError(operation string, err error) *StandardError {
	return newError(ErrCodePersistenceFailure, "Request store operation failed",
		fmt.Sprintf("operation: %s, error: %s", operation, err.Error()), true, err)
}

func NewRequestNotFoundError(requestID int64) *StandardError {
	return newError(ErrCodeRequestNotFound, "Request not found",
		fmt.Sprintf("requestId: %d", requestID), false, nil)
}

func NewInvalidStatusTransitionError(requestID int64, from, to string) *StandardError {
	return newError(ErrCodeInvalidStatusTransition, "Request status transition not allowed",
		fmt.Sprintf("requestId: %d, from: %s, to: %s", requestID, from, to), false, nil)
}

func NewVersionConflictError(requestID int64, expected, actual int) *StandardError {
	return newError(ErrCodeVersionConflict, "Request was modified concurrently",
		fmt.Sprintf("requestId: %d, expectedVersion: %d, actualVersion: %d", requestID, expected, actual), false, nil)
}

func NewNotificationSendFailedError(channel string, err error) *StandardError {
	return newError(ErrCodeNotificationSendFailed, "Notification delivery failed",
		fmt.Sprintf("channel: %s, error: %s", channel, err.Error()), true, err)
}

// NewWorkflowEngineError wraps a failed Zeebe command.
func NewWorkflowEngineError(operation string, err error, retryable bool) *StandardError {
	return newError(ErrCodeWorkflowEngine, err.Error(),
		fmt.Sprintf("operation: %s", operation), retryable, err)
}

// ==========================
// BPMN Error Integration
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

// GetRetryCount returns how many times the engine should retry a job that
// failed with code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodePersistenceFailure, ErrCodeConnectorFailure, ErrCodeNotificationSendFailed:
		return 3
	case ErrCodeConnectorTimeout, ErrCodeWorkflowEngine:
		return 2
	default:
		return 0
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// ConvertToBPMNError maps a StandardError onto the engine's error shape.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}
	return &BPMNError{
		Code:      string(stdErr.Code),
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

// GetErrorCategory groups codes for dashboards.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "CONNECTOR") || code == ErrCodeUnsupportedOperation:
		return "ILS"
	case code == ErrCodeUnknownInstitution || code == ErrCodeConfigurationMissing:
		return "CONFIGURATION"
	case code == ErrCodePersistenceFailure || code == ErrCodeRequestNotFound ||
		code == ErrCodeVersionConflict || code == ErrCodeInvalidStatusTransition:
		return "STORE"
	case strings.Contains(codeStr, "NOTIFICATION"):
		return "NOTIFICATION"
	case code == ErrCodeValidation:
		return "VALIDATION"
	case code == ErrCodeWorkflowEngine:
		return "WORKFLOW"
	default:
		return "OTHER"
	}
}

// AsStandardError normalizes any error into a StandardError.
func AsStandardError(err error) *StandardError {
	var stdErr *StandardError
	if stderrors.As(err, &stdErr) {
		return stdErr
	}
	return newError(ErrCodeInternal, "Unexpected error", err.Error(), false, err)
}
