package errors

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStandardError_IsMatchesSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		sentinel error
	}{
		{"validation", NewValidationError("bad barcode", ""), ErrValidation},
		{"unknown institution", NewUnknownInstitutionError("PUL"), ErrUnknownInstitution},
		{"unsupported", NewUnsupportedOperationError("CUL", "refileItem"), ErrUnsupportedOperation},
		{"config missing", NewConfigurationMissingError("NYPL", "ils.default.pickup.location"), ErrConfigurationMissing},
		{"persistence", NewPersistenceFailureError("save", fmt.Errorf("conn refused")), ErrPersistenceFailure},
		{"wrapped", fmt.Errorf("outer: %w", NewVersionConflictError(1, 2, 3)), ErrVersionConflict},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.True(t, stderrors.Is(tt.err, tt.sentinel))
			assert.False(t, stderrors.Is(tt.err, ErrNotificationSendFailed))
		})
	}
}

func TestPersistenceFailure_UnwrapsCause(t *testing.T) {
	cause := fmt.Errorf("deadlock detected")
	err := NewPersistenceFailureError("purge", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "deadlock detected")
	assert.True(t, err.Retryable)
}

func TestConvertToBPMNError(t *testing.T) {
	t.Run("retryable technical error keeps retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewPersistenceFailureError("save", fmt.Errorf("timeout")))
		assert.Equal(t, string(ErrCodePersistenceFailure), bpmn.Code)
		assert.Equal(t, 3, bpmn.Retries)
		assert.Equal(t, string(ErrCodePersistenceFailure), bpmn.ToErrorVariables()["originalErrorCode"])
	})

	t.Run("business error has no retries", func(t *testing.T) {
		bpmn := ConvertToBPMNError(NewInvalidStatusTransitionError(7, "CANCELED", "PENDING"))
		assert.Equal(t, 0, bpmn.Retries)
		assert.False(t, bpmn.Retryable)
	})
}

func TestAsStandardError_NormalizesPlainErrors(t *testing.T) {
	stdErr := AsStandardError(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternal, stdErr.Code)
	assert.Equal(t, "boom", stdErr.Details)
	assert.Equal(t, "OTHER", GetErrorCategory(stdErr.Code))
	assert.Equal(t, "STORE", GetErrorCategory(ErrCodeVersionConflict))
	assert.Equal(t, "ILS", GetErrorCategory(ErrCodeConnectorTimeout))
}
