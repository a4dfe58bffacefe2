package validation

import (
	"testing"

	apperrors "circulation-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
)

func TestValidator_ItemRequest(t *testing.T) {
	v := MustValidator(ItemRequestSchema)

	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{"empty barcodes are shape-valid", `{"itemBarcodes": [], "requestId": "R1"}`, false},
		{"placeholder barcode is shape-valid", `{"itemBarcodes": ["string"]}`, false},
		{"numeric request id", `{"itemBarcodes": ["33433001"], "requestId": 17}`, true},
		{"empty document", ``, false},
		{"barcodes not an array", `{"itemBarcodes": "33433001"}`, true},
		{"barcode not a string", `{"itemBarcodes": [33433001]}`, true},
		{"malformed json", `{"itemBarcodes": [`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.ValidateJSON(tt.doc)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrValidation)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestValidator_StatusTransition(t *testing.T) {
	v := MustValidator(StatusTransitionSchema)

	assert.NoError(t, v.ValidateJSON(`{"requestId": 5, "expectedVersion": 0, "status": "REFILED"}`))

	err := v.ValidateJSON(`{"requestId": 5}`)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "expectedVersion")
}

func TestNewValidator_RejectsBadSchema(t *testing.T) {
	_, err := NewValidator(`{"type": 12}`)
	assert.Error(t, err)
}
