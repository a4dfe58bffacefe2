// internal/workers/circulation/transition-request-status/handler_test.go
package transitionrequeststatus

import (
	"context"
	"testing"
	"time"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockStore struct {
	TransitionStatusFunc func(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error)
	calls                int
}

func (m *MockStore) TransitionStatus(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error) {
	m.calls++
	return m.TransitionStatusFunc(ctx, id, expectedVersion, to)
}

func TestExecute(t *testing.T) {
	tests := []struct {
		name      string
		input     Input
		storeErr  error
		wantErr   error
		wantCalls int
	}{
		{
			name:      "moves forward",
			input:     Input{RequestID: 9, ExpectedVersion: 2, Status: models.StatusRetrievalOrderPlaced},
			wantCalls: 1,
		},
		{
			name:      "unknown status",
			input:     Input{RequestID: 9, ExpectedVersion: 2, Status: "SHIPPED"},
			wantErr:   apperrors.ErrValidation,
			wantCalls: 0,
		},
		{
			name:      "stale version",
			input:     Input{RequestID: 9, ExpectedVersion: 1, Status: models.StatusCanceled},
			storeErr:  apperrors.NewVersionConflictError(9, 1, 2),
			wantErr:   apperrors.ErrVersionConflict,
			wantCalls: 1,
		},
		{
			name:      "terminal",
			input:     Input{RequestID: 9, ExpectedVersion: 2, Status: models.StatusPending},
			storeErr:  apperrors.NewInvalidStatusTransitionError(9, "REFILED", "PENDING"),
			wantErr:   apperrors.ErrInvalidStatusTransition,
			wantCalls: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &MockStore{TransitionStatusFunc: func(_ context.Context, _ int64, v int, _ models.RequestStatus) (int, error) {
				if tt.storeErr != nil {
					return 0, tt.storeErr
				}
				return v + 1, nil
			}}
			h := NewHandler(&Config{Timeout: time.Second}, store, logger.NewZapAdapter(zaptest.NewLogger(t)))

			out, err := h.Execute(context.Background(), &tt.input)

			assert.Equal(t, tt.wantCalls, store.calls)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, Output{RequestID: 9, Status: tt.input.Status, Version: tt.input.ExpectedVersion + 1}, *out)
		})
	}
}
