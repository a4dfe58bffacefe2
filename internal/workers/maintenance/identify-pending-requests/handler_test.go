// internal/workers/maintenance/identify-pending-requests/handler_test.go
package identifypendingrequests

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/models"
	"circulation-workers/internal/reconcile"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockReconciler struct {
	SweepFunc func(ctx context.Context) (*reconcile.Result, error)
}

func (m *MockReconciler) Sweep(ctx context.Context) (*reconcile.Result, error) {
	return m.SweepFunc(ctx)
}

func newHandler(t *testing.T, r Reconciler) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, r, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

func TestExecute_ReportsSweep(t *testing.T) {
	r := &MockReconciler{SweepFunc: func(context.Context) (*reconcile.Result, error) {
		return &reconcile.Result{
			BatchID:            "b-1",
			Pending:            []models.RequestRecord{{ID: 1}, {ID: 2}},
			LAS:                []models.RequestRecord{{ID: 3}},
			NotificationQueued: true,
		}, nil
	}}

	out, err := newHandler(t, r).Execute(context.Background())

	require.NoError(t, err)
	assert.Equal(t, Output{Escalated: true, BatchID: "b-1", PendingCount: 2, LASCount: 1, NotificationQueued: true}, *out)
}

func TestExecute_NothingStale(t *testing.T) {
	r := &MockReconciler{SweepFunc: func(context.Context) (*reconcile.Result, error) {
		return &reconcile.Result{}, nil
	}}

	out, err := newHandler(t, r).Execute(context.Background())

	require.NoError(t, err)
	assert.False(t, out.Escalated)
	assert.Zero(t, out.PendingCount)
}

func TestExecute_StoreFailure(t *testing.T) {
	r := &MockReconciler{SweepFunc: func(context.Context) (*reconcile.Result, error) {
		return nil, apperrors.NewPersistenceFailureError("find pending", errors.New("conn refused"))
	}}

	out, err := newHandler(t, r).Execute(context.Background())

	assert.Nil(t, out)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
}
