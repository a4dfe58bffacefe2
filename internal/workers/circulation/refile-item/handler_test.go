// internal/workers/circulation/refile-item/handler_test.go
package refileitem

import (
	"context"
	"errors"
	"testing"
	"time"

	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type MockDispatcher struct {
	RefileFunc func(ctx context.Context, req models.ItemRefileRequest) *models.ItemRefileResponse
}

func (m *MockDispatcher) Refile(ctx context.Context, req models.ItemRefileRequest) *models.ItemRefileResponse {
	return m.RefileFunc(ctx, req)
}

type transition struct {
	id      int64
	version int
}

type MockStore struct {
	FindByIDsFunc        func(ctx context.Context, ids []int64) ([]models.RequestRecord, error)
	TransitionStatusFunc func(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error)

	transitions []transition
}

func (m *MockStore) FindByIDs(ctx context.Context, ids []int64) ([]models.RequestRecord, error) {
	return m.FindByIDsFunc(ctx, ids)
}

func (m *MockStore) TransitionStatus(ctx context.Context, id int64, expectedVersion int, to models.RequestStatus) (int, error) {
	m.transitions = append(m.transitions, transition{id: id, version: expectedVersion})
	if m.TransitionStatusFunc == nil {
		return expectedVersion + 1, nil
	}
	return m.TransitionStatusFunc(ctx, id, expectedVersion, to)
}

func refiled(ids ...int64) *MockDispatcher {
	return &MockDispatcher{RefileFunc: func(context.Context, models.ItemRefileRequest) *models.ItemRefileResponse {
		resp := &models.ItemRefileResponse{RequestIDs: ids}
		resp.Succeed("Successfully Refiled")
		return resp
	}}
}

func storeWith(records ...models.RequestRecord) *MockStore {
	return &MockStore{FindByIDsFunc: func(context.Context, []int64) ([]models.RequestRecord, error) {
		return records, nil
	}}
}

func newHandler(t *testing.T, d Dispatcher, s Store) *Handler {
	return NewHandler(&Config{Timeout: time.Second}, d, s, logger.NewZapAdapter(zaptest.NewLogger(t)))
}

func TestExecute_TransitionsRefiledRequests(t *testing.T) {
	store := storeWith(
		models.RequestRecord{ID: 11, Status: models.StatusRetrievalOrderPlaced, Version: 3},
		models.RequestRecord{ID: 12, Status: models.StatusRefiled, Version: 5},
	)
	input := &Input{ItemBarcodes: []string{"32101"}, RequestIDs: []int64{11, 12}}

	out, err := newHandler(t, refiled(11, 12), store).Execute(context.Background(), input)

	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Successfully Refiled", out.ScreenMessage)
	assert.Equal(t, []int64{11, 12}, out.Transitioned)
	assert.Equal(t, []transition{{id: 11, version: 3}}, store.transitions)
	assert.Empty(t, out.Skipped)
}

func TestExecute_FailedRefileTouchesNothing(t *testing.T) {
	d := &MockDispatcher{RefileFunc: func(context.Context, models.ItemRefileRequest) *models.ItemRefileResponse {
		resp := &models.ItemRefileResponse{}
		resp.Fail("Cannot process Refile request")
		return resp
	}}
	store := &MockStore{FindByIDsFunc: func(context.Context, []int64) ([]models.RequestRecord, error) {
		t.Fatal("store must not be read")
		return nil, nil
	}}

	out, err := newHandler(t, d, store).Execute(context.Background(), &Input{RequestIDs: []int64{11}})

	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.Empty(t, out.Transitioned)
}

func TestExecute_TransitionOutcomes(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantErr     bool
		wantSkipped bool
	}{
		{name: "version conflict", err: apperrors.NewVersionConflictError(11, 3, 4), wantSkipped: true},
		{name: "already terminal", err: apperrors.NewInvalidStatusTransitionError(11, "CANCELED", "REFILED"), wantSkipped: true},
		{name: "deleted", err: apperrors.NewRequestNotFoundError(11), wantSkipped: true},
		{name: "database down", err: apperrors.NewPersistenceFailureError("transition status", errors.New("conn reset")), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storeWith(models.RequestRecord{ID: 11, Status: models.StatusRetrievalOrderPlaced, Version: 3})
			store.TransitionStatusFunc = func(context.Context, int64, int, models.RequestStatus) (int, error) {
				return 0, tt.err
			}

			out, err := newHandler(t, refiled(11), store).Execute(context.Background(), &Input{RequestIDs: []int64{11}})

			if tt.wantErr {
				assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
				return
			}
			require.NoError(t, err)
			assert.True(t, out.Success)
			assert.Empty(t, out.Transitioned)
			if tt.wantSkipped {
				assert.Contains(t, out.Skipped, "11")
			}
		})
	}
}

func TestExecute_LookupFailure(t *testing.T) {
	store := &MockStore{FindByIDsFunc: func(context.Context, []int64) ([]models.RequestRecord, error) {
		return nil, apperrors.NewPersistenceFailureError("find requests", errors.New("timeout"))
	}}

	_, err := newHandler(t, refiled(11), store).Execute(context.Background(), &Input{RequestIDs: []int64{11}})

	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
}
