package reconcile

import (
	"context"
	"errors"
	"testing"
	"time"

	"circulation-workers/internal/common/config"
	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

type MockStore struct {
	FindPendingNotNotifiedFunc func(ctx context.Context, statuses []models.RequestStatus) ([]models.RequestRecord, error)
	SavePendingRequestsFunc    func(ctx context.Context, pending []models.PendingRequest) error
	saved                      []models.PendingRequest
	saveCalls                  int
}

func (m *MockStore) FindPendingNotNotified(ctx context.Context, statuses []models.RequestStatus) ([]models.RequestRecord, error) {
	return m.FindPendingNotNotifiedFunc(ctx, statuses)
}

func (m *MockStore) SavePendingRequests(ctx context.Context, pending []models.PendingRequest) error {
	m.saveCalls++
	if m.SavePendingRequestsFunc != nil {
		if err := m.SavePendingRequestsFunc(ctx, pending); err != nil {
			return err
		}
	}
	m.saved = append(m.saved, pending...)
	return nil
}

type MockNotifier struct {
	SendFunc func(ctx context.Context, payload models.EmailPayload) error
	sent     []models.EmailPayload
}

func (m *MockNotifier) Send(ctx context.Context, payload models.EmailPayload) error {
	m.sent = append(m.sent, payload)
	if m.SendFunc != nil {
		return m.SendFunc(ctx, payload)
	}
	return nil
}

func record(id int64, barcode string, status models.RequestStatus, age time.Duration) models.RequestRecord {
	return models.RequestRecord{
		ID:              id,
		ItemID:          id * 100,
		Item:            models.ItemReference{Barcode: barcode, OwningInstitution: "PUL"},
		Status:          status,
		RequestTypeCode: models.RequestTypeRetrieval,
		CreatedAt:       now.Add(-age),
	}
}

func newReconciler(t *testing.T, records []models.RequestRecord) (*Reconciler, *MockStore, *MockNotifier) {
	store := &MockStore{FindPendingNotNotifiedFunc: func(_ context.Context, statuses []models.RequestStatus) ([]models.RequestRecord, error) {
		assert.ElementsMatch(t, []models.RequestStatus{models.StatusPending, models.StatusLASItemStatusPending}, statuses)
		return records, nil
	}}
	notifier := &MockNotifier{}
	r := New(store, notifier, config.ReconcilerConfig{
		PendingThresholdMinutes: 5,
		EmailTo:                 "ops@example.org",
		EmailCc:                 "lead@example.org",
	}, logger.NewTestLogger(t))
	r.now = func() time.Time { return now }
	return r, store, notifier
}

func TestIdentifyPendingRequests_Threshold(t *testing.T) {
	tests := []struct {
		name      string
		record    models.RequestRecord
		escalated bool
	}{
		{name: "pending 3 minutes", record: record(1, "B1", models.StatusPending, 3*time.Minute)},
		{name: "pending exactly 5 minutes", record: record(2, "B2", models.StatusPending, 5*time.Minute+59*time.Second)},
		{name: "pending 6 minutes", record: record(3, "B3", models.StatusPending, 6*time.Minute), escalated: true},
		{name: "las just created", record: record(4, "B4", models.StatusLASItemStatusPending, 0), escalated: true},
		{name: "las old", record: record(5, "B5", models.StatusLASItemStatusPending, 48*time.Hour), escalated: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, store, notifier := newReconciler(t, []models.RequestRecord{tt.record})

			escalated, err := r.IdentifyPendingRequests(context.Background())
			require.NoError(t, err)
			assert.Equal(t, tt.escalated, escalated)

			if tt.escalated {
				require.Len(t, store.saved, 1)
				assert.Equal(t, tt.record.ID, store.saved[0].RequestID)
				assert.Equal(t, tt.record.ItemID, store.saved[0].ItemID)
				assert.Len(t, notifier.sent, 1)
			} else {
				assert.Empty(t, store.saved)
				assert.Empty(t, notifier.sent)
			}
		})
	}
}

func TestIdentifyPendingRequests_NothingStale(t *testing.T) {
	r, store, notifier := newReconciler(t, nil)

	escalated, err := r.IdentifyPendingRequests(context.Background())

	require.NoError(t, err)
	assert.False(t, escalated)
	assert.Zero(t, store.saveCalls)
	assert.Empty(t, notifier.sent)
}

func TestIdentifyPendingRequests_Subjects(t *testing.T) {
	pending := record(1, "P1", models.StatusPending, 10*time.Minute)
	las := record(2, "L1", models.StatusLASItemStatusPending, time.Minute)

	tests := []struct {
		name    string
		records []models.RequestRecord
		subject string
	}{
		{name: "pending only", records: []models.RequestRecord{pending}, subject: SubjectPending},
		{name: "las only", records: []models.RequestRecord{las}, subject: SubjectLAS},
		{name: "both", records: []models.RequestRecord{pending, las}, subject: SubjectPendingAndLAS},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _, notifier := newReconciler(t, tt.records)

			_, err := r.IdentifyPendingRequests(context.Background())
			require.NoError(t, err)
			require.Len(t, notifier.sent, 1)
			assert.Equal(t, tt.subject, notifier.sent[0].Subject)
			assert.Equal(t, "ops@example.org", notifier.sent[0].To)
			assert.Equal(t, "lead@example.org", notifier.sent[0].Cc)
		})
	}
}

func TestIdentifyPendingRequests_OneBatchPerSweep(t *testing.T) {
	r, store, _ := newReconciler(t, []models.RequestRecord{
		record(1, "P1", models.StatusPending, 10*time.Minute),
		record(2, "L1", models.StatusLASItemStatusPending, time.Minute),
		record(3, "P2", models.StatusPending, time.Minute),
	})

	res, err := r.Sweep(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, store.saveCalls)
	require.Len(t, store.saved, 2)
	for _, p := range store.saved {
		assert.Equal(t, res.BatchID, p.BatchID)
		assert.Equal(t, now, p.EscalatedAt)
	}
	assert.True(t, res.NotificationQueued)
}

func TestIdentifyPendingRequests_PersistBeforeNotify(t *testing.T) {
	r, store, notifier := newReconciler(t, []models.RequestRecord{
		record(1, "L1", models.StatusLASItemStatusPending, time.Minute),
	})
	store.SavePendingRequestsFunc = func(context.Context, []models.PendingRequest) error {
		return apperrors.NewPersistenceFailureError("save pending requests", errors.New("db down"))
	}

	escalated, err := r.IdentifyPendingRequests(context.Background())

	assert.False(t, escalated)
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, notifier.sent)
}

func TestIdentifyPendingRequests_NotificationFailureKeepsEscalations(t *testing.T) {
	r, store, notifier := newReconciler(t, []models.RequestRecord{
		record(1, "L1", models.StatusLASItemStatusPending, time.Minute),
	})
	notifier.SendFunc = func(context.Context, models.EmailPayload) error {
		return errors.New("ses throttled")
	}

	res, err := r.Sweep(context.Background())

	require.NoError(t, err)
	assert.True(t, res.Escalated())
	assert.False(t, res.NotificationQueued)
	assert.Len(t, store.saved, 1)
}

func TestIdentifyPendingRequests_LoadFailure(t *testing.T) {
	r, _, notifier := newReconciler(t, nil)
	r.store = &MockStore{FindPendingNotNotifiedFunc: func(context.Context, []models.RequestStatus) ([]models.RequestRecord, error) {
		return nil, apperrors.NewPersistenceFailureError("find pending requests", errors.New("timeout"))
	}}

	_, err := r.IdentifyPendingRequests(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrPersistenceFailure)
	assert.Empty(t, notifier.sent)
}

func TestBody(t *testing.T) {
	p := record(1, "P1", models.StatusPending, 10*time.Minute)
	l := record(2, "L1", models.StatusLASItemStatusPending, time.Minute)
	l.RequestTypeCode = models.RequestTypeEDD

	want := "Below are the request in PENDING:" +
		"\nBarcode : P1\t\t Request Created Date : 2024-03-01 11:50:00 UTC\t\t Request Type :RETRIEVAL" +
		"\n\n" +
		"Below are the request in LAS ITEM STATUS PENDING:" +
		"\nBarcode : L1\t\t Request Created Date : 2024-03-01 11:59:00 UTC\t\t Request Type :EDD"

	assert.Equal(t, want, Body([]models.RequestRecord{p}, []models.RequestRecord{l}))
	assert.Equal(t, "", Body(nil, nil))
	assert.Equal(t, "", Subject(0, 0))
}
