package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to RequestStatus
		allowed  bool
	}{
		{StatusPending, StatusRetrievalOrderPlaced, true},
		{StatusPending, StatusLASItemStatusPending, true},
		{StatusLASItemStatusPending, StatusPending, true},
		{StatusPending, StatusException, true},
		{StatusRetrievalOrderPlaced, StatusRefiled, true},
		{StatusRecallOrderPlaced, StatusEDDOrderPlaced, true},
		{StatusRetrievalOrderPlaced, StatusPending, false},
		{StatusCanceled, StatusPending, false},
		{StatusException, StatusRetrievalOrderPlaced, false},
		{StatusRefiled, StatusRefiled, false},
		{StatusPending, RequestStatus("UNKNOWN"), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.allowed, CanTransition(tt.from, tt.to))
		})
	}
}

func TestResponseHeader_FailAlwaysCarriesMessage(t *testing.T) {
	var resp ItemCheckoutResponse
	resp.Succeed("ok")
	resp.Fail("")

	assert.False(t, resp.Success)
	assert.Equal(t, DefaultFailureMessage, resp.ScreenMessage)

	var env Envelope = &resp
	assert.Same(t, &resp.ResponseHeader, env.Header())
}

func TestNewPendingRequest_SnapshotsRecord(t *testing.T) {
	created := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	now := created.Add(10 * time.Minute)
	rec := RequestRecord{
		ID:              42,
		ItemID:          7,
		Item:            ItemReference{Barcode: "33433001", OwningInstitution: "NYPL"},
		RequestTypeCode: RequestTypeRetrieval,
		Status:          StatusPending,
		CreatedAt:       created,
	}

	p := NewPendingRequest("batch-1", rec, now)

	assert.Equal(t, int64(42), p.RequestID)
	assert.Equal(t, int64(7), p.ItemID)
	assert.Equal(t, "33433001", p.ItemBarcode)
	assert.Equal(t, created, p.RequestCreatedDate)
	assert.Equal(t, now, p.EscalatedAt)
	assert.Equal(t, "NYPL", rec.OwningInstitution())
}
