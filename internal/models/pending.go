package models

import "time"

// PendingRequest is the audit snapshot taken when a request is escalated by
// the pending-request sweep. Rows are only ever inserted.
type PendingRequest struct {
	ID                 int64         `json:"id,omitempty"`
	BatchID            string        `json:"batchId"`
	ItemID             int64         `json:"itemId"`
	RequestID          int64         `json:"requestId"`
	ItemBarcode        string        `json:"itemBarcode"`
	RequestCreatedDate time.Time     `json:"requestCreatedDate"`
	RequestTypeCode    string        `json:"requestTypeCode"`
	Status             RequestStatus `json:"status"`
	EscalatedAt        time.Time     `json:"escalatedAt"`
}

// NewPendingRequest snapshots r for batch.
func NewPendingRequest(batchID string, r RequestRecord, now time.Time) PendingRequest {
	return PendingRequest{
		BatchID:            batchID,
		ItemID:             r.ItemID,
		RequestID:          r.ID,
		ItemBarcode:        r.Item.Barcode,
		RequestCreatedDate: r.CreatedAt,
		RequestTypeCode:    r.RequestTypeCode,
		Status:             r.Status,
		EscalatedAt:        now,
	}
}

// EmailPayload is one outbound notification.
type EmailPayload struct {
	ID      string `json:"id"`
	To      string `json:"to"`
	Cc      string `json:"cc,omitempty"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}
