// internal/workers/maintenance/identify-pending-requests/models.go
package identifypendingrequests

type Output struct {
	Escalated          bool   `json:"pendingRequestsEscalated"`
	BatchID            string `json:"batchId,omitempty"`
	PendingCount       int    `json:"pendingCount"`
	LASCount           int    `json:"lasItemStatusPendingCount"`
	NotificationQueued bool   `json:"notificationQueued"`
}
