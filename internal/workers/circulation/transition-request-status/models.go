// internal/workers/circulation/transition-request-status/models.go
package transitionrequeststatus

import "circulation-workers/internal/models"

type Input struct {
	RequestID       int64                `json:"requestId"`
	ExpectedVersion int                  `json:"expectedVersion"`
	Status          models.RequestStatus `json:"status"`
}

type Output struct {
	RequestID int64                `json:"requestId"`
	Status    models.RequestStatus `json:"status"`
	Version   int                  `json:"version"`
}
