// internal/workers/circulation/refile-item/models.go
package refileitem

import "circulation-workers/internal/models"

type Input = models.ItemRefileRequest

// Output reports the ILS outcome and which stored requests were moved to
// REFILED. Skipped maps a request id to the reason it kept its status.
type Output struct {
	Operation     string                     `json:"operation"`
	Success       bool                       `json:"success"`
	ScreenMessage string                     `json:"screenMessage"`
	Response      *models.ItemRefileResponse `json:"response"`
	Transitioned  []int64                    `json:"transitionedRequestIds"`
	Skipped       map[string]string          `json:"skippedRequestIds,omitempty"`
}
