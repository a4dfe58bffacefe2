// internal/workers/circulation/item-request/models.go
package itemrequest

import "circulation-workers/internal/models"

type Input = models.ItemRequestInformation

// Output is written back as job variables. Success and ScreenMessage are
// lifted out of the response so gateways can branch on them.
type Output struct {
	Operation     string          `json:"operation"`
	Success       bool            `json:"success"`
	ScreenMessage string          `json:"screenMessage"`
	Response      models.Envelope `json:"response"`
}
