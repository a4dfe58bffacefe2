// internal/workers/circulation/patron-validation/models.go
package patronvalidation

import "circulation-workers/internal/models"

type Input = models.BulkRequestInformation

type Output struct {
	BulkRequestID int64 `json:"bulkRequestId,omitempty"`
	ValidPatron   bool  `json:"validPatron"`
}
