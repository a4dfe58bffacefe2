// internal/workers/maintenance/purge-requests/models.go
package purgerequests

import "circulation-workers/internal/purge"

type EmailOutput struct {
	Status string `json:"purgeStatus"`
	purge.EmailPurgeResult
}

type ExceptionOutput = purge.ExceptionPurgeResult
