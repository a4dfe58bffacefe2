// internal/workers/circulation/transition-request-status/config.go
package transitionrequeststatus

import (
	"time"

	"circulation-workers/internal/common/config"
)

type Config struct {
	Timeout time.Duration
}

// LoadConfig derives the per-job deadline from the worker's activation
// timeout, leaving a second to report the result.
func LoadConfig(wcfg config.WorkerConfig) *Config {
	timeout := config.GetDuration(wcfg.Timeout) - time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Config{Timeout: timeout}
}
