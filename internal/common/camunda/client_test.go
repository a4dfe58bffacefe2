package camunda

import (
	"context"
	"errors"
	"testing"
	"time"

	"circulation-workers/internal/common/config"
	apperrors "circulation-workers/internal/common/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = &RetryConfig{MaxRetries: 3, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}

func TestExecuteWithRetry(t *testing.T) {
	tests := []struct {
		name      string
		errs      []error
		wantCalls int
		wantErr   bool
		retryable bool
	}{
		{name: "first try", errs: []error{nil}, wantCalls: 1},
		{name: "transient then ok", errs: []error{errors.New("rpc error: code = Unavailable"), nil}, wantCalls: 2},
		{name: "permanent", errs: []error{errors.New("NOT_FOUND: job 42")}, wantCalls: 1, wantErr: true},
		{
			name:      "retries exhausted",
			errs:      []error{errors.New("deadline exceeded"), errors.New("deadline exceeded"), errors.New("deadline exceeded"), errors.New("deadline exceeded")},
			wantCalls: 4,
			wantErr:   true,
			retryable: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := executeWithRetry(context.Background(), fastRetry, func(context.Context) error {
				e := tt.errs[calls]
				calls++
				return e
			}, "complete-job")

			assert.Equal(t, tt.wantCalls, calls)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.ErrorIs(t, err, apperrors.ErrWorkflowEngine)
			assert.Equal(t, tt.retryable, apperrors.AsStandardError(err).Retryable)
		})
	}
}

func TestExecuteWithRetry_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	slow := &RetryConfig{MaxRetries: 5, BaseDelay: time.Hour, MaxDelay: time.Hour}

	calls := 0
	err := executeWithRetry(ctx, slow, func(context.Context) error {
		calls++
		cancel()
		return errors.New("connection refused")
	}, "topology")

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, apperrors.ErrWorkflowEngine)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConfigFrom(t *testing.T) {
	cfg := ConfigFrom(config.CamundaConfig{BrokerAddress: "zeebe:26500", Timeout: 5000})
	assert.Equal(t, "zeebe:26500", cfg.GatewayAddress)
	assert.Equal(t, 5*time.Second, cfg.ConnectionTimeout)
	assert.True(t, cfg.UsePlaintextConnection)

	assert.Equal(t, 10*time.Second, ConfigFrom(config.CamundaConfig{}).ConnectionTimeout)
}

func TestPanicError(t *testing.T) {
	assert.Equal(t, "handler panic: boom", errPanic("boom").Error())
	assert.Equal(t, "handler panic: bad", errPanic(errors.New("bad")).Error())
	assert.Equal(t, "handler panic: 42", errPanic(42).Error())
}
