// internal/workers/maintenance/identify-pending-requests/handler.go
package identifypendingrequests

import (
	"context"

	"circulation-workers/internal/common/camunda"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/reconcile"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "identify-pending-requests"
)

// Reconciler runs one escalation sweep.
type Reconciler interface {
	Sweep(ctx context.Context) (*reconcile.Result, error)
}

type Handler struct {
	config     *Config
	reconciler Reconciler
	responder  *camunda.JobResponder
	logger     logger.Logger
}

func NewHandler(cfg *Config, r Reconciler, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     cfg,
		reconciler: r,
		responder:  camunda.NewJobResponder(TaskType, log),
		logger:     log,
	}
}

// Handle ignores the job variables; the sweep reads everything it needs
// from the store.
func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	output, err := h.execute(ctx)
	if err != nil {
		h.responder.Fail(ctx, client, job, err)
		return
	}

	h.responder.Complete(ctx, client, job, output)
}

func (h *Handler) Execute(ctx context.Context) (*Output, error) {
	return h.execute(ctx)
}

func (h *Handler) execute(ctx context.Context) (*Output, error) {
	res, err := h.reconciler.Sweep(ctx)
	if err != nil {
		return nil, err
	}
	return &Output{
		Escalated:          res.Escalated(),
		BatchID:            res.BatchID,
		PendingCount:       len(res.Pending),
		LASCount:           len(res.LAS),
		NotificationQueued: res.NotificationQueued,
	}, nil
}
