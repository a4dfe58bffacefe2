// internal/workers/maintenance/purge-requests/handler.go
package purgerequests

import (
	"context"
	"fmt"

	"circulation-workers/internal/common/camunda"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/purge"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskPurgeEmailAddress      = "purge-email-address"
	TaskPurgeExceptionRequests = "purge-exception-requests"
)

var TaskTypes = []string{TaskPurgeEmailAddress, TaskPurgeExceptionRequests}

type Engine interface {
	PurgeEmailAddress(ctx context.Context) (*purge.EmailPurgeResult, error)
	PurgeExceptionRequests(ctx context.Context) *purge.ExceptionPurgeResult
}

type Handler struct {
	config    *Config
	taskType  string
	engine    Engine
	responder *camunda.JobResponder
	logger    logger.Logger
}

func NewHandler(cfg *Config, taskType string, engine Engine, log logger.Logger) (*Handler, error) {
	if taskType != TaskPurgeEmailAddress && taskType != TaskPurgeExceptionRequests {
		return nil, fmt.Errorf("purge: unknown task type %q", taskType)
	}
	log = log.WithFields(map[string]interface{}{"taskType": taskType})
	return &Handler{
		config:    cfg,
		taskType:  taskType,
		engine:    engine,
		responder: camunda.NewJobResponder(taskType, log),
		logger:    log,
	}, nil
}

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

// Execute returns an *EmailOutput or an *ExceptionOutput depending on the
// handler's task type.
func (h *Handler) Execute(ctx context.Context) (interface{}, error) {
	return h.execute(ctx)
}

func (h *Handler) execute(ctx context.Context) (interface{}, error) {
	if h.taskType == TaskPurgeExceptionRequests {
		// Failures are reported in the result, not as job incidents.
		return h.engine.PurgeExceptionRequests(ctx), nil
	}

	res, err := h.engine.PurgeEmailAddress(ctx)
	if err != nil {
		return nil, err
	}
	return &EmailOutput{Status: purge.StatusSuccess, EmailPurgeResult: *res}, nil
}
