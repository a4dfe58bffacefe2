// internal/workers/circulation/patron-validation/handler.go
package patronvalidation

import (
	"context"
	"encoding/json"

	"circulation-workers/internal/common/camunda"
	apperrors "circulation-workers/internal/common/errors"
	"circulation-workers/internal/common/logger"
	"circulation-workers/internal/common/validation"
	"circulation-workers/internal/models"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"
)

const (
	TaskType = "patron-validation"
)

var inputSchema = validation.MustValidator(validation.BulkRequestSchema)

type Dispatcher interface {
	ValidatePatron(ctx context.Context, req models.BulkRequestInformation) bool
}

type Handler struct {
	config     *Config
	dispatcher Dispatcher
	responder  *camunda.JobResponder
	logger     logger.Logger
}

func NewHandler(cfg *Config, d Dispatcher, log logger.Logger) *Handler {
	log = log.WithFields(map[string]interface{}{"taskType": TaskType})
	return &Handler{
		config:     cfg,
		dispatcher: d,
		responder:  camunda.NewJobResponder(TaskType, log),
		logger:     log,
	}
}

func (h *Handler) Handle(client worker.JobClient, job entities.Job) {
	h.logger.Info("processing job", map[string]interface{}{
		"jobKey":      job.Key,
		"workflowKey": job.ProcessInstanceKey,
	})

	ctx, cancel := context.WithTimeout(context.Background(), h.config.Timeout)
	defer cancel()

	if err := inputSchema.ValidateJSON(job.Variables); err != nil {
		h.responder.Fail(ctx, client, job, err)
		return
	}

	var input Input
	if err := json.Unmarshal([]byte(job.Variables), &input); err != nil {
		h.responder.Fail(ctx, client, job,
			apperrors.NewValidationError("Invalid job variables", err.Error()))
		return
	}

	output, err := h.execute(ctx, &input)
	if err != nil {
		h.responder.Fail(ctx, client, job, err)
		return
	}

	h.responder.Complete(ctx, client, job, output)
}

func (h *Handler) Execute(ctx context.Context, input *Input) (*Output, error) {
	return h.execute(ctx, input)
}

func (h *Handler) execute(ctx context.Context, input *Input) (*Output, error) {
	valid := h.dispatcher.ValidatePatron(ctx, *input)
	return &Output{
		BulkRequestID: input.BulkRequestID,
		ValidPatron:   valid,
	}, nil
}
